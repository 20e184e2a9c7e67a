package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/tui"
)

var showReport bool

var generateCmd = &cobra.Command{
	Use:   "generate [photo...]",
	Short: "Generate a game from each photo",
	Long: `Runs the full pipeline for each photo and saves the result under the
data directory as spec.yaml, analysis.md, game.html and report.yaml.

Example:
  photogame generate kitchen.jpg beach.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive terminal UI",
	RunE:  runTUI,
}

func init() {
	generateCmd.Flags().BoolVar(&showReport, "report", false, "Print the full report for each game")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	var failed int
	for _, path := range args {
		fmt.Fprintf(out, "%s\n", path)
		run, err := a.svc.GenerateFile(cmd.Context(), path, progressPrinter(out))
		if err != nil {
			failed++
			fmt.Fprintf(out, "  failed: %v\n", err)
			if cmd.Context().Err() != nil {
				break
			}
			continue
		}
		fmt.Fprintf(out, "  %s: %d issues, %d position issues\n  saved to %s\n",
			run.Spec.Title, run.Issues.Total(), len(run.Issues.Positions),
			filepath.Join(a.cfg.RunsDir(), run.ID, "game.html"))
		if showReport {
			fmt.Fprintln(out, engine.Summary(run))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d photos failed", failed, len(args))
	}
	return nil
}

// progressPrinter prints one line per pipeline stage.
func progressPrinter(w io.Writer) engine.Reporter {
	return func(u engine.Update) {
		fmt.Fprintf(w, "  [%s]\n", u.Stage)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return tui.Run(cmd.Context(), a.svc, a.cfg.RunsDir())
}
