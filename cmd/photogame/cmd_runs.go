package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tatianab/photo-game/internal/config"
	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/llm"
	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List saved games",
	RunE:  listRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print the report of a saved game",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Remove a game from the history (its files are kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteRun,
}

var runsReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Add saved games missing from the history",
	RunE:  reindexRuns,
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys in the OS keyring",
}

var keySetCmd = &cobra.Command{
	Use:   "set [gemini|anthropic]",
	Short: "Store an API key (read from stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  setKey,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete [gemini|anthropic]",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteKey,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the configuration",
	RunE:  showConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current settings to the config file",
	RunE:  initConfig,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsReindexCmd)
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	configCmd.AddCommand(configInitCmd)
}

func openHistory() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	history, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, history, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	_, history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	runs, err := history.List(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No games yet.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPHOTO\tCREATED\tISSUES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Title, r.SourceImage, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.TotalIssues())
	}
	return tw.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	run, err := models.LoadRun(cfg.RunsDir(), args[0])
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("run %s: %w", args[0], store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), engine.Summary(run))
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	_, history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()
	return history.Delete(cmd.Context(), args[0])
}

func reindexRuns(cmd *cobra.Command, args []string) error {
	cfg, history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	ids, err := models.ListRuns(cfg.RunsDir())
	if err != nil {
		return err
	}
	var added int
	for _, id := range ids {
		if _, err := history.Get(cmd.Context(), id); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		run, err := models.LoadRun(cfg.RunsDir(), id)
		if err != nil {
			logger.Warn("skipping unreadable run", zap.String("run", id), zap.Error(err))
			continue
		}
		if err := history.Record(cmd.Context(), run, filepath.Join(cfg.RunsDir(), id)); err != nil {
			return err
		}
		added++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d of %d saved games.\n", added, len(ids))
	return nil
}

func parseProvider(s string) (llm.Provider, error) {
	switch p := llm.Provider(strings.ToLower(s)); p {
	case llm.ProviderGemini, llm.ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

func setKey(cmd *cobra.Command, args []string) error {
	p, err := parseProvider(args[0])
	if err != nil {
		return err
	}

	var key string
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.OutOrStdout(), "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		key = string(b)
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read key: %w", err)
		}
		key = line
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("empty key")
	}
	if err := config.StoreKey(p, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key in the keyring.\n", p)
	return nil
}

func deleteKey(cmd *cobra.Command, args []string) error {
	p, err := parseProvider(args[0])
	if err != nil {
		return err
	}
	return config.DeleteKey(p)
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	keyState := "missing"
	if cfg.APIKey() != "" {
		keyState = "set"
	}
	fmt.Fprintf(out, "provider: %s\nmodel: %s\napi key: %s\ndata dir: %s\naddr: %s\nmax repair attempts: %d\n",
		cfg.Provider, cfg.LLM().Model, keyState, cfg.DataDir, cfg.Addr, cfg.MaxRepairAttempts)
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	// The file being created need not exist yet.
	src := configPath
	if _, err := os.Stat(src); err != nil {
		src = ""
	}
	cfg, err := config.Load(src)
	if err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
