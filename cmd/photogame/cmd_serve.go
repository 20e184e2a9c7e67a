package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/watch"
	"github.com/tatianab/photo-game/internal/web"
)

var (
	serveAddr     string
	watchExisting bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generator in the browser",
	Long: `Starts a web server with an upload form. Each upload is generated in the
background and its progress streams to the page. Saved games are listed on
the front page.`,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Generate a game for every photo added to a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Also generate photos already in the directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Addr
	}

	server := web.NewServer(a.svc, logger)
	err = server.ListenAndServe(cmd.Context(), addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	w := watch.New(args[0], a.svc, logger, watch.Options{Existing: watchExisting},
		func(path string, run *models.Run, err error) {
			if err != nil {
				fmt.Fprintf(out, "%s: failed: %v\n", path, err)
				return
			}
			fmt.Fprintf(out, "%s: %s (%s)\n", path, run.Spec.Title, run.ID)
		})
	logger.Info("press Ctrl+C to stop", zap.String("dir", args[0]))
	return w.Run(cmd.Context())
}
