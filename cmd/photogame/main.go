package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tatianab/photo-game/internal/config"
	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/llm"
	"github.com/tatianab/photo-game/internal/service"
	"github.com/tatianab/photo-game/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "photogame",
	Short: "Turn a photo into a playable browser game",
	Long: `photogame sends a photo through a chain of model calls: scene analysis,
a JSON game design, position repair, then separate HTML, CSS and JavaScript
components. The pieces are checked, stitched into one standalone page and
saved under the data directory.

Run without arguments to start the interactive terminal UI.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTUI,
}

// newLogger builds the production logger. The terminal UI owns the screen,
// so it logs to a file in the data directory instead of stderr.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if cmd == rootCmd || cmd.Name() == "tui" {
		settings, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
			return nil, err
		}
		logFile := filepath.Join(settings.DataDir, "photogame.log")
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	return cfg.Build()
}

func init() {
	// Assigned here rather than in the literal to break the
	// rootCmd -> newLogger -> rootCmd initialization cycle.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .photogame/config.yaml)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is everything a generating command needs.
type app struct {
	cfg     *config.Config
	svc     *service.Service
	history *store.SQLiteStore
}

// openApp wires the configured model backend, the pipeline and the run
// history.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	gen, err := llm.New(ctx, cfg.LLM())
	if err != nil {
		return nil, err
	}
	logger.Debug("model backend ready",
		zap.String("provider", string(cfg.Provider)),
		zap.String("model", cfg.LLM().Model))

	eng := engine.NewEngine(gen, logger, engine.Options{
		MaxRepairAttempts: cfg.MaxRepairAttempts,
		Clearance:         engine.DefaultOptions().Clearance,
		TimeLimit:         cfg.TimeLimit,
	})

	history, err := store.Open(cfg.DatabasePath())
	if err != nil {
		eng.Close()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		svc:     service.New(eng, history, cfg.RunsDir(), logger),
		history: history,
	}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		logger.Warn("failed to close model backend", zap.Error(err))
	}
	if err := a.history.Close(); err != nil {
		logger.Warn("failed to close history", zap.Error(err))
	}
}
