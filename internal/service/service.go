// Package service runs the generation pipeline for one photo and keeps the
// result: files on disk and a row in the run history.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/store"
)

// History is the part of the run store the service needs.
type History interface {
	Record(ctx context.Context, run *models.Run, dir string) error
	List(ctx context.Context, limit int) ([]store.RunSummary, error)
	Get(ctx context.Context, id string) (store.RunSummary, error)
}

type Service struct {
	engine  *engine.Engine
	history History
	runsDir string
	logger  *zap.Logger
}

func New(eng *engine.Engine, history History, runsDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: eng, history: history, runsDir: runsDir, logger: logger}
}

// GenerateFile encodes the photo at path and generates a game from it.
func (s *Service) GenerateFile(ctx context.Context, path string, report engine.Reporter) (*models.Run, error) {
	img, err := imaging.EncodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo %s: %w", path, err)
	}
	return s.Generate(ctx, img, filepath.Base(path), report)
}

// GenerateReader is GenerateFile for uploads.
func (s *Service) GenerateReader(ctx context.Context, r io.Reader, name string, report engine.Reporter) (*models.Run, error) {
	img, err := imaging.Encode(r)
	if err != nil {
		return nil, fmt.Errorf("read photo %s: %w", name, err)
	}
	return s.Generate(ctx, img, name, report)
}

// Generate runs the pipeline, saves the run and records it. A save or record
// failure is logged; the generated run is still returned.
func (s *Service) Generate(ctx context.Context, img *imaging.EncodedImage, source string, report engine.Reporter) (*models.Run, error) {
	if img.Resized {
		s.logger.Info("photo resized", zap.Int("width", img.Width), zap.Int("height", img.Height))
	}

	run, err := s.engine.Run(ctx, img, source, report)
	if err != nil {
		return nil, err
	}

	dir, err := run.Save(s.runsDir)
	if err != nil {
		s.logger.Error("failed to save run", zap.String("run", run.ID), zap.Error(err))
		return run, nil
	}
	if s.history != nil {
		if err := s.history.Record(ctx, run, dir); err != nil {
			s.logger.Error("failed to record run", zap.String("run", run.ID), zap.Error(err))
		}
	}
	s.logger.Info("run saved", zap.String("run", run.ID), zap.String("dir", dir))
	return run, nil
}

// Runs lists the most recent runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]store.RunSummary, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, limit)
}

// Load returns a saved run by id.
func (s *Service) Load(id string) (*models.Run, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return nil, store.ErrNotFound
	}
	run, err := models.LoadRun(s.runsDir, id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	return run, err
}

func (s *Service) Close() error {
	return s.engine.Close()
}
