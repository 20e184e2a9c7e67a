// Package web serves the photo-to-game generator in the browser: upload a
// photo, follow the pipeline live, then play the result in a sandboxed frame.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/store"
)

// MaxUploadBytes caps the size of an uploaded photo.
const MaxUploadBytes = 20 << 20

// Generator is the part of the service the web UI drives.
type Generator interface {
	Generate(ctx context.Context, img *imaging.EncodedImage, source string, report engine.Reporter) (*models.Run, error)
	Runs(ctx context.Context, limit int) ([]store.RunSummary, error)
	Load(id string) (*models.Run, error)
}

type Server struct {
	gen    Generator
	jobs   *jobStore
	logger *zap.Logger
	now    func() time.Time

	// Jobs outlive the upload request; they run under ctx until Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(gen Generator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		gen:    gen,
		jobs:   newJobStore(),
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels running jobs and waits for them to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all started jobs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/", s.home)
		r.Post("/games", s.createGame)
		r.Get("/jobs/{id}", s.jobPage)
		r.Get("/runs/{id}", s.runPage)
		r.Get("/runs/{id}/game.html", s.runDocument)
	})
	r.Get("/jobs/{id}/stream", s.stream)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("url", "http://localhost"+addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		s.Close()
		return err
	}
}

func render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		http.Error(w, "failed to render", http.StatusInternalServerError)
	}
}

func renderToString(ctx context.Context, component templ.Component) string {
	var buf bytes.Buffer
	_ = component.Render(ctx, &buf)
	return buf.String()
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	runs, err := s.gen.Runs(r.Context(), 20)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
	}
	render(w, r, HomePage(runs))
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "photo required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := imaging.Encode(file)
	if err != nil {
		http.Error(w, "could not read photo: "+err.Error(), http.StatusBadRequest)
		return
	}

	job := s.start(img, filepath.Base(header.Filename))
	http.Redirect(w, r, "/jobs/"+job.ID, http.StatusSeeOther)
}

// start runs a generation in the background.
func (s *Server) start(img *imaging.EncodedImage, source string) *Job {
	job := newJob(source)
	s.jobs.add(job, s.now())
	s.logger.Info("job started", zap.String("job", job.ID), zap.String("source", source))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run, err := s.gen.Generate(s.ctx, img, source, job.report)
		if err != nil {
			s.logger.Warn("job failed", zap.String("job", job.ID), zap.Error(err))
		}
		job.finish(run, err, s.now())
	}()
	return job
}

func (s *Server) jobPage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	render(w, r, JobPage(job.Snapshot()))
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// A generation takes minutes; the server write timeout must not cut it.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := job.hub.subscribe()
	defer job.hub.unsubscribe(sub)

	// send writes the latest snapshot and reports whether the job is done.
	send := func() bool {
		snap := job.Snapshot()
		event := "update"
		if snap.Done {
			event = "done"
		}
		writeSSE(w, event, renderToString(r.Context(), ProgressFragment(snap)))
		flusher.Flush()
		return snap.Done
	}

	if send() {
		return
	}

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-sub:
			if !ok || send() {
				return
			}
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data string) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	for _, line := range strings.Split(data, "\n") {
		_, _ = w.Write([]byte("data: " + line + "\n"))
	}
	_, _ = w.Write([]byte("\n"))
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	run, err := s.gen.Load(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load run", zap.Error(err))
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func (s *Server) runPage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	title := "Photo Game"
	if run.Spec != nil {
		title = run.Spec.Title
	}
	render(w, r, RunPage(run.ID, title, run.Analysis, engine.Summary(run), run.Document))
}

// runDocument serves the standalone game. The CSP sandbox keeps it in the
// same cage as the iframe when opened directly.
func (s *Server) runDocument(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", run.ID+".html"))
	_, _ = w.Write([]byte(run.Document))
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
