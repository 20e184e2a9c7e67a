package web

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/llm/llmtest"
	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/service"
	"github.com/tatianab/photo-game/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 30), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/games", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newService(t *testing.T) *service.Service {
	t.Helper()
	gen := llmtest.New(
		llmtest.Rule{Match: "Analyze this image", Reply: "**SCENE TYPE**: <garden>"},
		llmtest.Rule{Match: "game specification", Reply: "{}"},
		llmtest.Rule{Match: "HTML body", Reply: `<div id="gameContainer"><canvas id="gameCanvas" width="800" height="600"></canvas></div>`},
		llmtest.Rule{Match: "Generate CSS", Reply: "#gameCanvas { border: 1px solid; }"},
		llmtest.Rule{Match: "JavaScript game logic", Reply: "function startGame() {}"},
	)
	eng := engine.NewEngine(gen, nil, engine.DefaultOptions())
	return service.New(eng, nil, t.TempDir(), nil)
}

func TestCreateGameFlow(t *testing.T) {
	srv := NewServer(newService(t), nil)
	defer srv.Close()
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "photo", "garden.png", pngBytes(t)))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/jobs/"), loc)

	srv.Wait()
	job, ok := srv.jobs.get(strings.TrimPrefix(loc, "/jobs/"))
	require.True(t, ok)
	snap := job.Snapshot()
	require.True(t, snap.Done)
	require.NoError(t, snap.Err)
	assert.Equal(t, "garden.png", snap.Source)
	assert.Equal(t, engine.StageDone, snap.Update.Stage)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, loc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sandbox="allow-scripts"`)
	assert.Contains(t, body, "&lt;garden&gt;")
	assert.NotContains(t, body, "EventSource", "finished jobs need no stream")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, loc+"/stream", nil))
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: done\n"))

	runURL := "/runs/" + snap.Run.ID
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, runURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GENERATION COMPLETE!")
	assert.Contains(t, rec.Body.String(), "<iframe")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, runURL+"/game.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sandbox allow-scripts", rec.Header().Get("Content-Security-Policy"))
	assert.Contains(t, rec.Body.String(), "function startGame() {}")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<!DOCTYPE html>"))
}

func TestCreateGameRejectsBadUploads(t *testing.T) {
	srv := NewServer(newService(t), nil)
	defer srv.Close()
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "photo", "notes.txt", []byte("not an image")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", "garden.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	srv := NewServer(newService(t), nil)
	defer srv.Close()
	h := srv.Handler()

	for _, path := range []string{"/jobs/nope", "/jobs/nope/stream", "/runs/nope", "/runs/nope/game.html"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

type fakeGenerator struct {
	runs    []store.RunSummary
	saved   *models.Run
	release chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, img *imaging.EncodedImage, source string, report engine.Reporter) (*models.Run, error) {
	report(engine.Update{Stage: engine.StageAnalyzed, Analysis: "a kitchen"})
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	run := &models.Run{ID: "run-1", Spec: models.DefaultSpec(), Document: "<!DOCTYPE html>"}
	report(engine.Update{Stage: engine.StageDone, Analysis: "a kitchen", Reflection: "GENERATION COMPLETE!"})
	return run, nil
}

func (f *fakeGenerator) Runs(ctx context.Context, limit int) ([]store.RunSummary, error) {
	return f.runs, nil
}

func (f *fakeGenerator) Load(id string) (*models.Run, error) {
	if f.saved == nil || f.saved.ID != id {
		return nil, store.ErrNotFound
	}
	return f.saved, nil
}

func TestHomeListsRuns(t *testing.T) {
	gen := &fakeGenerator{runs: []store.RunSummary{{
		ID:        "r1",
		Title:     "<Kitchen Dash>",
		CreatedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		JSIssues:  2,
	}}}
	srv := NewServer(gen, nil)
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `enctype="multipart/form-data"`)
	assert.Contains(t, body, `<a href="/runs/r1">&lt;Kitchen Dash&gt;</a>`)
	assert.Contains(t, body, "2026-10-16 09:00")
	assert.NotContains(t, body, "No games yet")
}

func TestPagesEscapeRunText(t *testing.T) {
	const (
		title  = `<script>alert("title")</script>`
		source = `"><img src=x onerror=alert(1)>.png`
	)
	spec := models.DefaultSpec()
	spec.Title = title
	gen := &fakeGenerator{
		runs: []store.RunSummary{{ID: "r1", Title: title, SourceImage: source}},
		saved: &models.Run{
			ID:          "r1",
			SourceImage: source,
			Analysis:    "<b>kitchen</b>",
			Spec:        spec,
			Document:    "<!DOCTYPE html><script>startGame();</script>",
		},
	}
	srv := NewServer(gen, nil)
	defer srv.Close()

	for _, path := range []string{"/", "/runs/r1"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		body := rec.Body.String()
		assert.NotContains(t, body, title, path)
		assert.Contains(t, body, "&lt;script&gt;alert(&#34;title&#34;)&lt;/script&gt;", path)
		assert.NotContains(t, body, "<img", path)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "&#34;&gt;&lt;img src=x onerror=alert(1)&gt;.png")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/r1", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "&lt;b&gt;kitchen&lt;/b&gt;")
	// The game itself only appears escaped inside the iframe srcdoc.
	assert.Contains(t, body, `srcdoc="&lt;!DOCTYPE html&gt;&lt;script&gt;startGame();&lt;/script&gt;"`)
	assert.NotContains(t, body, "<script>startGame();")
}

func TestStreamFollowsJob(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	srv := NewServer(gen, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	img, err := imaging.Encode(bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	job := srv.start(img, "kitchen.png")

	resp, err := ts.Client().Get(ts.URL + "/jobs/" + job.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan string, 10)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if ev, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- ev
			}
		}
	}()

	assert.Equal(t, "update", <-events)
	close(gen.release)
	for ev := range events {
		if ev == "done" {
			break
		}
	}
	srv.Wait()
	snap := job.Snapshot()
	assert.True(t, snap.Done)
	assert.Equal(t, "run-1", snap.Run.ID)
}

func TestCloseCancelsJobs(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	srv := NewServer(gen, nil)

	img, err := imaging.Encode(bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	job := srv.start(img, "kitchen.png")
	srv.Close()

	snap := job.Snapshot()
	assert.True(t, snap.Done)
	assert.ErrorIs(t, snap.Err, context.Canceled)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil))
	assert.Contains(t, rec.Body.String(), "Generation failed")
}

func TestJobStoreExpiresFinishedJobs(t *testing.T) {
	s := newJobStore()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	old := newJob("old.png")
	s.add(old, now)
	old.finish(nil, nil, now)

	running := newJob("running.png")
	s.add(running, now)

	s.add(newJob("new.png"), now.Add(2*time.Hour))
	_, ok := s.get(old.ID)
	assert.False(t, ok)
	_, ok = s.get(running.ID)
	assert.True(t, ok)
}
