package tui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/models"
)

type fakeGenerator struct {
	updates []engine.Update
	run     *models.Run
	err     error
	path    string
}

func (f *fakeGenerator) GenerateFile(ctx context.Context, path string, report engine.Reporter) (*models.Run, error) {
	f.path = path
	for _, u := range f.updates {
		report(u)
	}
	return f.run, f.err
}

func typePath(t *testing.T, m model, path string) model {
	t.Helper()
	m.textInput.SetValue(path)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	return next.(model)
}

// drain runs the generation synchronously and feeds every message back in.
func drain(t *testing.T, m model, path string) model {
	t.Helper()
	generate(m.ctx, m.gen, path, m.updates)()
	for {
		msg := waitForUpdate(m.updates)()
		if msg == nil {
			return m
		}
		next, _ := m.Update(msg)
		m = next.(model)
		if m.updates == nil {
			return m
		}
	}
}

func TestGenerateFlow(t *testing.T) {
	spec := models.DefaultSpec()
	gen := &fakeGenerator{
		updates: []engine.Update{
			{Stage: engine.StageStarted, Analysis: "Starting image analysis..."},
			{Stage: engine.StageAnalyzed, Analysis: "**SCENE TYPE**: beach", Reflection: "Step 1 complete!"},
			{Stage: engine.StageDone, Analysis: "**SCENE TYPE**: beach", Reflection: "GENERATION COMPLETE!"},
		},
		run: &models.Run{ID: "run-1", Spec: spec},
	}
	m := NewModel(context.Background(), gen, "/data/runs")
	m = typePath(t, m, "beach.jpg")
	assert.Equal(t, stateGenerating, m.state)
	assert.Empty(t, m.textInput.Value())

	m = drain(t, m, "beach.jpg")
	assert.Equal(t, "beach.jpg", gen.path)
	assert.Equal(t, stateDone, m.state)
	assert.Equal(t, engine.StageDone, m.stage)
	assert.Equal(t, "GENERATION COMPLETE!", m.reflection)
	assert.Equal(t, "**SCENE TYPE**: beach", m.analysis)
	assert.Equal(t, filepath.Join("/data/runs", "run-1", "game.html"), m.savedPath())
	assert.Contains(t, m.View(), "Photo Adventure")
	assert.Contains(t, m.View(), "run-1")
}

func TestGenerateError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("analysis failed: quota")}
	m := typePath(t, NewModel(context.Background(), gen, "runs"), "x.png")
	m = drain(t, m, "x.png")
	assert.Equal(t, stateError, m.state)
	assert.Contains(t, m.View(), "quota")
}

func TestEnterIgnoredWhileGenerating(t *testing.T) {
	m := typePath(t, NewModel(context.Background(), &fakeGenerator{}, "runs"), "a.jpg")
	m.textInput.SetValue("b.jpg")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, stateGenerating, next.(model).state)
}

func TestEmptyInputAndQuit(t *testing.T) {
	m := NewModel(context.Background(), &fakeGenerator{}, "runs")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, stateInputPath, next.(model).state)

	m.textInput.SetValue("/quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "Analyzing photo", stageLabel(""))
	assert.Equal(t, "Designing game", stageLabel(engine.StageAnalyzed))
	assert.Equal(t, "Writing game logic", stageLabel(engine.StageCSS))
	assert.Equal(t, "Done", stageLabel(engine.StageDone))
}
