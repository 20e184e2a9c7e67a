package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/llm/llmtest"
	"github.com/tatianab/photo-game/internal/models"
)

const (
	matchAnalyze = "Analyze this image for creating a 2D browser game"
	matchSpec    = "create a game specification in JSON format"
	matchRepair  = "Fix the collectible positions"
	matchHTML    = "Generate the HTML body structure"
	matchCSS     = "Generate CSS for this game"
	matchJS      = "Generate JavaScript game logic"
)

const specReply = "Here you go:\n```json\n" + `{
  "title": "Kitchen Dash",
  "theme": "Collect the ingredients",
  "contracts": {"canvas_id": "gameCanvas", "score_id": "score", "timer_id": "timer", "container_id": "gameContainer"},
  "player": {"startX": 50, "startY": 500, "size": 25, "speed": 4},
  "obstacles": [{"name": "Table", "x": 200, "y": 300, "width": 150, "height": 100, "color": "#8B4513"}],
  "collectibles": [{"name": "Egg", "x": 400, "y": 200, "size": 15, "color": "#FFD700"}],
  "goal": {"name": "Oven", "x": 700, "y": 50, "width": 80, "height": 60}
}` + "\n```\nEnjoy!"

const htmlReply = "```html\n" + `<div id="gameContainer">
  <h1>Kitchen Dash</h1>
  <p>Score: <span id="score">0/1</span> Time: <span id="timer">120</span></p>
  <canvas id="gameCanvas" width="800" height="600"></canvas>
</div>` + "\n```"

const cssReply = "```css\n" + `body { background: #1a1a1a; color: #eee; }
#gameContainer { text-align: center; }
#gameCanvas { border: 3px solid #00ff88; border-radius: 8px; }` + "\n```"

const jsReply = "```javascript\n" + `const canvas = document.getElementById('gameCanvas');
const ctx = canvas.getContext('2d');
const scoreEl = document.getElementById('score');
const timerEl = document.getElementById('timer');
const bgImage = new Image();
bgImage.src = 'PLACEHOLDER_IMAGE_DATA';
let running = false;
function startGame() { if (running) return; running = true; requestAnimationFrame(gameLoop); }
function gameLoop() { draw(); requestAnimationFrame(gameLoop); }
function draw() { ctx.drawImage(bgImage, 0, 0, 800, 600); }
startGame();` + "\n```"

func testImage() *imaging.EncodedImage {
	return &imaging.EncodedImage{Data: []byte("IMAGE"), Base64: "SU1BR0U=", Width: 4, Height: 3}
}

func happyRules() []llmtest.Rule {
	return []llmtest.Rule{
		{Match: matchAnalyze, Reply: "**SCENE TYPE**: kitchen"},
		{Match: matchSpec, Reply: specReply},
		{Match: matchHTML, Reply: htmlReply},
		{Match: matchCSS, Reply: cssReply},
		{Match: matchJS, Reply: jsReply},
	}
}

func newTestEngine(gen *llmtest.Scripted) *Engine {
	e := NewEngine(gen, zap.NewNop(), DefaultOptions())
	e.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		tags []string
		want string
	}{
		{"no fence", "  {\"a\":1}\n", []string{"json"}, `{"a":1}`},
		{"tagged", "text\n```json\n{\"a\":1}\n```\nmore", []string{"json"}, `{"a":1}`},
		{"bare", "```\n[1,2]\n```", []string{"json"}, "[1,2]"},
		{"second tag", "```js\nfoo();\n```", []string{"javascript", "js"}, "foo();"},
		{"unexpected tag", "```jsx\nfoo();\n```", []string{"javascript", "js"}, "foo();"},
		{"unterminated", "```css\nbody {}", []string{"css"}, "body {}"},
		{"code on first line", "```body { margin: 0 }```", []string{"css"}, "body { margin: 0 }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFence(tt.in, tt.tags...))
		})
	}
}

func TestVerifyPositions(t *testing.T) {
	spec := &models.GameSpec{
		Obstacles: []models.Obstacle{
			{Name: "Table", X: 200, Y: 300, Width: 150, Height: 100},
			{Name: "Rug", X: 180, Y: 280, Width: 100, Height: 100},
		},
		Collectibles: []models.Collectible{
			{Name: "Egg", X: 225, Y: 325},
			{Name: "Edge", X: 200, Y: 350},
			{Name: "Free", X: 600, Y: 100},
		},
	}

	issues := VerifyPositions(spec)
	require.Len(t, issues, 3)
	assert.Equal(t, "Egg at (225,325) is inside Table [200,300,350,400]", issues[0].String())
	assert.Equal(t, "Egg at (225,325) is inside Rug [180,280,280,380]", issues[1].String())
	// On Table's left edge, inside Rug.
	assert.Equal(t, "Edge", issues[2].Collectible)
	assert.Equal(t, "Rug", issues[2].Obstacle)
}

func TestGenerateSpec(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchSpec, Reply: specReply})
	e := newTestEngine(gen)

	spec, err := e.GenerateSpec(context.Background(), "a kitchen")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen Dash", spec.Title)
	require.Len(t, spec.Collectibles, 1)
	assert.Equal(t, "Egg", spec.Collectibles[0].Name)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "a kitchen")
	assert.Contains(t, reqs[0].Prompt, "at least 20 pixels")
	assert.Nil(t, reqs[0].Image)
	assert.Equal(t, specMaxTokens, reqs[0].MaxTokens)
}

func TestGenerateSpecFallsBackToDefault(t *testing.T) {
	for _, reply := range []string{
		"I cannot do that",
		"null",
		"```json\nnull\n```",
	} {
		gen := llmtest.New(llmtest.Rule{Match: matchSpec, Reply: reply})
		spec, err := newTestEngine(gen).GenerateSpec(context.Background(), "x")
		require.NoError(t, err, reply)
		assert.Equal(t, models.DefaultSpec(), spec, reply)
	}
}

func TestGenerateSpecCallError(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchSpec, Err: errors.New("boom")})
	_, err := newTestEngine(gen).GenerateSpec(context.Background(), "x")
	assert.ErrorContains(t, err, "boom")
}

func overlappingSpec() *models.GameSpec {
	spec := models.DefaultSpec()
	spec.Collectibles = []models.Collectible{
		{Name: "Coin", X: 350, Y: 350, Size: 15, Color: "#FFD700"},
		{Name: "Gem", X: 100, Y: 100, Size: 10, Color: "#00FFFF"},
	}
	return spec
}

func TestCheckAndRepairFixes(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{
		Match: matchRepair,
		Reply: "```json\n[{\"name\": \"Coin\", \"x\": 500, \"y\": 200, \"size\": 99, \"color\": \"#000\"}]\n```",
	})
	e := newTestEngine(gen)

	spec := overlappingSpec()
	fixed, issues := e.CheckAndRepair(context.Background(), spec)

	assert.Empty(t, issues)
	assert.Equal(t, 1, gen.Count(matchRepair))
	assert.Equal(t, float64(500), fixed.Collectibles[0].X)
	assert.Equal(t, float64(200), fixed.Collectibles[0].Y)
	// Only positions change.
	assert.Equal(t, float64(15), fixed.Collectibles[0].Size)
	assert.Equal(t, "#FFD700", fixed.Collectibles[0].Color)
	assert.Equal(t, float64(100), fixed.Collectibles[1].X)
	// The input is left alone.
	assert.Equal(t, float64(350), spec.Collectibles[0].X)

	prompt := gen.Requests()[0].Prompt
	assert.Contains(t, prompt, "- Coin at (350,350) is inside Obstacle [300,300,450,400]")
	assert.Contains(t, prompt, "Generate NEW positions for these collectibles: Coin")
}

func TestCheckAndRepairIsBounded(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{
		Match: matchRepair,
		Reply: `[{"name": "Coin", "x": 320, "y": 320}]`,
	})
	e := newTestEngine(gen)

	fixed, issues := e.CheckAndRepair(context.Background(), overlappingSpec())
	require.Len(t, issues, 1)
	assert.Equal(t, "Coin at (320,320) is inside Obstacle [300,300,450,400]", issues[0].String())
	assert.Equal(t, 1, gen.Count(matchRepair))
	assert.Equal(t, float64(320), fixed.Collectibles[0].X)
}

func TestRepairKeepsSpecOnBadReply(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchRepair, Reply: "sorry"})
	e := newTestEngine(gen)

	spec := overlappingSpec()
	got := e.RepairPositions(context.Background(), spec, VerifyPositions(spec))
	assert.Same(t, spec, got)
}

func TestCheckAndRepairCleanSpecMakesNoCalls(t *testing.T) {
	gen := llmtest.New()
	fixed, issues := newTestEngine(gen).CheckAndRepair(context.Background(), models.DefaultSpec())
	assert.Empty(t, issues)
	assert.Empty(t, gen.Requests())
	assert.Equal(t, models.DefaultSpec(), fixed)
}

func TestInjectImage(t *testing.T) {
	const url = "data:image/jpeg;base64,REAL"

	js, ok := InjectImage("bgImage.src = 'PLACEHOLDER_IMAGE_DATA';", url)
	assert.True(t, ok)
	assert.Equal(t, "bgImage.src = 'data:image/jpeg;base64,REAL';", js)

	js, ok = InjectImage(`bgImage.src = "data:image/jpeg;base64,/9j/FAKE";`, url)
	assert.True(t, ok)
	assert.Equal(t, "bgImage.src = 'data:image/jpeg;base64,REAL';", js)

	js, ok = InjectImage("const x = 1;", url)
	assert.False(t, ok)
	assert.Equal(t, "const x = 1;", js)
}

func TestEnsureStart(t *testing.T) {
	js := "function startGame() {}\nstartGame();"
	assert.Equal(t, js, EnsureStart(js))

	lines := []string{"function startGame() {}", "startGame();"}
	for i := 0; i < 12; i++ {
		lines = append(lines, "// filler")
	}
	far := strings.Join(lines, "\n")
	out := EnsureStart(far)
	assert.True(t, strings.HasPrefix(out, far))
	assert.Contains(t, out, "document.addEventListener('DOMContentLoaded', startGame);")
}

func TestEnsureStartIgnoresDefinition(t *testing.T) {
	js := "function draw() {}\nfunction startGame() {\n  requestAnimationFrame(gameLoop);\n}"
	out := EnsureStart(js)
	assert.True(t, strings.HasPrefix(out, js))
	assert.Contains(t, out, "startGame();")

	for _, js := range []string{
		"// startGame();",
		"game.startGame();",
		"restartGame();",
	} {
		assert.NotEqual(t, js, EnsureStart(js), js)
	}

	called := "function startGame() {}\nwindow.onload = () => { startGame(); };"
	assert.Equal(t, called, EnsureStart(called))
}

func TestHeadKeepsRunes(t *testing.T) {
	assert.Equal(t, "abc", head("abc", 10))
	assert.Equal(t, "ab", head("abcd", 2))
	// "é" is two bytes; cutting after its first byte backs off to "a".
	assert.Equal(t, "a", head("aéb", 2))
	assert.Equal(t, "aé", head("aéb", 3))
}

func TestGenerateJSInjectsImageAndStart(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchJS, Reply: jsReply})
	e := newTestEngine(gen)

	js, err := e.GenerateJS(context.Background(), models.DefaultSpec(), testImage())
	require.NoError(t, err)
	assert.NotContains(t, js, ImagePlaceholder)
	assert.Contains(t, js, "bgImage.src = 'data:image/jpeg;base64,SU1BR0U=';")
	assert.Contains(t, js, "console.log('Canvas:', document.getElementById('gameCanvas'));")
	assert.False(t, strings.HasPrefix(js, "```"))

	prompt := gen.Requests()[0].Prompt
	assert.Contains(t, prompt, "bgImage.src = 'PLACEHOLDER_IMAGE_DATA';")
	assert.Contains(t, prompt, `"title": "Photo Adventure"`)
	assert.Contains(t, prompt, "Game should finish in 2 minutes")
	assert.Equal(t, jsMaxTokens, gen.Requests()[0].MaxTokens)
}

func TestGenerateHTMLPrompt(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchHTML, Reply: htmlReply})
	spec := models.DefaultSpec()
	spec.Collectibles = append(spec.Collectibles, models.Collectible{Name: "Two"})

	html, err := newTestEngine(gen).GenerateHTML(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(html, `<div id="gameContainer">`))

	prompt := gen.Requests()[0].Prompt
	assert.Contains(t, prompt, `Score: X/2`)
	assert.Contains(t, prompt, `(must be 800x600)`)
	assert.Contains(t, prompt, `Start with <div id="gameContainer">`)
}

func TestRun(t *testing.T) {
	gen := llmtest.New(happyRules()...)
	e := newTestEngine(gen)

	var updates []Update
	run, err := e.Run(context.Background(), testImage(), "kitchen.jpg", func(u Update) {
		updates = append(updates, u)
	})
	require.NoError(t, err)

	var stages []Stage
	for _, u := range updates {
		stages = append(stages, u.Stage)
	}
	assert.Equal(t, []Stage{
		StageStarted, StageAnalyzed, StageSpecified, StageHTML,
		StageCSS, StageJS, StageComponents, StageDone,
	}, stages)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "kitchen.jpg", run.SourceImage)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), run.CreatedAt)
	assert.Equal(t, "**SCENE TYPE**: kitchen", run.Analysis)
	assert.Equal(t, "Kitchen Dash", run.Spec.Title)
	assert.Empty(t, run.Issues.Positions)
	assert.Zero(t, run.Issues.Total(), "issues: %+v", run.Issues)

	assert.Contains(t, run.Document, "<title>Kitchen Dash</title>")
	assert.Contains(t, run.Document, "data:image/jpeg;base64,SU1BR0U=")

	last := updates[len(updates)-1]
	assert.True(t, strings.HasPrefix(last.Preview, "<iframe"))
	assert.Contains(t, last.Reflection, "GENERATION COMPLETE!")
	assert.Contains(t, last.Reflection, "Issues: 0")

	reqs := gen.Requests()
	require.Len(t, reqs, 5)
	require.NotNil(t, reqs[0].Image, "analysis must carry the photo")
	assert.Equal(t, analysisMaxTokens, reqs[0].MaxTokens)
	for _, r := range reqs[1:] {
		assert.Nil(t, r.Image)
	}
}

func TestRunAnalysisFailureStops(t *testing.T) {
	gen := llmtest.New(llmtest.Rule{Match: matchAnalyze, Err: errors.New("quota exceeded")})
	e := newTestEngine(gen)

	var updates []Update
	run, err := e.Run(context.Background(), testImage(), "", func(u Update) { updates = append(updates, u) })
	require.Error(t, err)
	assert.Nil(t, run)
	require.Len(t, updates, 2)
	assert.Contains(t, updates[1].Analysis, "quota exceeded")
	assert.Len(t, gen.Requests(), 1)
}

func TestRunDegradesOnComponentFailure(t *testing.T) {
	rules := happyRules()
	rules[2] = llmtest.Rule{Match: matchHTML, Err: errors.New("timeout")}
	gen := llmtest.New(rules...)

	run, err := newTestEngine(gen).Run(context.Background(), testImage(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"HTML is missing"}, run.Issues.HTML)
	assert.Empty(t, run.Issues.CSS)
	assert.Empty(t, run.Issues.JS)
	assert.Equal(t, 1, run.Issues.Total())
}

func TestRunSpecFailureUsesDefault(t *testing.T) {
	rules := happyRules()
	rules[1] = llmtest.Rule{Match: matchSpec, Err: errors.New("overloaded")}
	gen := llmtest.New(rules...)

	run, err := newTestEngine(gen).Run(context.Background(), testImage(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Photo Adventure", run.Spec.Title)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := llmtest.New(happyRules()...)
	e := newTestEngine(gen)

	_, err := e.Run(ctx, testImage(), "", func(u Update) {
		if u.Stage == StageAnalyzed {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gen.Requests(), 1)
}

func TestRunRepairsPositions(t *testing.T) {
	overlap := strings.Replace(specReply, `"x": 400, "y": 200`, `"x": 250, "y": 350`, 1)
	rules := append(happyRules(),
		llmtest.Rule{Match: matchRepair, Reply: `[{"name": "Egg", "x": 400, "y": 150}]`})
	rules[1] = llmtest.Rule{Match: matchSpec, Reply: overlap}
	gen := llmtest.New(rules...)

	run, err := newTestEngine(gen).Run(context.Background(), testImage(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, run.Issues.Positions)
	assert.Equal(t, float64(150), run.Spec.Collectibles[0].Y)
	assert.Equal(t, 1, gen.Count(matchRepair))
}

func TestClose(t *testing.T) {
	gen := llmtest.New()
	require.NoError(t, newTestEngine(gen).Close())
	assert.True(t, gen.Closed())
}
