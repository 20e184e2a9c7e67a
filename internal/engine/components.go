package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/llm"
	"github.com/tatianab/photo-game/internal/models"
)

// ImagePlaceholder is what the script prompt asks the model to use as the
// background image src. It is swapped for the real photo afterwards.
const ImagePlaceholder = "PLACEHOLDER_IMAGE_DATA"

// GenerateHTML produces the page body holding the contract elements.
func (e *Engine) GenerateHTML(ctx context.Context, spec *models.GameSpec) (string, error) {
	prompt, err := render("html_component", htmlComponentPrompt, componentData{
		Spec:   spec,
		Width:  models.CanvasWidth,
		Height: models.CanvasHeight,
	})
	if err != nil {
		return "", err
	}

	text, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: htmlMaxTokens})
	if err != nil {
		return "", fmt.Errorf("generate html: %w", err)
	}
	html := StripFence(text, "html")
	e.logger.Info("html generated", zap.Int("chars", len(html)))
	return html, nil
}

// GenerateCSS produces the stylesheet for the contract elements.
func (e *Engine) GenerateCSS(ctx context.Context, spec *models.GameSpec) (string, error) {
	prompt, err := render("css_component", cssComponentPrompt, componentData{Spec: spec})
	if err != nil {
		return "", err
	}

	text, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: cssMaxTokens})
	if err != nil {
		return "", fmt.Errorf("generate css: %w", err)
	}
	css := StripFence(text, "css")
	e.logger.Info("css generated", zap.Int("chars", len(css)))
	return css, nil
}

// GenerateJS produces the game logic, injects the photo as the background and
// makes sure the game starts once the page has loaded.
func (e *Engine) GenerateJS(ctx context.Context, spec *models.GameSpec, img *imaging.EncodedImage) (string, error) {
	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", err
	}

	prompt, err := render("js_component", jsComponentPrompt, componentData{
		Spec:        spec,
		SpecJSON:    string(specJSON),
		Placeholder: ImagePlaceholder,
		TimeLimit:   e.opts.TimeLimit,
	})
	if err != nil {
		return "", err
	}

	text, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: jsMaxTokens})
	if err != nil {
		return "", fmt.Errorf("generate js: %w", err)
	}

	js := StripFence(text, "javascript", "js")
	js, injected := InjectImage(js, img.DataURL())
	if !injected {
		e.logger.Warn("background image could not be injected into script")
	}
	js = EnsureStart(js)
	js += debugBlock(spec.Contracts.CanvasID)

	e.logger.Info("javascript generated", zap.Int("chars", len(js)), zap.Bool("image_injected", injected))
	return js, nil
}

type componentData struct {
	Spec        *models.GameSpec
	SpecJSON    string
	Width       int
	Height      int
	Placeholder string
	TimeLimit   string
}

var inlinedImageRe = regexp.MustCompile(`bgImage\.src\s*=\s*['"]data:image/jpeg;base64,[^'"]*['"]`)

// InjectImage replaces the placeholder with dataURL. When the model ignored
// the placeholder and inlined its own data: URL, that literal is overwritten
// instead. It reports whether the real image ended up in the script.
func InjectImage(js, dataURL string) (string, bool) {
	if strings.Contains(js, ImagePlaceholder) {
		return strings.ReplaceAll(js, ImagePlaceholder, dataURL), true
	}
	if inlinedImageRe.MatchString(js) {
		return inlinedImageRe.ReplaceAllLiteralString(js, "bgImage.src = '"+dataURL+"'"), true
	}
	return js, false
}

const startBlock = `

// Force start
if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', startGame);
} else {
    startGame();
}`

// startCallRe matches a call of startGame, not its definition or a method of
// the same name.
var startCallRe = regexp.MustCompile(`(^|[^\w.$])startGame\(\)`)

// EnsureStart appends a start call unless one of the last ten lines of the
// script already calls startGame().
func EnsureStart(js string) string {
	lines := strings.Split(js, "\n")
	for _, line := range lines[max(0, len(lines)-10):] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "//") || strings.Contains(line, "function startGame") {
			continue
		}
		if startCallRe.MatchString(line) {
			return js
		}
	}
	return js + startBlock
}

func debugBlock(canvasID string) string {
	return fmt.Sprintf(`

// Debug logging
console.log('Script loaded');
console.log('Canvas:', document.getElementById('%s'));`, canvasID)
}
