package engine

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/llm"
)

//go:embed prompts/analyze_image.txt
var analyzeImagePrompt string

//go:embed prompts/game_spec.txt
var gameSpecPrompt string

//go:embed prompts/repair_positions.txt
var repairPositionsPrompt string

//go:embed prompts/html_component.txt
var htmlComponentPrompt string

//go:embed prompts/css_component.txt
var cssComponentPrompt string

//go:embed prompts/js_component.txt
var jsComponentPrompt string

// Output budgets per call. The script is by far the largest artifact.
const (
	analysisMaxTokens = 2000
	specMaxTokens     = 2000
	repairMaxTokens   = 1000
	htmlMaxTokens     = 1000
	cssMaxTokens      = 1000
	jsMaxTokens       = 3500
)

// Options tune the pipeline.
type Options struct {
	// MaxRepairAttempts bounds the position check loop. Every attempt but
	// the last may issue one repair call.
	MaxRepairAttempts int
	// Clearance is the distance collectibles are asked to keep from obstacles.
	Clearance int
	// TimeLimit is how long a round lasts, as the script prompt phrases it.
	TimeLimit string
}

func DefaultOptions() Options {
	return Options{
		MaxRepairAttempts: 2,
		Clearance:         20,
		TimeLimit:         "2 minutes",
	}
}

// Engine drives the photo-to-game pipeline against a Generator.
type Engine struct {
	gen    llm.Generator
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewEngine(gen llm.Generator, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRepairAttempts <= 0 {
		opts.MaxRepairAttempts = DefaultOptions().MaxRepairAttempts
	}
	if opts.TimeLimit == "" {
		opts.TimeLimit = DefaultOptions().TimeLimit
	}
	return &Engine{
		gen:    gen,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

func (e *Engine) Close() error {
	return e.gen.Close()
}

var promptFuncs = template.FuncMap{"join": strings.Join}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(promptFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StripFence extracts the body of a markdown code fence. Tagged fences are
// tried in order before a bare ``` fence. Text without a fence is returned
// trimmed.
func StripFence(text string, tags ...string) string {
	for _, tag := range tags {
		if after, found := cutTagged(text, "```"+tag); found {
			body, _, _ := strings.Cut(after, "```")
			return strings.TrimSpace(body)
		}
	}
	if _, after, found := strings.Cut(text, "```"); found {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(dropFenceTag(body))
	}
	return strings.TrimSpace(text)
}

// cutTagged returns the text after the first marker that is not followed by
// more of a word, so "```js" does not match "```jsx".
func cutTagged(text, marker string) (string, bool) {
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			return "", false
		}
		after := text[i+len(marker):]
		if after == "" || !isWordByte(after[0]) {
			return after, true
		}
		text = after
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// dropFenceTag removes an unexpected language tag such as "jsx" left on the
// first line of a bare fence.
func dropFenceTag(body string) string {
	first, rest, found := strings.Cut(body, "\n")
	if !found {
		return body
	}
	tag := strings.TrimSpace(first)
	if tag == "" || strings.ContainsAny(tag, " <{[(;:=\"'") {
		return body
	}
	return rest
}
