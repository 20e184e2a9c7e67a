package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/assemble"
	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/models"
	"github.com/tatianab/photo-game/internal/verify"
)

// Stage names a point in the pipeline at which an Update is emitted.
type Stage string

const (
	StageStarted    Stage = "started"
	StageAnalyzed   Stage = "analyzed"
	StageSpecified  Stage = "specified"
	StageHTML       Stage = "html"
	StageCSS        Stage = "css"
	StageJS         Stage = "js"
	StageComponents Stage = "components"
	StageDone       Stage = "done"
)

// Update is a progress snapshot. Preview is an HTML fragment fit for display:
// a status line while working, the sandboxed game once done.
type Update struct {
	Stage      Stage
	Analysis   string
	Reflection string
	Preview    string
}

// Reporter receives updates in order. It may be nil.
type Reporter func(Update)

// Run executes the whole pipeline for one photo. Only a failed analysis stops
// it; later failures degrade to the default spec or a missing artifact and
// show up as issues on the returned run.
func (e *Engine) Run(ctx context.Context, img *imaging.EncodedImage, source string, report Reporter) (*models.Run, error) {
	if report == nil {
		report = func(Update) {}
	}
	run := &models.Run{
		ID:          uuid.NewString(),
		CreatedAt:   e.now(),
		SourceImage: source,
	}
	logger := e.logger.With(zap.String("run", run.ID))
	logger.Info("starting game generation", zap.String("source", source))

	report(Update{
		Stage:    StageStarted,
		Analysis: "Starting image analysis...",
		Preview:  status("Processing..."),
	})

	analysis, err := e.AnalyzeImage(ctx, img)
	if err != nil {
		report(Update{
			Stage:    StageAnalyzed,
			Analysis: "Error: " + err.Error(),
			Preview:  errorStatus("Analysis failed"),
		})
		return nil, err
	}
	run.Analysis = analysis
	report(Update{
		Stage:      StageAnalyzed,
		Analysis:   analysis,
		Reflection: "Step 1 complete!\nGenerating game specification...",
		Preview:    status("Designing game mechanics..."),
	})

	spec, err := e.GenerateSpec(ctx, analysis)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logger.Warn("spec generation failed, using default spec", zap.Error(err))
		spec = models.DefaultSpec()
	}
	spec, positionIssues := e.CheckAndRepair(ctx, spec)
	run.Spec = spec
	for _, issue := range positionIssues {
		run.Issues.Positions = append(run.Issues.Positions, issue.String())
	}
	report(Update{
		Stage:      StageSpecified,
		Analysis:   analysis,
		Reflection: specReflection(spec, run.Issues.Positions),
		Preview:    status(fmt.Sprintf("Building %s...", spec.Title)),
	})

	html, err := e.GenerateHTML(ctx, spec)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	htmlOK := componentOK("html", err, logger)
	run.HTML = html
	run.Issues.HTML = verify.HTML(html, htmlOK, spec.Contracts)
	report(Update{
		Stage:      StageHTML,
		Analysis:   analysis,
		Reflection: htmlReflection(spec, run.Issues.HTML),
		Preview:    successStatus(fmt.Sprintf("HTML ready! (%d chars)", len(html))),
	})

	css, err := e.GenerateCSS(ctx, spec)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	cssOK := componentOK("css", err, logger)
	run.CSS = css
	run.Issues.CSS = verify.CSS(css, cssOK, spec.Contracts)
	report(Update{
		Stage:      StageCSS,
		Analysis:   analysis,
		Reflection: cssReflection(run.Issues),
		Preview:    status("Adding game logic..."),
	})

	js, err := e.GenerateJS(ctx, spec, img)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	jsOK := componentOK("js", err, logger)
	run.JS = js
	run.Issues.JS = verify.JS(js, jsOK, spec.Contracts)
	report(Update{
		Stage:      StageJS,
		Analysis:   analysis,
		Reflection: jsReflection(run.Issues),
		Preview:    status("Assembling components..."),
	})

	report(Update{
		Stage:      StageComponents,
		Analysis:   analysis,
		Reflection: componentsReflection(run),
		Preview:    successStatus("Ready to assemble!"),
	})

	doc, err := assemble.Document(spec.Title, html, css, js)
	if err != nil {
		return nil, fmt.Errorf("assemble game: %w", err)
	}
	run.Document = doc

	report(Update{
		Stage:      StageDone,
		Analysis:   analysis,
		Reflection: Summary(run),
		Preview:    assemble.Sandbox(doc),
	})

	logger.Info("game generation complete",
		zap.String("title", spec.Title),
		zap.Int("document_chars", len(doc)),
		zap.Int("issues", run.Issues.Total()),
		zap.Int("position_issues", len(run.Issues.Positions)))
	return run, nil
}

func componentOK(kind string, err error, logger *zap.Logger) bool {
	if err != nil {
		logger.Warn("component generation failed", zap.String("component", kind), zap.Error(err))
		return false
	}
	return true
}
