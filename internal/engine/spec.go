package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/llm"
	"github.com/tatianab/photo-game/internal/models"
)

// AnalyzeImage asks the vision model to describe the photo as game material.
func (e *Engine) AnalyzeImage(ctx context.Context, img *imaging.EncodedImage) (string, error) {
	e.logger.Info("analyzing image", zap.Int("bytes", len(img.Data)), zap.Int("width", img.Width), zap.Int("height", img.Height))

	analysis, err := e.gen.Generate(ctx, llm.Request{
		Prompt:    analyzeImagePrompt,
		Image:     img,
		MaxTokens: analysisMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}

	e.logger.Info("analysis complete", zap.Int("chars", len(analysis)))
	return analysis, nil
}

// GenerateSpec turns a scene analysis into a game specification. A reply that
// is not valid JSON falls back to models.DefaultSpec; only a failed call is an
// error.
func (e *Engine) GenerateSpec(ctx context.Context, analysis string) (*models.GameSpec, error) {
	prompt, err := render("game_spec", gameSpecPrompt, struct {
		Analysis  string
		Clearance int
		Contracts models.Contracts
		Width     int
		Height    int
	}{
		Analysis:  analysis,
		Clearance: e.opts.Clearance,
		Contracts: models.DefaultContracts(),
		Width:     models.CanvasWidth,
		Height:    models.CanvasHeight,
	})
	if err != nil {
		return nil, err
	}

	text, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: specMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("generate spec: %w", err)
	}

	cleanJSON := StripFence(text, "json")
	var spec *models.GameSpec
	err = json.Unmarshal([]byte(cleanJSON), &spec)
	if err == nil && spec == nil {
		err = errors.New("spec is null")
	}
	if err != nil {
		e.logger.Warn("spec is not valid JSON, using default spec",
			zap.Error(err),
			zap.String("head", head(cleanJSON, 200)))
		return models.DefaultSpec(), nil
	}
	spec.Normalize()

	e.logger.Info("spec generated",
		zap.String("title", spec.Title),
		zap.Int("obstacles", len(spec.Obstacles)),
		zap.Int("collectibles", len(spec.Collectibles)))
	return spec, nil
}

// PositionIssue records a collectible whose center sits inside an obstacle.
type PositionIssue struct {
	Collectible string
	X, Y        float64
	Obstacle    string
	Bounds      models.Rect
}

func (p PositionIssue) String() string {
	return fmt.Sprintf("%s at (%s,%s) is inside %s %s",
		p.Collectible, models.Num(p.X), models.Num(p.Y), p.Obstacle, p.Bounds.Bounds())
}

// VerifyPositions reports every (collectible, obstacle) pair where the
// collectible's center lies strictly inside the obstacle.
func VerifyPositions(spec *models.GameSpec) []PositionIssue {
	var issues []PositionIssue
	for _, c := range spec.Collectibles {
		for _, o := range spec.Obstacles {
			r := o.Rect()
			if r.ContainsStrict(c.X, c.Y) {
				issues = append(issues, PositionIssue{
					Collectible: c.Name,
					X:           c.X,
					Y:           c.Y,
					Obstacle:    o.Name,
					Bounds:      r,
				})
			}
		}
	}
	return issues
}

// RepairPositions asks the model for new coordinates for the collectibles
// named in issues. Only x and y of collectibles matched by name change. Any
// failure leaves the spec as it was.
func (e *Engine) RepairPositions(ctx context.Context, spec *models.GameSpec, issues []PositionIssue) *models.GameSpec {
	var names []string
	seen := make(map[string]bool)
	var lines []string
	for _, issue := range issues {
		lines = append(lines, issue.String())
		if !seen[issue.Collectible] {
			seen[issue.Collectible] = true
			names = append(names, issue.Collectible)
		}
	}
	e.logger.Info("repairing collectible positions", zap.Strings("collectibles", names))

	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		e.logger.Warn("repair failed", zap.Error(err))
		return spec
	}

	prompt, err := render("repair_positions", repairPositionsPrompt, struct {
		SpecJSON  string
		Issues    []string
		Names     []string
		Clearance int
	}{
		SpecJSON:  string(specJSON),
		Issues:    lines,
		Names:     names,
		Clearance: e.opts.Clearance,
	})
	if err != nil {
		e.logger.Warn("repair failed", zap.Error(err))
		return spec
	}

	text, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: repairMaxTokens})
	if err != nil {
		e.logger.Warn("repair failed", zap.Error(err))
		return spec
	}

	var fixed []models.Collectible
	if err := json.Unmarshal([]byte(StripFence(text, "json")), &fixed); err != nil {
		e.logger.Warn("repair reply is not a JSON array", zap.Error(err))
		return spec
	}

	repaired := spec.Clone()
	for _, f := range fixed {
		for i := range repaired.Collectibles {
			if repaired.Collectibles[i].Name == f.Name {
				repaired.Collectibles[i].X = f.X
				repaired.Collectibles[i].Y = f.Y
				e.logger.Debug("moved collectible",
					zap.String("name", f.Name),
					zap.Float64("x", f.X),
					zap.Float64("y", f.Y))
			}
		}
	}
	return repaired
}

// CheckAndRepair runs the bounded position loop and returns the final spec
// together with whatever issues remain.
func (e *Engine) CheckAndRepair(ctx context.Context, spec *models.GameSpec) (*models.GameSpec, []PositionIssue) {
	var issues []PositionIssue
	for attempt := 0; attempt < e.opts.MaxRepairAttempts; attempt++ {
		issues = VerifyPositions(spec)
		e.logger.Info("position check",
			zap.Int("attempt", attempt+1),
			zap.Int("max", e.opts.MaxRepairAttempts),
			zap.Int("issues", len(issues)))
		if len(issues) == 0 {
			break
		}
		if attempt < e.opts.MaxRepairAttempts-1 {
			spec = e.RepairPositions(ctx, spec, issues)
		} else {
			e.logger.Warn("max repair attempts reached, continuing", zap.Int("issues", len(issues)))
		}
	}
	return spec, issues
}

// head returns at most n bytes of s without splitting a rune.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
