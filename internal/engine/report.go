package engine

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/tatianab/photo-game/internal/models"
)

func status(msg string) string {
	return `<p style="text-align: center; padding: 40px;">` + html.EscapeString(msg) + `</p>`
}

func successStatus(msg string) string {
	return `<p style="text-align: center; padding: 40px; color: #00ff88;">` + html.EscapeString(msg) + `</p>`
}

func errorStatus(msg string) string {
	return `<p style="color: red;">` + html.EscapeString(msg) + `</p>`
}

func prettySpec(spec *models.GameSpec) string {
	b, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", spec)
	}
	return string(b)
}

// mark is a check mark for a clean component and a warning sign otherwise.
func mark(issues []string) string {
	if len(issues) == 0 {
		return "✓"
	}
	return "⚠"
}

func verdict(issues []string) string {
	if len(issues) == 0 {
		return "Passed"
	}
	return fmt.Sprintf("%d issues", len(issues))
}

func specReflection(spec *models.GameSpec, positionIssues []string) string {
	check := "Verified"
	if len(positionIssues) > 0 {
		check = fmt.Sprintf("⚠ %d issues remaining", len(positionIssues))
	}
	return fmt.Sprintf("Step 2 complete!\n\nGame Spec:\n%s\n\nPosition Check: %s\n\nNext: Component generation...",
		prettySpec(spec), check)
}

func htmlReflection(spec *models.GameSpec, issues []string) string {
	var sb strings.Builder
	sb.WriteString(prettySpec(spec))
	fmt.Fprintf(&sb, "\n\nHTML Component: %s\n", verdict(issues))
	if len(issues) > 0 {
		sb.WriteString("Issues: " + strings.Join(issues, ", "))
	}
	sb.WriteString("\n\nNext: CSS and JS components...")
	return sb.String()
}

func cssReflection(issues models.Issues) string {
	return fmt.Sprintf("HTML: %s\nCSS: %s\nGenerating JavaScript...", mark(issues.HTML), verdict(issues.CSS))
}

func jsReflection(issues models.Issues) string {
	return fmt.Sprintf("HTML: %s\nCSS: %s\nJS: %s\n\nAssembling game...",
		mark(issues.HTML), mark(issues.CSS), verdict(issues.JS))
}

func componentsReflection(run *models.Run) string {
	return fmt.Sprintf("All components generated!\n\nHTML: %d chars\nCSS: %d chars\nJS: %d chars\n\nNext: Assembly",
		len(run.HTML), len(run.CSS), len(run.JS))
}

func componentLine(name, artifact string, issues []string) string {
	state := "✓"
	if len(issues) > 0 {
		state = fmt.Sprintf("⚠ %d issues", len(issues))
	}
	return fmt.Sprintf("- %s: %d chars (%s)", name, len(artifact), state)
}

// Summary is the final reflection shown next to the finished game.
func Summary(run *models.Run) string {
	var sb strings.Builder
	sb.WriteString("GENERATION COMPLETE!\n\nComponents:\n")
	sb.WriteString(componentLine("HTML", run.HTML, run.Issues.HTML) + "\n")
	sb.WriteString(componentLine("CSS", run.CSS, run.Issues.CSS) + "\n")
	sb.WriteString(componentLine("JS", run.JS, run.Issues.JS) + "\n")
	fmt.Fprintf(&sb, "\nTotal: %d chars\nIssues: %d\n", len(run.Document), run.Issues.Total())
	if n := len(run.Issues.Positions); n > 0 {
		fmt.Fprintf(&sb, "Position issues: %d\n", n)
	}
	if run.Spec != nil {
		fmt.Fprintf(&sb, "\nGame Spec:\n%s\n", prettySpec(run.Spec))
	}
	sb.WriteString("\nUse arrow keys (←↑↓→) to play!\n")
	return sb.String()
}
