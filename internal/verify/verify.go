// Package verify runs cheap static checks on generated game artifacts.
// Each check returns human-readable issues; an empty slice means it passed.
package verify

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/tatianab/photo-game/internal/models"
)

// HTML checks that every contract id is defined and that the canvas has the
// expected size.
func HTML(html string, ok bool, c models.Contracts) []string {
	if !ok {
		return []string{"HTML is missing"}
	}

	var issues []string
	required := []struct{ id, desc string }{
		{c.CanvasID, "Canvas"},
		{c.ScoreID, "Score"},
		{c.TimerID, "Timer"},
		{c.ContainerID, "Container"},
	}
	for _, r := range required {
		if !strings.Contains(html, `id="`+r.id+`"`) && !strings.Contains(html, `id='`+r.id+`'`) {
			issues = append(issues, fmt.Sprintf("Missing required id: %s (%s)", r.id, r.desc))
		}
	}

	if strings.Contains(html, "<canvas") {
		w := fmt.Sprintf(`width="%d"`, models.CanvasWidth)
		h := fmt.Sprintf(`height="%d"`, models.CanvasHeight)
		if !strings.Contains(html, w) || !strings.Contains(html, h) {
			issues = append(issues, fmt.Sprintf("Canvas missing correct dimensions (%dx%d)", models.CanvasWidth, models.CanvasHeight))
		}
	} else {
		issues = append(issues, "No canvas element found")
	}
	return issues
}

// CSS checks that the canvas and container are styled and that braces balance.
func CSS(css string, ok bool, c models.Contracts) []string {
	if !ok {
		return []string{"CSS is missing"}
	}

	var issues []string
	required := []struct{ sel, desc string }{
		{"#" + c.CanvasID, "Canvas"},
		{"#" + c.ContainerID, "Container"},
	}
	for _, r := range required {
		if !strings.Contains(css, r.sel) {
			issues = append(issues, fmt.Sprintf("Missing CSS for: %s (%s)", r.sel, r.desc))
		}
	}

	if strings.Count(css, "{") != strings.Count(css, "}") {
		issues = append(issues, "Unbalanced braces in CSS")
	}
	return issues
}

// RequiredFunctions must be defined by the game script.
var RequiredFunctions = []string{"startGame", "gameLoop", "draw"}

// JS checks the script defines the required functions, looks up the contract
// ids, drives a requestAnimationFrame loop and parses as ECMAScript.
func JS(js string, ok bool, c models.Contracts) []string {
	if !ok {
		return []string{"JavaScript is missing"}
	}

	var issues []string
	for _, fn := range RequiredFunctions {
		if !strings.Contains(js, "function "+fn) && !strings.Contains(js, fn+" =") && !strings.Contains(js, "const "+fn) {
			issues = append(issues, "Missing function: "+fn)
		}
	}

	for _, id := range []string{c.CanvasID, c.ScoreID, c.TimerID} {
		if !strings.Contains(js, "'"+id+"'") && !strings.Contains(js, `"`+id+`"`) {
			issues = append(issues, "Doesn't use required ID: "+id)
		}
	}

	if !strings.Contains(js, "requestAnimationFrame") {
		issues = append(issues, "Missing requestAnimationFrame")
	}

	if err := Syntax(js); err != nil {
		issues = append(issues, "JavaScript syntax error: "+err.Error())
	}
	return issues
}

// Syntax compiles js without running it.
func Syntax(js string) error {
	_, err := goja.Compile("game.js", js, false)
	return err
}
