package web

import (
	"net/url"

	"github.com/a-h/templ"

	"github.com/tatianab/photo-game/internal/assemble"
)

//go:generate templ generate

func runURL(id string) templ.SafeURL {
	return templ.SafeURL("/runs/" + url.PathEscape(id))
}

func gameURL(id string) templ.SafeURL {
	return templ.SafeURL("/runs/" + url.PathEscape(id) + "/game.html")
}

func streamURL(id string) string {
	return "/jobs/" + url.PathEscape(id) + "/stream"
}

// preview is the pipeline's status fragment, or the sandboxed game once the
// job has finished. Both are already escaped.
func preview(job JobSnapshot) string {
	if job.Done && job.Run != nil {
		return assemble.Sandbox(job.Run.Document)
	}
	return job.Update.Preview
}
