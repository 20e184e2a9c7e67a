// Package assemble stitches generated artifacts into one page and wraps it
// in a sandboxed iframe for display inside another page.
package assemble

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"text/template"
)

//go:embed document.html.tmpl
var documentTemplate string

var documentTmpl = template.Must(template.New("document").Parse(documentTemplate))

// Document returns a standalone HTML document. The artifacts are inserted
// verbatim; only the title is escaped.
func Document(title, body, css, js string) (string, error) {
	if title == "" {
		title = "Photo Game"
	}
	var buf bytes.Buffer
	data := struct {
		Title string
		HTML  string
		CSS   string
		JS    string
	}{
		Title: html.EscapeString(title),
		HTML:  body,
		CSS:   css,
		JS:    js,
	}
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SandboxAttr is the iframe sandbox the game runs under. Scripts may run but
// the frame keeps an opaque origin, so the game cannot reach the page that
// embeds it.
const SandboxAttr = "allow-scripts"

// Sandbox escapes doc into the srcdoc of an iframe.
func Sandbox(doc string) string {
	return fmt.Sprintf(`<iframe
    srcdoc="%s"
    style="width: 100%%; max-width: 920px; height: 760px; border: 0; border-radius: 12px;"
    sandbox="%s"
></iframe>`, html.EscapeString(doc), SandboxAttr)
}
