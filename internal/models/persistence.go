package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Issues collects everything the verification stages flagged.
type Issues struct {
	Positions []string `yaml:"positions,omitempty"`
	HTML      []string `yaml:"html,omitempty"`
	CSS       []string `yaml:"css,omitempty"`
	JS        []string `yaml:"js,omitempty"`
}

// Total counts artifact issues. Position issues are reported separately.
func (i Issues) Total() int {
	return len(i.HTML) + len(i.CSS) + len(i.JS)
}

// Run is the outcome of one photo-to-game generation.
type Run struct {
	ID          string    `yaml:"id"`
	CreatedAt   time.Time `yaml:"created_at"`
	SourceImage string    `yaml:"source_image,omitempty"`
	Analysis    string    `yaml:"-"`
	Spec        *GameSpec `yaml:"-"`
	HTML        string    `yaml:"-"`
	CSS         string    `yaml:"-"`
	JS          string    `yaml:"-"`
	Document    string    `yaml:"-"`
	Issues      Issues    `yaml:"issues"`
}

// report is the on-disk shape of report.yaml.
type report struct {
	ID          string    `yaml:"id"`
	CreatedAt   time.Time `yaml:"created_at"`
	SourceImage string    `yaml:"source_image,omitempty"`
	Title       string    `yaml:"title"`
	HTMLChars   int       `yaml:"html_chars"`
	CSSChars    int       `yaml:"css_chars"`
	JSChars     int       `yaml:"js_chars"`
	Issues      Issues    `yaml:"issues"`
}

// Save writes the run into root/<id>: spec.yaml, analysis.md, game.html and report.yaml.
func (r *Run) Save(root string) (string, error) {
	if r.ID == "" {
		return "", fmt.Errorf("run has no id")
	}
	dir := filepath.Join(root, r.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	if r.Spec != nil {
		specData, err := yaml.Marshal(r.Spec)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, "spec.yaml"), specData, 0644); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "analysis.md"), []byte(r.Analysis), 0644); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(dir, "game.html"), []byte(r.Document), 0644); err != nil {
		return "", err
	}

	rep := report{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		SourceImage: r.SourceImage,
		HTMLChars:   len(r.HTML),
		CSSChars:    len(r.CSS),
		JSChars:     len(r.JS),
		Issues:      r.Issues,
	}
	if r.Spec != nil {
		rep.Title = r.Spec.Title
	}
	reportData, err := yaml.Marshal(rep)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.yaml"), reportData, 0644); err != nil {
		return "", err
	}

	return dir, nil
}

// LoadRun reads back a run saved under root/<id>. Only the assembled
// document is restored; the separate artifacts are not stored.
func LoadRun(root, id string) (*Run, error) {
	dir := filepath.Join(root, id)

	reportData, err := os.ReadFile(filepath.Join(dir, "report.yaml"))
	if err != nil {
		return nil, err
	}
	var rep report
	if err := yaml.Unmarshal(reportData, &rep); err != nil {
		return nil, err
	}

	var spec *GameSpec
	if specData, err := os.ReadFile(filepath.Join(dir, "spec.yaml")); err == nil {
		spec = &GameSpec{}
		if err := yaml.Unmarshal(specData, spec); err != nil {
			return nil, err
		}
	}

	analysis, err := os.ReadFile(filepath.Join(dir, "analysis.md"))
	if err != nil {
		return nil, err
	}
	doc, err := os.ReadFile(filepath.Join(dir, "game.html"))
	if err != nil {
		return nil, err
	}

	return &Run{
		ID:          rep.ID,
		CreatedAt:   rep.CreatedAt,
		SourceImage: rep.SourceImage,
		Analysis:    string(analysis),
		Spec:        spec,
		Document:    string(doc),
		Issues:      rep.Issues,
	}, nil
}

// ListRuns returns the ids of saved runs, newest directory name last.
func ListRuns(root string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			// report.yaml marks a complete run
			reportPath := filepath.Join(root, entry.Name(), "report.yaml")
			if _, err := os.Stat(reportPath); err == nil {
				runs = append(runs, entry.Name())
			}
		}
	}
	sort.Strings(runs)
	return runs, nil
}
