// Package report renders human-readable run summaries for the CLI.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/example/matrixci/internal/service"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// runView is the template-facing shape of a run.
type runView struct {
	ID       string
	Pipeline string
	Branch   string
	State    string
	Duration string
	Stages   []stageView
}

type stageView struct {
	Name  string
	State string
	Jobs  []jobView
}

type jobView struct {
	ID       string
	Name     string
	State    string
	Duration string
	Failure  string
}

// RenderSummary renders the end-of-run summary for a run and its
// stages and jobs.
func RenderSummary(detail *service.RunDetail) (string, error) {
	tmpl, err := template.New("summary.txt.tmpl").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(templateFS, "templates/summary.txt.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to parse summary template: %w", err)
	}

	view := buildView(detail)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return buf.String(), nil
}

func buildView(detail *service.RunDetail) runView {
	jobsByStage := make(map[string][]jobView)
	for _, job := range detail.Jobs {
		view := jobView{
			ID:       job.ID,
			Name:     job.Name,
			State:    job.State.String(),
			Duration: formatDuration(job.Duration()),
		}
		if job.Failure != nil {
			view.Failure = job.Failure.Message
		}
		jobsByStage[job.Stage] = append(jobsByStage[job.Stage], view)
	}

	view := runView{
		ID:       detail.Run.ID,
		Pipeline: detail.Run.Pipeline,
		Branch:   detail.Run.Branch,
		State:    detail.Run.State.String(),
		Duration: formatDuration(detail.Run.Duration()),
	}
	for _, stage := range detail.Stages {
		view.Stages = append(view.Stages, stageView{
			Name:  stage.Name,
			State: stage.State.String(),
			Jobs:  jobsByStage[stage.Name],
		})
	}
	return view
}

// formatDuration rounds for display. Sub-second runs common in tests
// still show something meaningful.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
