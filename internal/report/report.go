// Package report renders a run result into a self-contained HTML document.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"apitask/internal/runner"
)

const ContentTypeHTML = "text/html; charset=utf-8"

//go:embed report.html.tmpl
var pageSrc string

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms": func(d time.Duration) string { return fmt.Sprintf("%d ms", d.Milliseconds()) },
}).Parse(pageSrc))

// Input is everything shown in a report.
type Input struct {
	TaskName string
	Project  string
	Origin   string
	At       time.Time
	Result   runner.Result
}

// Artifact is a rendered report.
type Artifact struct {
	Title       string
	ContentType string
	Body        []byte
	// Summary is a one-line plain text digest used for chat messages and mail alternatives.
	Summary string
}

// Title names a report after the task and the local run time.
func Title(in Input) string {
	at := in.At
	if at.IsZero() {
		at = in.Result.Started
	}
	name := in.TaskName
	if name == "" {
		name = in.Project
	}
	return fmt.Sprintf("%s API test report %s", name, at.Format("2006-01-02 15:04:05"))
}

// Summary formats the counts of in.
func Summary(in Input) string {
	r := in.Result
	verdict := "PASS"
	if !r.OK() {
		verdict = "FAIL"
	}
	return fmt.Sprintf("[%s] %s: %d/%d passed, %d failed in %s",
		verdict, nameOf(in), r.Passed, r.Total, r.Failed, r.Duration.Round(time.Millisecond))
}

func nameOf(in Input) string {
	if in.TaskName != "" {
		return in.TaskName
	}
	return in.Project
}

// Render executes the page template.
func Render(in Input) (Artifact, error) {
	title := Title(in)
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title string
		Input
	}{title, in})
	if err != nil {
		return Artifact{}, fmt.Errorf("render report: %w", err)
	}
	return Artifact{
		Title:       title,
		ContentType: ContentTypeHTML,
		Body:        buf.Bytes(),
		Summary:     Summary(in),
	}, nil
}
