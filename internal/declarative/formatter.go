package declarative

import (
	"encoding/json"
	"fmt"
	"io"

	"duckflow/internal/service/pipeline"
)

// ANSI color codes.
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorDim   = "\033[2m"
)

// FormatText writes a human-readable validation report to w: each pipeline
// with its execution levels, or the validation errors.
// If noColor is true, ANSI codes are suppressed.
func FormatText(w io.Writer, defs []pipeline.Definition, errs []ValidationError, noColor bool) {
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(w, "  %s✗%s %s\n", c(colorRed), c(colorReset), e.Error())
		}
		fmt.Fprintf(w, "\n%s%d error(s).%s\n", c(colorRed), len(errs), c(colorReset))
		return
	}

	tasks := 0
	for _, d := range defs {
		tasks += d.Graph.Len()
		fmt.Fprintf(w, "\n%s# %s%s\n", c(colorCyan), d.Name(), c(colorReset))
		if d.Description != "" {
			fmt.Fprintf(w, "  %s%s%s\n", c(colorDim), d.Description, c(colorReset))
		}
		schedule := d.Schedule
		if schedule == "" {
			schedule = "manual"
		}
		if d.Paused {
			schedule += " (paused)"
		}
		fmt.Fprintf(w, "  %sschedule:%s %s\n", c(colorDim), c(colorReset), schedule)
		for i, level := range d.Graph.Levels() {
			fmt.Fprintf(w, "  %s[%d]%s", c(colorGreen), i+1, c(colorReset))
			for j, name := range level {
				n, _ := d.Graph.Node(name)
				sep := ","
				if j == 0 {
					sep = ""
				}
				fmt.Fprintf(w, "%s %s (%s)", sep, name, n.Kind)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "\n%sValid:%s %d pipeline(s), %d task(s).\n", c(colorDim), c(colorReset), len(defs), tasks)
}

// FormatJSON writes the validation report as JSON to w.
func FormatJSON(w io.Writer, defs []pipeline.Definition, errs []ValidationError) error {
	type jsonPipeline struct {
		Name     string     `json:"name"`
		Schedule string     `json:"schedule,omitempty"`
		Paused   bool       `json:"paused,omitempty"`
		Tasks    int        `json:"tasks"`
		Levels   [][]string `json:"levels"`
	}
	type jsonError struct {
		Path    string `json:"path,omitempty"`
		Message string `json:"message"`
	}
	type jsonReport struct {
		Valid     bool           `json:"valid"`
		Pipelines []jsonPipeline `json:"pipelines"`
		Errors    []jsonError    `json:"errors,omitempty"`
	}

	jr := jsonReport{Valid: len(errs) == 0, Pipelines: make([]jsonPipeline, 0, len(defs))}
	for _, d := range defs {
		jr.Pipelines = append(jr.Pipelines, jsonPipeline{
			Name:     d.Name(),
			Schedule: d.Schedule,
			Paused:   d.Paused,
			Tasks:    d.Graph.Len(),
			Levels:   d.Graph.Levels(),
		})
	}
	for _, e := range errs {
		jr.Errors = append(jr.Errors, jsonError{Path: e.Path, Message: e.Message})
	}

	data, err := json.MarshalIndent(jr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
