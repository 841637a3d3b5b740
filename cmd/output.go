package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	pkgstrings "opentune/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by -o.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutputFormat(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
	}
}

// field is one row of a key/value table.
type field struct {
	Key   string
	Value string
}

// printObject writes v as JSON or YAML, or rows as a table.
func printObject(w io.Writer, format string, v any, rows []field) error {
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case outputYAML:
		data, err := toYAML(v)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		renderTable(w, rows)
	}
	return nil
}

// toYAML renders v with the same keys as its JSON encoding.
func toYAML(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	data, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

func renderTable(w io.Writer, rows []field) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	colorize := isTerminal(w)

	header := func(s string) string {
		if colorize {
			return text.FgHiCyan.Sprint(s)
		}
		return s
	}
	t.AppendHeader(table.Row{header("KEY"), header("VALUE")})
	for _, r := range rows {
		if r.Value == "" {
			continue
		}
		t.AppendRow(table.Row{header(r.Key), pkgstrings.SingleLine(r.Value, pkgstrings.DefaultValueMaxLen)})
	}
	t.Render()
}

// statusText colours a run status when w is a terminal.
func statusText(w io.Writer, status string) string {
	if !isTerminal(w) {
		return status
	}
	switch strings.ToLower(status) {
	case "success":
		return text.FgGreen.Sprint(status)
	case "failed":
		return text.FgRed.Sprint(status)
	case "skipped":
		return text.FgYellow.Sprint(status)
	default:
		return text.FgHiBlack.Sprint(status)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
