package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat accepts json, yaml (or yml) and table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json, yaml or table)", s)
}

// Render writes the report in the given format.
func Render(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatTable:
		return renderTable(w, r)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func renderTable(w io.Writer, r *Report) error {
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Validation %s at %s\n\n", status, r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	checks := tablewriter.NewTable(w)
	checks.Header("Check", "Severity", "Passed", "Expected", "Actual", "Notes")
	for _, c := range r.Checks {
		if err := checks.Append(c.Name, string(c.Severity), fmt.Sprint(c.Passed), c.Expected, c.Actual, c.Notes); err != nil {
			return err
		}
	}
	if err := checks.Render(); err != nil {
		return err
	}

	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	counts := tablewriter.NewTable(w)
	counts.Header("Count", "Value")
	for _, k := range keys {
		if err := counts.Append(k, fmt.Sprint(r.Counts[k])); err != nil {
			return err
		}
	}
	if err := counts.Render(); err != nil {
		return err
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		for _, n := range r.Notes {
			fmt.Fprintf(w, "- %s\n", n)
		}
	}
	return nil
}
