package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
	FormatTSV    Format = "tsv"
)

// ParseFormat validates an output format name. Empty selects the table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (one of: table, json, ndjson, yaml, tsv)", s)
	}
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatTable
	}
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Format returns the selected format.
func (r *Renderer) Format() Format {
	return r.opts.Format
}

// Render writes items in the selected format. Table and TSV output use
// headers and rows; the structured formats encode items directly.
func (r *Renderer) Render(items []interface{}, headers []string, rows [][]string) error {
	switch r.opts.Format {
	case FormatJSON:
		if items == nil {
			items = []interface{}{}
		}
		return r.RenderJSON(items)
	case FormatNDJSON:
		return r.RenderNDJSON(items)
	case FormatYAML:
		return r.RenderYAML(items)
	case FormatTSV:
		return r.RenderTSV(headers, rows)
	default:
		return r.RenderTable(headers, rows)
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderNDJSON renders data as newline-delimited JSON
func (r *Renderer) RenderNDJSON(items []interface{}) error {
	encoder := json.NewEncoder(r.writer)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if r.opts.Porcelain {
		return r.RenderTSV(headers, rows)
	}

	r.renderTableRow(headers, widths)
	r.renderTableSeparator(widths)
	for _, row := range rows {
		r.renderTableRow(row, widths)
	}
	return nil
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i < len(widths) {
			if i == len(cells)-1 {
				fmt.Fprint(r.writer, cell)
			} else {
				fmt.Fprintf(r.writer, "%-*s  ", widths[i], cell)
			}
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
