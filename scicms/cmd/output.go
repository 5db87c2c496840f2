package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/borisblack/scicms-client-sub000/types"
)

// OutputFormatter renders command results as table, json or yaml
type OutputFormatter struct {
	format string
}

// NewOutputFormatter creates a formatter; unknown formats render tables
func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: strings.ToLower(format)}
}

// Format formats the given data according to the configured format
func (of *OutputFormatter) Format(data interface{}) (string, error) {
	switch of.format {
	case "json":
		return of.formatJSON(data)
	case "yaml":
		return of.formatYAML(data)
	default:
		return of.formatTable(data)
	}
}

func (of *OutputFormatter) formatJSON(data interface{}) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

func (of *OutputFormatter) formatYAML(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (of *OutputFormatter) formatTable(data interface{}) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	switch v := data.(type) {
	case *types.Page:
		columns := recordColumns(v.Data)
		fmt.Fprintln(w, strings.ToUpper(strings.Join(columns, "\t")))
		for _, row := range v.Data {
			cells := make([]string, len(columns))
			for i, col := range columns {
				cells[i] = cell(row[col])
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		if err := w.Flush(); err != nil {
			return "", err
		}
		p := v.Pagination
		fmt.Fprintf(&buf, "\npage %d/%d, %d of %d records\n", p.Page, p.PageCount, len(v.Data), p.Total)
		return buf.String(), nil
	case types.ItemData:
		writeKeyValues(w, v)
	case map[string]interface{}:
		writeKeyValues(w, v)
	case []string:
		for _, line := range v {
			fmt.Fprintln(w, line)
		}
	default:
		return of.formatJSON(data)
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeKeyValues(w *tabwriter.Writer, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, cell(m[k]))
	}
}

// recordColumns returns the union of row keys, id first
func recordColumns(rows []types.ItemData) []string {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] && k != types.AttrID {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return append([]string{types.AttrID}, columns...)
}

// cell renders one value; referenced records show their title
func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]interface{}:
		inner, ok := x["data"].(map[string]interface{})
		if !ok {
			if _, wrapped := x["data"]; wrapped {
				return ""
			}
			inner = x
		}
		keys := make([]string, 0, len(inner))
		for k := range inner {
			if k != types.AttrID {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := inner[k].(string); ok && s != "" {
				return s
			}
		}
		return cell(inner[types.AttrID])
	case []interface{}:
		parts := make([]string, len(x))
		for i, elem := range x {
			parts[i] = cell(elem)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}
