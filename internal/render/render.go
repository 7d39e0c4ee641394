// Package render turns host records into the Markdown bodies and tag
// strings stored in Joplin. All functions are pure.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/takak2166/expo2joplin/internal/models"
)

// volatile or internal service check fields that never become columns
var excludedColumns = map[string]struct{}{
	"availability_status":       {},
	"availability_check_output": {},
	"availability_change_time":  {},
	"__typename":                {},
	"special":                   {},
}

var priorityColumns = []string{"service_name", "ip", "protocol", "port", "source_network_id"}

// nested or internal host fields left out of the summary
var excludedSummaryKeys = map[string]struct{}{
	"network_interfaces":       {},
	"service_checks":           {},
	"team_name":                {},
	"__typename":               {},
	"_id":                      {},
	"availability_change_time": {},
	"availability_status":      {},
	"team":                     {},
	"team_unique_id":           {},
	"has_services":             {},
}

// Columns returns the service check table columns: priority columns that
// are present, in fixed order, followed by the rest in lexical order
func Columns(checks []models.ServiceCheck) []string {
	present := make(map[string]struct{})
	for _, sc := range checks {
		for key := range sc {
			if _, skip := excludedColumns[key]; skip {
				continue
			}
			present[key] = struct{}{}
		}
	}

	columns := make([]string, 0, len(present))
	for _, col := range priorityColumns {
		if _, ok := present[col]; ok {
			columns = append(columns, col)
			delete(present, col)
		}
	}

	rest := make([]string, 0, len(present))
	for col := range present {
		rest = append(rest, col)
	}
	sort.Strings(rest)

	return append(columns, rest...)
}

// ServiceTable renders the host's service checks as a pipe table:
// header, separator and one row per check
func ServiceTable(record *models.HostRecord) (string, error) {
	checks, err := record.ServiceChecks()
	if err != nil {
		return "", err
	}

	columns := Columns(checks)
	lines := make([]string, 0, len(checks)+2)
	lines = append(lines, strings.Join(columns, " | "))

	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, strings.Join(sep, "|"))

	for _, sc := range checks {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = escapeCell(FormatValue(sc[col]))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}

	return strings.Join(lines, "\n"), nil
}

// Summary renders the non-empty top-level host fields as a Markdown
// definition list, sorted by key
func Summary(record *models.HostRecord) string {
	keys := make([]string, 0, len(record.Fields))
	for key := range record.Fields {
		if _, skip := excludedSummaryKeys[key]; skip {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		val := record.Fields[key]
		if IsEmpty(val) {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s\n: %s\n", FormatKey(key), FormatValue(val)))
	}

	return strings.Join(entries, "\n")
}

// Note renders the overview note body and its tag string
func Note(record *models.HostRecord) (body string, tags string, err error) {
	expoID, err := record.ExpoID()
	if err != nil {
		return "", "", err
	}
	segment, err := record.String(models.FieldSegment)
	if err != nil {
		return "", "", err
	}
	osName, err := record.String(models.FieldOS)
	if err != nil {
		return "", "", err
	}

	table, err := ServiceTable(record)
	if err != nil {
		return "", "", err
	}

	raw, err := indentRaw(record)
	if err != nil {
		return "", "", err
	}

	var md strings.Builder
	md.WriteString(fmt.Sprintf("\n# %s\n\n", expoID))
	md.WriteString(fmt.Sprintf("## Summary\n\n%s\n\n", Summary(record)))
	md.WriteString(fmt.Sprintf("## Service checks\n\n%s\n\n", wrapTable(table)))
	md.WriteString(fmt.Sprintf("## Raw expo dump\n\n```json\n%s\n```\n", raw))

	return md.String(), Tags(segment, osName), nil
}

// Tags builds the overview note tag string
func Tags(segment, osName string) string {
	return fmt.Sprintf("zone:%s,os:%s", segment, osName)
}

// FormatKey converts a snake_case key to space separated Title Case words
func FormatKey(key string) string {
	caser := cases.Title(language.Und)
	words := strings.Split(key, "_")
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// FormatValue renders a decoded JSON value for display
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprintf("%t", val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// IsEmpty reports whether a decoded JSON value is falsy: null, "", false,
// zero, or an empty list or object
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case float64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// wrapTable adds the outer pipes to every table line
func wrapTable(table string) string {
	lines := strings.Split(table, "\n")
	for i, line := range lines {
		lines[i] = "| " + line + " |"
	}
	return strings.Join(lines, "\n")
}

func indentRaw(record *models.HostRecord) (string, error) {
	raw := record.Raw
	if len(raw) == 0 {
		b, err := json.Marshal(record.Fields)
		if err != nil {
			return "", fmt.Errorf("failed to encode host record: %w", err)
		}
		raw = b
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return "", fmt.Errorf("failed to indent host record: %w", err)
	}
	return buf.String(), nil
}
