package store

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// maxFormattedRows caps how many rows the rendered table includes, both for
// readability and to keep synthesis prompts bounded.
const maxFormattedRows = 50

// formatResult creates a human-readable table rendering of a query result.
func formatResult(result QueryResult) string {
	if result.Error != "" {
		return fmt.Sprintf("Error: %s", result.Error)
	}
	if result.Count == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Results (%d rows):\n", result.Count))

	table := tablewriter.NewWriter(&sb)
	table.SetHeader(result.Columns)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)

	display := min(maxFormattedRows, len(result.Rows))
	for i := 0; i < display; i++ {
		values := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			values[j] = formatValue(result.Rows[i][col])
		}
		table.Append(values)
	}
	table.Render()

	if result.Count > maxFormattedRows {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", result.Count-maxFormattedRows))
	}
	return sb.String()
}

// formatValue renders a single cell. Floats are rounded to 2 decimal places
// to avoid long repeating decimals confusing the synthesis model.
func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}
