// Package validate checks generated SQL against the live database schema.
//
// The checks are heuristic text scans, not a SQL parse: table names are
// pulled from FROM/JOIN clauses, column references from alias.column token
// pairs, and CTE names from a WITH-clause scan. The precision profile of
// these heuristics is deliberate and part of the contract: CTE detection is
// over-inclusive, and columns are matched against the union of all tables'
// columns with no alias resolution.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SchemaSource is the live schema read the catalog is built from.
type SchemaSource interface {
	Tables(ctx context.Context) ([]string, error)
	ColumnNames(ctx context.Context, table string) ([]string, error)
}

// Validator holds a case-normalized snapshot of the schema catalog. Build one
// per generation cycle so repairs see a fresh schema read.
type Validator struct {
	tables  map[string]struct{}            // lowercased table names
	columns map[string]map[string]struct{} // lowercased table -> lowercased column set
}

// Result is the outcome of validating one SQL string.
type Result struct {
	Valid  bool
	Errors []string
}

const maxSuggestions = 3

var (
	withPattern   = regexp.MustCompile(`(?i)\bWITH\b`)
	ctePattern    = regexp.MustCompile(`(?i)\b(\w+)\s+AS\s*\(`)
	tablePattern  = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+(?:[`\"\\[]([^`\"\\]]+)[`\"\\]]|(\\w+))")
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	columnPattern = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)
)

// New builds a validator from a fresh schema read.
func New(ctx context.Context, src SchemaSource) (*Validator, error) {
	tables, err := src.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	v := &Validator{
		tables:  make(map[string]struct{}, len(tables)),
		columns: make(map[string]map[string]struct{}, len(tables)),
	}
	for _, table := range tables {
		key := strings.ToLower(table)
		v.tables[key] = struct{}{}

		cols, err := src.ColumnNames(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("load columns for %s: %w", table, err)
		}
		set := make(map[string]struct{}, len(cols))
		for _, col := range cols {
			set[strings.ToLower(col)] = struct{}{}
		}
		v.columns[key] = set
	}
	return v, nil
}

// Validate checks that the SQL only references tables and columns present in
// the catalog. An empty or whitespace-only query is trivially valid: it is
// the generator's signal that the question cannot be answered from the
// schema.
func (v *Validator) Validate(sqlQuery string) Result {
	if strings.TrimSpace(sqlQuery) == "" {
		return Result{Valid: true}
	}

	var errs []string

	// Any identifier followed by AS ( is treated as a potential CTE name and
	// skipped in the table check. Over-inclusive on purpose.
	cteNames := make(map[string]struct{})
	if withPattern.MatchString(sqlQuery) {
		for _, m := range ctePattern.FindAllStringSubmatch(sqlQuery, -1) {
			cteNames[strings.ToLower(m[1])] = struct{}{}
		}
	}

	for _, m := range tablePattern.FindAllStringSubmatch(sqlQuery, -1) {
		table := m[1]
		if table == "" {
			table = m[2]
		}
		table = strings.TrimSpace(table)

		if _, isCTE := cteNames[strings.ToLower(table)]; isCTE {
			continue
		}
		if !v.tableExists(table) {
			errs = append(errs, fmt.Sprintf("Table '%s' does not exist in schema. Valid tables: %s",
				table, strings.Join(v.sortedTables(), ", ")))
		}
	}

	for _, m := range columnPattern.FindAllStringSubmatch(sqlQuery, -1) {
		column := strings.ToLower(m[2])
		if v.columnExists(column) {
			continue
		}
		if suggestions := v.similarColumns(column); len(suggestions) > 0 {
			errs = append(errs, fmt.Sprintf("Column '%s' not found in any table schema. Did you mean: %s?",
				m[2], strings.Join(suggestions, ", ")))
		} else {
			errs = append(errs, fmt.Sprintf("Column '%s' not found in any table schema", m[2]))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// tableExists matches a referenced table name against the catalog under three
// equivalences: exact (case-insensitive), CamelCase-to-spaced, and with all
// spaces stripped from both sides. The last one is what lets views like
// OrderDetails stand in for the base table "Order Details".
func (v *Validator) tableExists(table string) bool {
	lower := strings.ToLower(table)
	spaced := strings.ToLower(camelBoundary.ReplaceAllString(table, "$1 $2"))
	noSpace := strings.ReplaceAll(lower, " ", "")

	for valid := range v.tables {
		if lower == valid || spaced == valid || noSpace == strings.ReplaceAll(valid, " ", "") {
			return true
		}
	}
	return false
}

// columnExists checks membership against the union of all tables' columns.
// Alias-to-table resolution is not attempted.
func (v *Validator) columnExists(column string) bool {
	for _, cols := range v.columns {
		if _, ok := cols[column]; ok {
			return true
		}
	}
	return false
}

// similarColumns suggests known columns that contain, or are contained in,
// the unmatched name.
func (v *Validator) similarColumns(column string) []string {
	var suggestions []string
	for _, valid := range v.sortedColumns() {
		if strings.Contains(valid, column) || strings.Contains(column, valid) {
			suggestions = append(suggestions, valid)
			if len(suggestions) == maxSuggestions {
				break
			}
		}
	}
	return suggestions
}

func (v *Validator) sortedTables() []string {
	tables := make([]string, 0, len(v.tables))
	for t := range v.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func (v *Validator) sortedColumns() []string {
	set := make(map[string]struct{})
	for _, cols := range v.columns {
		for c := range cols {
			set[c] = struct{}{}
		}
	}
	columns := make([]string, 0, len(set))
	for c := range set {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

// SchemaSummary renders the catalog as text, used to give the model
// corrective context during repair.
func (v *Validator) SchemaSummary() string {
	var sb strings.Builder
	sb.WriteString("Valid Tables:\n")
	for _, table := range v.sortedTables() {
		sb.WriteString("  - " + table + "\n")
		if cols, ok := v.columns[table]; ok && len(cols) > 0 {
			names := make([]string, 0, len(cols))
			for c := range cols {
				names = append(names, c)
			}
			sort.Strings(names)
			sb.WriteString("    Columns: " + strings.Join(names, ", ") + "\n")
		}
	}
	return sb.String()
}
