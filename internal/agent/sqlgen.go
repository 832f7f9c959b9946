package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/llm"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/validate"
)

// sqlGeneratorNode asks the model for SQL against a fresh schema snapshot,
// normalizes non-SQLite constructs, and validates the result against the
// live schema catalog. Validation errors land in state and trigger the
// repair routing; they are not fatal.
type sqlGeneratorNode struct {
	llm     llm.Client
	db      Database
	prompts *prompts.Prompts
	log     *slog.Logger
}

func (n *sqlGeneratorNode) Name() string { return nodeSQLGenerator }

func (n *sqlGeneratorNode) Advance(ctx context.Context, s *State) (Update, error) {
	schema, err := n.db.SchemaText(ctx)
	if err != nil {
		return Update{}, fmt.Errorf("failed to fetch schema: %w", err)
	}

	systemPrompt := n.prompts.Generate + "\n\n## Database Schema\n\n" + schema
	response, err := n.llm.Complete(ctx, systemPrompt, fmt.Sprintf("Question: %s", s.Question))
	if err != nil {
		return Update{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	sqlQuery := rewriteDialect(stripFences(response))

	// Validator is rebuilt from a fresh schema read each cycle.
	validator, err := validate.New(ctx, n.db)
	if err != nil {
		return Update{}, fmt.Errorf("failed to build validator: %w", err)
	}

	update := Update{SQLQuery: &sqlQuery, Schema: &schema}
	if result := validator.Validate(sqlQuery); !result.Valid {
		n.log.Info("sql_generator: validation failed", "errors", strings.Join(result.Errors, "; "))
		update.Errors = &result.Errors
	} else {
		n.log.Info("sql_generator: generated", "sqlLen", len(sqlQuery))
	}
	return update, nil
}

// stripFences removes markdown code-fence markup around the SQL.
func stripFences(response string) string {
	response = strings.ReplaceAll(response, "```sql", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

var (
	yearPattern  = regexp.MustCompile(`(?i)YEAR\(([^)]+)\)`)
	monthPattern = regexp.MustCompile(`(?i)MONTH\(([^)]+)\)`)
)

// rewriteDialect substitutes common non-SQLite date functions with strftime
// equivalents. The generation prompt already demands SQLite constructs; this
// is a deterministic safety net over model output.
func rewriteDialect(sqlQuery string) string {
	sqlQuery = yearPattern.ReplaceAllString(sqlQuery, "strftime('%Y', $1)")
	sqlQuery = monthPattern.ReplaceAllString(sqlQuery, "strftime('%m', $1)")
	return sqlQuery
}
