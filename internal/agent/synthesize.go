package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/llm"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/retrieval"
)

// knownTables is the fixed table set scanned for SQL citations.
var knownTables = []string{"Orders", "Order Details", "Products", "Customers"}

// synthesizerNode produces the final answer from everything gathered:
// retrieved context, the SQL query, and its result.
type synthesizerNode struct {
	llm     llm.Client
	prompts *prompts.Prompts
	log     *slog.Logger
}

func (n *synthesizerNode) Name() string { return nodeSynthesizer }

func (n *synthesizerNode) Advance(ctx context.Context, s *State) (Update, error) {
	var contextLines []string
	for _, chunk := range s.Context {
		contextLines = append(contextLines, fmt.Sprintf("[%s] %s", chunk.ID, chunk.Content))
	}

	resultText := ""
	if s.SQLResult != nil {
		resultText = s.SQLResult.Formatted
		if s.SQLResult.Error != "" {
			resultText = "Error: " + s.SQLResult.Error
		}
	}

	userPrompt := fmt.Sprintf(`Question: %s

Retrieved context:
%s

SQL query:
%s

SQL result:
%s

Expected answer format: %s`,
		s.Question, strings.Join(contextLines, "\n"), s.SQLQuery, resultText, s.FormatHint)

	response, err := n.llm.Complete(ctx, n.prompts.Synthesize, userPrompt)
	if err != nil {
		return Update{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	final, explanation := parseSynthesisResponse(response)
	answer := &Answer{
		Final:       final,
		Explanation: explanation,
		Citations:   buildCitations(s.SQLQuery, s.Context),
	}
	n.log.Info("synthesizer: answered", "citations", len(answer.Citations))
	return Update{Answer: answer}, nil
}

// buildCitations derives evidentiary sources: known table names referenced by
// the SQL (matched case- and space-insensitively), then every retrieved
// chunk id. Duplicates are not removed.
func buildCitations(sqlQuery string, chunks []retrieval.Chunk) []string {
	citations := []string{}

	if sqlQuery != "" {
		sqlLower := strings.ToLower(sqlQuery)
		sqlNoSpace := strings.ReplaceAll(sqlLower, " ", "")
		for _, table := range knownTables {
			tableLower := strings.ToLower(table)
			tableNoSpace := strings.ReplaceAll(tableLower, " ", "")
			if strings.Contains(sqlLower, tableLower) || strings.Contains(sqlNoSpace, tableNoSpace) {
				citations = append(citations, table)
			}
		}
	}

	for _, chunk := range chunks {
		citations = append(citations, chunk.ID)
	}
	return citations
}
