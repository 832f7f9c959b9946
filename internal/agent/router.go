package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/llm"
)

// routerNode classifies the question into a strategy. The model's free-text
// output is normalized by keyword containment; anything unclassifiable
// resolves to rag rather than failing.
type routerNode struct {
	llm     llm.Client
	prompts *prompts.Prompts
	log     *slog.Logger
}

func (n *routerNode) Name() string { return nodeRouter }

func (n *routerNode) Advance(ctx context.Context, s *State) (Update, error) {
	response, err := n.llm.Complete(ctx, n.prompts.Router, fmt.Sprintf("Question: %s", s.Question))
	if err != nil {
		return Update{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	strategy := normalizeStrategy(response)
	n.log.Info("router: classified", "strategy", strategy)
	return Update{Strategy: strategy}, nil
}

// normalizeStrategy maps unconstrained classifier output onto a strategy.
func normalizeStrategy(response string) Strategy {
	text := strings.ToLower(strings.TrimSpace(response))
	hasSQL := strings.Contains(text, "sql")
	hasRAG := strings.Contains(text, "rag")

	switch {
	case hasSQL && hasRAG:
		return StrategyHybrid
	case hasSQL:
		return StrategySQL
	default:
		return StrategyRAG
	}
}
