package agent

import (
	"context"
	"log/slog"
)

// retrieverNode pulls the top document chunks for the question into state.
// Runs for rag and hybrid strategies; pure sql questions skip it.
type retrieverNode struct {
	index Retriever
	topK  int
	log   *slog.Logger
}

func (n *retrieverNode) Name() string { return nodeRetriever }

func (n *retrieverNode) Advance(ctx context.Context, s *State) (Update, error) {
	results := n.index.Search(s.Question, n.topK)
	n.log.Info("retriever: searched", "chunks", len(results))
	return Update{Context: results}, nil
}
