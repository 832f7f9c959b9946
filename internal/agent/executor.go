package agent

import (
	"context"
	"log/slog"
)

// executorNode runs the candidate SQL against the store. Execution failures
// are captured in the result and in state errors, feeding the repair
// routing; they never abort the workflow.
type executorNode struct {
	db  Database
	log *slog.Logger
}

func (n *executorNode) Name() string { return nodeExecutor }

func (n *executorNode) Advance(ctx context.Context, s *State) (Update, error) {
	result := n.db.Execute(ctx, s.SQLQuery)

	update := Update{SQLResult: &result}
	if result.Error != "" {
		n.log.Info("executor: query failed", "error", result.Error)
		errs := []string{result.Error}
		update.Errors = &errs
	} else {
		n.log.Info("executor: query executed", "rows", result.Count)
	}
	return update, nil
}
