package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/metrics"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/validate"
)

// repairNode counts a repair cycle and clears the error list so the next
// generation attempt starts clean. When the errors point at missing tables
// or columns it logs a schema summary as a diagnostic hint; the corrective
// context itself reaches the model through the fresh schema snapshot the
// generator takes every cycle.
type repairNode struct {
	db  Database
	log *slog.Logger
}

func (n *repairNode) Name() string { return nodeRepair }

func (n *repairNode) Advance(ctx context.Context, s *State) (Update, error) {
	metrics.RepairCyclesTotal.Inc()
	n.log.Info("repair: retrying SQL generation", "cycle", s.RepairCount+1, "errors", strings.Join(s.Errors, "; "))

	if hasSchemaError(s.Errors) {
		if validator, err := validate.New(ctx, n.db); err == nil {
			n.log.Debug("repair: schema hint", "summary", validator.SchemaSummary())
		}
	}

	empty := []string{}
	return Update{RepairDelta: 1, Errors: &empty}, nil
}

func hasSchemaError(errs []string) bool {
	for _, e := range errs {
		if strings.Contains(e, "does not exist") || strings.Contains(e, "not found") {
			return true
		}
	}
	return false
}
