package agent

import (
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/retrieval"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/store"
)

// Strategy is the routed answering strategy for a question.
type Strategy string

const (
	StrategyUnset  Strategy = ""
	StrategySQL    Strategy = "sql"
	StrategyRAG    Strategy = "rag"
	StrategyHybrid Strategy = "hybrid"
)

// State is the per-question workflow record. One instance exists per
// invocation, owned exclusively by the engine; nodes read it and return
// partial updates which the engine merges.
type State struct {
	// Immutable inputs.
	Question   string
	FormatHint string

	// Set once by the router.
	Strategy Strategy

	// Appended by the retriever; empty for pure sql strategy.
	Context []retrieval.Chunk

	// Schema text snapshot for the current generation attempt; refreshed
	// each repair cycle.
	Schema string

	// Current candidate SQL; overwritten each generation cycle.
	SQLQuery string

	// nil until the executor has run.
	SQLResult *store.QueryResult

	// Written once by the synthesizer.
	FinalAnswer any
	Explanation string
	Citations   []string

	// Transient: cleared at the start of each repair cycle; non-empty
	// triggers repair routing.
	Errors []string

	// Monotonically incremented by the repair node; bounds the retry loop.
	RepairCount int
}

// Answer is the synthesizer's terminal output.
type Answer struct {
	Final       any
	Explanation string
	Citations   []string
}

// Update is a partial state update produced by one node step. Nil fields
// leave the state untouched.
type Update struct {
	Strategy    Strategy
	Context     []retrieval.Chunk
	Schema      *string
	SQLQuery    *string
	SQLResult   *store.QueryResult
	Answer      *Answer
	Errors      *[]string
	RepairDelta int
}

// apply merges an update into the state. Strategy is write-once: a set
// strategy is never overwritten.
func (s *State) apply(u Update) {
	if u.Strategy != StrategyUnset && s.Strategy == StrategyUnset {
		s.Strategy = u.Strategy
	}
	if u.Context != nil {
		s.Context = u.Context
	}
	if u.Schema != nil {
		s.Schema = *u.Schema
	}
	if u.SQLQuery != nil {
		s.SQLQuery = *u.SQLQuery
	}
	if u.SQLResult != nil {
		s.SQLResult = u.SQLResult
	}
	if u.Answer != nil {
		s.FinalAnswer = u.Answer.Final
		s.Explanation = u.Answer.Explanation
		s.Citations = u.Answer.Citations
	}
	if u.Errors != nil {
		s.Errors = *u.Errors
	}
	s.RepairCount += u.RepairDelta
}
