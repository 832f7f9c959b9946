// Package agent implements the hybrid question-answering workflow: a directed
// graph of nodes over a shared per-question state record, with conditional
// edges implementing strategy routing and the bounded SQL repair loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/llm"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/metrics"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/retrieval"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/store"
)

// Database is the schema/query surface the workflow needs from the store.
// *store.DB satisfies it.
type Database interface {
	SchemaText(ctx context.Context, tables ...string) (string, error)
	Execute(ctx context.Context, query string) store.QueryResult
	Tables(ctx context.Context) ([]string, error)
	ColumnNames(ctx context.Context, table string) ([]string, error)
}

// Retriever answers nearest-neighbor text queries over the document corpus.
// *retrieval.Index satisfies it.
type Retriever interface {
	Search(query string, topK int) []retrieval.Chunk
}

// Node is one workflow step. Advance reads the current state and returns a
// partial update; the engine owns the merge and the transition traversal.
type Node interface {
	Name() string
	Advance(ctx context.Context, s *State) (Update, error)
}

// Node names, which double as transition-table keys.
const (
	nodeRouter       = "router"
	nodeRetriever    = "retriever"
	nodePlanner      = "planner"
	nodeSQLGenerator = "sql_generator"
	nodeExecutor     = "executor"
	nodeRepair       = "repair"
	nodeSynthesizer  = "synthesizer"
	nodeEnd          = ""
)

// maxSteps is a defensive ceiling on graph traversal. With the default
// repair cap of 2 a single invocation visits at most 11 nodes.
const maxSteps = 32

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	Logger     *slog.Logger
	LLM        llm.Client
	DB         Database
	Retriever  Retriever
	Prompts    *prompts.Prompts
	MaxRepairs int // repair cycles per question (default 2)
	TopK       int // retrieval depth (default 3)
}

// edge pairs a node with its outgoing transition guard.
type edge struct {
	node Node
	next func(*State) string
}

// Engine walks the workflow graph for one question at a time. An Engine is
// stateless between invocations and safe for sequential reuse; for concurrent
// batches, give each goroutine its own state by calling Run independently.
type Engine struct {
	cfg   *Config
	log   *slog.Logger
	graph map[string]edge
}

// New validates the config and builds the transition graph.
func New(cfg *Config) (*Engine, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRepairs == 0 {
		cfg.MaxRepairs = 2
	}
	if cfg.TopK == 0 {
		cfg.TopK = 3
	}

	e := &Engine{cfg: cfg, log: cfg.Logger}

	router := &routerNode{llm: cfg.LLM, prompts: cfg.Prompts, log: e.log}
	retriever := &retrieverNode{index: cfg.Retriever, topK: cfg.TopK, log: e.log}
	planner := &plannerNode{}
	generator := &sqlGeneratorNode{llm: cfg.LLM, db: cfg.DB, prompts: cfg.Prompts, log: e.log}
	executor := &executorNode{db: cfg.DB, log: e.log}
	repair := &repairNode{db: cfg.DB, log: e.log}
	synthesizer := &synthesizerNode{llm: cfg.LLM, prompts: cfg.Prompts, log: e.log}

	e.graph = map[string]edge{
		nodeRouter: {router, func(s *State) string {
			if s.Strategy == StrategySQL {
				return nodePlanner
			}
			return nodeRetriever // rag and hybrid both retrieve first
		}},
		nodeRetriever: {retriever, func(s *State) string {
			if s.Strategy == StrategyRAG {
				return nodeSynthesizer
			}
			return nodePlanner
		}},
		nodePlanner:      {planner, func(*State) string { return nodeSQLGenerator }},
		nodeSQLGenerator: {generator, func(*State) string { return nodeExecutor }},
		nodeExecutor: {executor, func(s *State) string {
			if len(s.Errors) > 0 && s.RepairCount < cfg.MaxRepairs {
				return nodeRepair
			}
			return nodeSynthesizer
		}},
		nodeRepair:      {repair, func(*State) string { return nodeSQLGenerator }},
		nodeSynthesizer: {synthesizer, func(*State) string { return nodeEnd }},
	}
	return e, nil
}

// Run executes the workflow for one question and returns the terminal state.
// Node-local SQL failures end up in the state; only transport-level failures
// (LLM API, schema reads) surface as errors.
func (e *Engine) Run(ctx context.Context, question, formatHint string) (*State, error) {
	state := &State{Question: question, FormatHint: formatHint}

	current := nodeRouter
	for steps := 0; current != nodeEnd; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("workflow exceeded %d steps at node %s", maxSteps, current)
		}
		entry, ok := e.graph[current]
		if !ok {
			return nil, fmt.Errorf("workflow routed to unknown node %q", current)
		}

		e.log.Debug("workflow: advancing", "node", current, "repairs", state.RepairCount)
		update, err := entry.node.Advance(ctx, state)
		if err != nil {
			metrics.QuestionsTotal.WithLabelValues(string(state.Strategy), "error").Inc()
			return nil, fmt.Errorf("%s: %w", current, err)
		}
		state.apply(update)
		current = entry.next(state)
	}

	status := "ok"
	if len(state.Errors) > 0 {
		status = "degraded"
	}
	metrics.QuestionsTotal.WithLabelValues(string(state.Strategy), status).Inc()
	return state, nil
}
