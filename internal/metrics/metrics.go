// Package metrics exposes prometheus counters for the copilot workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_questions_total",
			Help: "Questions processed, labeled by routed strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	RepairCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_repair_cycles_total",
			Help: "SQL repair cycles executed across all questions",
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_llm_requests_total",
			Help: "LLM completion requests, labeled by backend and status",
		},
		[]string{"backend", "status"},
	)
)

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
