// Package llm provides the text-generation clients used by the workflow.
// The workflow calls the oracle with three instruction profiles: strategy
// classification, SQL generation, and answer synthesis. Which profile is in
// effect is entirely a property of the prompts; the client only transports.
package llm

import "context"

// Client is the interface for interacting with an LLM backend.
type Client interface {
	// Complete sends a system and user prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
