// Package prompts holds the instruction profiles for the three oracle calls,
// embedded at build time.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed ROUTER.md GENERATE.md SYNTHESIZE.md
var promptsFS embed.FS

// Prompts contains the system prompts for each oracle call.
type Prompts struct {
	Router     string // strategy classification
	Generate   string // SQL generation
	Synthesize string // answer synthesis
}

// Load reads all prompts from the embedded filesystem.
func Load() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Router, err = loadPrompt("ROUTER.md"); err != nil {
		return nil, err
	}
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, err
	}
	if p.Synthesize, err = loadPrompt("SYNTHESIZE.md"); err != nil {
		return nil, err
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := promptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
