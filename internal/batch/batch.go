// Package batch drives the copilot over a JSONL question file, isolating
// per-question failures so one bad question never aborts the run.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent"
)

// Question is one input record.
type Question struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Answer is one output record.
type Answer struct {
	ID          string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

// Runner answers a single question. *agent.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, question, formatHint string) (*agent.State, error)
}

// Confidence heuristic: full workflows that end clean score 0.8, workflows
// with unresolved errors 0.4, and hard failures 0.0.
const (
	confidenceClean    = 0.8
	confidenceDegraded = 0.4
	confidenceFailed   = 0.0
)

// Process reads questions from inPath, answers each sequentially, and writes
// JSONL answers to outPath. Only I/O failures are returned as errors.
func Process(ctx context.Context, log *slog.Logger, runner Runner, inPath, outPath string) error {
	questions, err := ReadQuestions(inPath)
	if err != nil {
		return err
	}
	log.Info("batch: loaded questions", "count", len(questions), "path", inPath)

	answers := make([]Answer, 0, len(questions))
	for _, q := range questions {
		log.Info("batch: processing", "id", q.ID)
		answers = append(answers, processOne(ctx, log, runner, q))
	}

	if err := WriteAnswers(outPath, answers); err != nil {
		return err
	}
	log.Info("batch: wrote answers", "count", len(answers), "path", outPath)
	return nil
}

// processOne runs a single question through the workflow, converting any
// error or panic into a degraded answer record.
func processOne(ctx context.Context, log *slog.Logger, runner Runner, q Question) (answer Answer) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch: panic processing question", "id", q.ID, "panic", r)
			answer = failedAnswer(q.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	state, err := runner.Run(ctx, q.Question, q.FormatHint)
	if err != nil {
		log.Error("batch: question failed", "id", q.ID, "error", err)
		return failedAnswer(q.ID, err.Error())
	}

	confidence := confidenceClean
	if len(state.Errors) > 0 {
		confidence = confidenceDegraded
	}
	citations := state.Citations
	if citations == nil {
		citations = []string{}
	}
	return Answer{
		ID:          q.ID,
		FinalAnswer: state.FinalAnswer,
		SQL:         state.SQLQuery,
		Confidence:  confidence,
		Explanation: state.Explanation,
		Citations:   citations,
	}
}

func failedAnswer(id, explanation string) Answer {
	return Answer{
		ID:          id,
		FinalAnswer: "Error processing request.",
		SQL:         "",
		Confidence:  confidenceFailed,
		Explanation: explanation,
		Citations:   []string{},
	}
}

// ReadQuestions parses a newline-delimited JSON question file. Blank lines
// are skipped.
func ReadQuestions(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch input: %w", err)
	}
	defer f.Close()

	var questions []Question
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var q Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("parse question at line %d: %w", line, err)
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch input: %w", err)
	}
	return questions, nil
}

// WriteAnswers writes answers as newline-delimited JSON.
func WriteAnswers(path string, answers []Answer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, a := range answers {
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("encode answer %s: %w", a.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush batch output: %w", err)
	}
	return nil
}
