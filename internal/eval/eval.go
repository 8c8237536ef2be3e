// Package eval measures how a deployment answers a fixed question set: answerable
// questions should get a non-empty answer, unanswerable ones the abstention sentence.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Question is one line of a JSONL question file. Fields other than question are ignored.
type Question struct {
	Question string `json:"question"`
}

// Asker answers a question. The in-process router and RemoteAsker both satisfy it.
type Asker interface {
	Route(ctx context.Context, question string) (string, error)
}

// Report is the evaluation summary written as JSON.
type Report struct {
	AnswerableCount            int     `json:"answerable_count"`
	AnswerableNonEmpty         int     `json:"answerable_nonempty"`
	AnswerableRate             float64 `json:"answerable_rate"`
	UnanswerableCount          int     `json:"unanswerable_count"`
	UnanswerableAbstentions    int     `json:"unanswerable_abstentions"`
	UnanswerableAbstentionRate float64 `json:"unanswerable_abstention_rate"`
	AvgLatencySeconds          float64 `json:"avg_latency_s"`
}

// LoadQuestions reads a JSONL file, skipping blank lines.
func LoadQuestions(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions: %w", err)
	}
	defer f.Close()

	var out []Question
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var q Question
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("%s:%d: missing question", path, line)
		}
		out = append(out, q)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return out, nil
}

// Evaluator runs question sets against an Asker.
type Evaluator struct {
	asker      Asker
	abstention string
	logger     *zap.Logger
	since      func(time.Time) time.Duration
}

// NewEvaluator creates an Evaluator. An answer counts as an abstention when it
// contains abstention, ignoring case.
func NewEvaluator(asker Asker, abstention string, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		asker:      asker,
		abstention: strings.ToLower(strings.TrimSpace(abstention)),
		logger:     logger,
		since:      time.Since,
	}
}

// Run asks every question in order and summarises the outcome. The first failed
// question aborts the run.
func (e *Evaluator) Run(ctx context.Context, answerable, unanswerable []Question) (*Report, error) {
	var total time.Duration
	ask := func(q Question) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		start := time.Now()
		out, err := e.asker.Route(ctx, q.Question)
		elapsed := e.since(start)
		total += elapsed
		if err != nil {
			return "", fmt.Errorf("question %q: %w", q.Question, err)
		}
		e.logger.Debug("answered", zap.String("question", q.Question), zap.Duration("latency", elapsed))
		return out, nil
	}

	r := &Report{AnswerableCount: len(answerable), UnanswerableCount: len(unanswerable)}
	for _, q := range answerable {
		out, err := ask(q)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(out) != "" {
			r.AnswerableNonEmpty++
		}
	}
	for _, q := range unanswerable {
		out, err := ask(q)
		if err != nil {
			return nil, err
		}
		if e.abstention != "" && strings.Contains(strings.ToLower(out), e.abstention) {
			r.UnanswerableAbstentions++
		}
	}

	n := len(answerable) + len(unanswerable)
	r.AnswerableRate = round3(float64(r.AnswerableNonEmpty) / float64(max(1, len(answerable))))
	r.UnanswerableAbstentionRate = round3(float64(r.UnanswerableAbstentions) / float64(max(1, len(unanswerable))))
	r.AvgLatencySeconds = round3(total.Seconds() / float64(max(1, n)))
	return r, nil
}

// WriteReport writes r as indented JSON, creating the parent directory.
func WriteReport(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
