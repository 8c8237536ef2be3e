package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/pkg/utils"
)

// Retriever returns the passages relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]Passage, error)
}

// Chain answers questions from retrieved context only. It keeps no state between calls.
type Chain struct {
	retriever   Retriever
	provider    llm.Provider
	model       string
	temperature float64
	abstention  string
	logger      *zap.Logger
}

// NewChain creates a retrieval chain.
func NewChain(retriever Retriever, provider llm.Provider, cfg config.RetrievalConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	abstention := cfg.AbstentionText
	if abstention == "" {
		abstention = config.DefaultAbstention
	}
	return &Chain{
		retriever:   retriever,
		provider:    provider,
		model:       cfg.ChatModel,
		temperature: cfg.Temperature,
		abstention:  abstention,
		logger:      logger,
	}
}

// Abstention returns the sentence emitted when the context is insufficient.
func (c *Chain) Abstention() string {
	return c.abstention
}

// Answer retrieves context for question and asks the model to answer from it.
// With no retrieved passages the model is not called. Whenever the answer is
// an abstention, exactly the abstention sentence is returned.
func (c *Chain) Answer(ctx context.Context, question string) (string, error) {
	passages, err := c.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		c.logger.Debug("no passages retrieved, abstaining", zap.String("question", utils.Truncate(question, 80)))
		return c.abstention, nil
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt(c.abstention)},
			{Role: llm.RoleUser, Content: UserPrompt(question, FormatContext(passages))},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if IsAbstention(answer, c.abstention) {
		return c.abstention, nil
	}
	c.logger.Debug("answered from context",
		zap.Int("passages", len(passages)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))
	return answer, nil
}

// IsAbstention reports whether answer contains the abstention sentence, ignoring case
// and surrounding quotes.
func IsAbstention(answer, abstention string) bool {
	want := strings.ToLower(strings.TrimSpace(abstention))
	if want == "" {
		return false
	}
	got := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'`))
	return strings.Contains(got, want)
}
