// Package llm implements the optional explain feature backed by Claude,
// adapted from the teacher's ClaudeService into the single-method
// interfaces.LLMService shape this pipeline needs.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/interfaces"
)

const defaultMaxTokens = 1024

// ExplainService is a best-effort Claude-backed LLMService. Every failure
// it returns is a plain error; the JobRunner/caller is responsible for
// wrapping it as pipeline.KindLLMUnavailable so an outage never blocks
// the core ingest pipeline (spec §7).
type ExplainService struct {
	client    anthropic.Client
	model     string
	timeout   time.Duration
	maxTokens int
	logger    arbor.ILogger
}

// New builds an ExplainService from LLMConfig. Returns an error only on
// malformed configuration (bad timeout duration or missing API key);
// callers should treat that as "LLM disabled", not a startup failure.
func New(cfg common.LLMConfig, logger arbor.ILogger) (*ExplainService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api_key is required when llm.enabled is true")
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("llm: invalid timeout %q: %w", cfg.Timeout, err)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-haiku-3-5-20241022"
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	return &ExplainService{
		client:    client,
		model:     model,
		timeout:   timeout,
		maxTokens: defaultMaxTokens,
		logger:    logger,
	}, nil
}

// Explain sends prompt to Claude and returns the generated text, bounded
// by the configured timeout (60s default per spec §5).
func (s *ExplainService) Explain(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("llm: prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: claude request failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("llm: empty response from claude")
	}

	s.logger.Debug().
		Str("model", s.model).
		Dur("duration", time.Since(start)).
		Int("response_length", out.Len()).
		Msg("llm explain completed")

	return out.String(), nil
}

var _ interfaces.LLMService = (*ExplainService)(nil)
