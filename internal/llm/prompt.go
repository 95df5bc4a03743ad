package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/logsentinel/internal/interfaces"
	"github.com/ternarybob/logsentinel/internal/models"
	"github.com/ternarybob/logsentinel/internal/pipeline"
)

// ExplainErrorGroup asks svc to produce a one-paragraph, plain-English
// explanation of group using sample as context. A nil svc, or any
// failure reaching the model, is tagged pipeline.KindLLMUnavailable and
// must never fail the caller's enclosing job (spec §5/§7).
func ExplainErrorGroup(ctx context.Context, svc interfaces.LLMService, group models.ErrorGroup, sample models.ErrorRecord) (string, error) {
	if svc == nil {
		return "", pipeline.Wrap(pipeline.KindLLMUnavailable, "llm service not configured", nil)
	}

	prompt := buildExplainPrompt(group, sample)
	text, err := svc.Explain(ctx, prompt)
	if err != nil {
		return "", pipeline.Wrap(pipeline.KindLLMUnavailable, "explain call failed", err)
	}
	return text, nil
}

func buildExplainPrompt(group models.ErrorGroup, sample models.ErrorRecord) string {
	return fmt.Sprintf(`You are helping an on-call engineer understand a recurring application error.

Error type: %s
Canonical message: %s
Occurrences: %d (first seen %s, last seen %s)

Sample stack trace:
%s

In one short paragraph, explain what is likely going wrong and what the engineer should check first. Do not repeat the raw stack trace back verbatim.`,
		group.ErrorType, group.CanonicalMessage, group.OccurrenceCount,
		group.FirstSeen.Format("2006-01-02 15:04:05"), group.LastSeen.Format("2006-01-02 15:04:05"),
		sample.Stack)
}
