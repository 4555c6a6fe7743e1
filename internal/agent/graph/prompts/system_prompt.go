package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var agentSystemPrompt string

// RenderAgentSystem renders the agent-loop system prompt with the business
// identity and current timestamp, via the Eino prompt component (Go template)
// so prompt callbacks fire.
func RenderAgentSystem(ctx context.Context, cfg model.AssistantPromptConfig, now time.Time) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(agentSystemPrompt),
	)
	vars := map[string]any{
		"BusinessType": cfg.BusinessType,
		"BusinessName": cfg.BusinessName,
		"SystemTime":   now.UTC().Format(time.RFC3339),
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("agent system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("agent system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
