package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/model"
)

//go:embed template/router_prompt.txt
var routerPrompt string

//go:embed template/reschedule_or_cancel_prompt.txt
var rescheduleOrCancelPrompt string

//go:embed template/select_appointment_prompt.txt
var selectAppointmentPrompt string

// renderStatic wraps a fixed system prompt in the Eino prompt component so
// prompt callbacks still fire for static classifier instructions.
func renderStatic(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("classifier prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("classifier prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

// RenderStageRouter returns the stage-router classifier instruction.
func RenderStageRouter(ctx context.Context) (string, error) {
	return renderStatic(ctx, routerPrompt)
}

// RenderRescheduleOrCancel returns the reschedule-or-cancel classifier instruction.
func RenderRescheduleOrCancel(ctx context.Context) (string, error) {
	return renderStatic(ctx, rescheduleOrCancelPrompt)
}

// RenderAppointmentSelection renders the appointment-selection instruction
// with the serialized appointment list and conversation transcript.
// Known tokens are substituted directly because the template body contains
// literal braces in its few-shot examples.
func RenderAppointmentSelection(ctx context.Context, appts []model.Appointment, history []*schema.Message) (string, error) {
	content := strings.NewReplacer(
		"{appointments}", FormatAppointments(appts),
		"{messages}", FormatTranscript(history),
	).Replace(selectAppointmentPrompt)
	return renderStatic(ctx, content)
}

// FormatAppointments serializes the appointment list for the selection prompt.
func FormatAppointments(appts []model.Appointment) string {
	parts := make([]string, 0, len(appts))
	for _, a := range appts {
		parts = append(parts, a.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatTranscript serializes history as `role: "content"` lines, the shape
// the selection prompt's examples use. Tool traffic is omitted.
func FormatTranscript(history []*schema.Message) string {
	var b strings.Builder
	for _, msg := range history {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			fmt.Fprintf(&b, "user: %q\n", msg.Content)
		case schema.Assistant:
			fmt.Fprintf(&b, "bot: %q\n", msg.Content)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
