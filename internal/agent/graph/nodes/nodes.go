package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	"github.com/apptflow-poc/server/internal/agent/graph/conversations"
	"github.com/apptflow-poc/server/internal/agent/graph/parsers"
	"github.com/apptflow-poc/server/internal/agent/graph/prompts"
	"github.com/apptflow-poc/server/internal/agent/model"
	errx "github.com/apptflow-poc/server/internal/core/error"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

// NewInputConverterPreHandler creates the pre-handler for the InputConverter
// node. It seeds the run state and resets the step-budget counters.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.ConversationState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.ConversationState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode saves the user turn and assembles the stage-router
// classifier context: [router instruction] + full history.
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		if err := mm.SaveUserMessage(ctx, input.ConversationID, input.Query); err != nil {
			return nil, fmt.Errorf("save user message: %w", err)
		}

		routerPrompt, err := prompts.RenderStageRouter(ctx)
		if err != nil {
			return nil, fmt.Errorf("render stage router prompt: %w", err)
		}

		messages, err := mm.BuildContext(ctx, input.ConversationID, routerPrompt)
		if err != nil {
			return nil, fmt.Errorf("build stage router context: %w", err)
		}

		return messages, nil
	})
}

// NewClassifierCostPostHandler records usage cost for a classifier model node.
func NewClassifierCostPostHandler(nodeName, modelName string) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.ConversationState) (*schema.Message, error) {
		recordUsageCost(out, state, nodeName, modelName)
		return out, nil
	}
}

// NewStageParserNode decodes the stage-router output as a stage in 1..3.
// Malformed output aborts the run; guessing a stage risks misrouting.
func NewStageParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (int, error) {
		stage, err := parsers.ParseStage(resp.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error parsing stage router output")
			return 0, err
		}
		return stage, nil
	})
}

// NewStageParserPostHandler writes the parsed stage into state. The stage is
// set exactly once per run; the graph never revisits the router.
func NewStageParserPostHandler() func(context.Context, int, *model.ConversationState) (int, error) {
	return func(ctx context.Context, out int, state *model.ConversationState) (int, error) {
		state.RouterStage = out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("stage", out).
			Msg("Stage router decision")
		return out, nil
	}
}

// NewFetchAppointmentsNode calls the scheduling data source. Source errors
// propagate unrecovered; retry policy belongs to the source.
func NewFetchAppointmentsNode(src appointments.Source) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) ([]model.Appointment, error) {
		appts, err := src.Fetch(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Error fetching appointments")
			return nil, errx.WrapCollaborator(fmt.Errorf("fetch appointments: %w", err))
		}
		return appts, nil
	})
}

// NewFetchAppointmentsPostHandler stores the fetched list verbatim in state:
// same order, same content.
func NewFetchAppointmentsPostHandler() func(context.Context, []model.Appointment, *model.ConversationState) ([]model.Appointment, error) {
	return func(ctx context.Context, out []model.Appointment, state *model.ConversationState) ([]model.Appointment, error) {
		state.Appointments = out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("count", len(out)).
			Msg("Appointments loaded into state")
		return out, nil
	}
}

// NewSuggestRescheduleNode emits the fixed reschedule suggestion that closes
// the fresh-cancellation branch.
func NewSuggestRescheduleNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []model.Appointment) (*schema.Message, error) {
		return emitFixedMessage(ctx, mm, SuggestRescheduleMessage)
	})
}

// NewDecisionAssemblerNode assembles the reschedule-or-cancel classifier
// context: [decision instruction] + full history.
func NewDecisionAssemblerNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) ([]*schema.Message, error) {
		conversationID, err := conversationIDFromState(ctx)
		if err != nil {
			return nil, err
		}

		decisionPrompt, err := prompts.RenderRescheduleOrCancel(ctx)
		if err != nil {
			return nil, fmt.Errorf("render reschedule-or-cancel prompt: %w", err)
		}

		messages, err := mm.BuildContext(ctx, conversationID, decisionPrompt)
		if err != nil {
			return nil, fmt.Errorf("build reschedule-or-cancel context: %w", err)
		}

		return messages, nil
	})
}

// NewDecisionParserNode decodes the reschedule-or-cancel output, 1 or 2.
func NewDecisionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (int, error) {
		decision, err := parsers.ParseDecision(resp.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error parsing reschedule-or-cancel output")
			return 0, err
		}
		return decision, nil
	})
}

// NewDecisionParserPostHandler writes the parsed decision into state.
func NewDecisionParserPostHandler() func(context.Context, int, *model.ConversationState) (int, error) {
	return func(ctx context.Context, out int, state *model.ConversationState) (int, error) {
		state.RescheduleOrCancelDecision = out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("decision", out).
			Msg("Reschedule-or-cancel decision")
		return out, nil
	}
}

// NewSelectionAssemblerNode renders the appointment-selection prompt with the
// serialized appointment list and transcript. When the run reached this
// branch without fetching appointments, they are loaded from the source
// first; the classifier cannot pick from an empty list.
func NewSelectionAssemblerNode(mm *conversations.MessagesManager, src appointments.Source) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) ([]*schema.Message, error) {
		var conversationID string
		var appts []model.Appointment
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
			conversationID = state.ConversationID
			appts = state.Appointments
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if len(appts) == 0 {
			fetched, err := src.Fetch(ctx)
			if err != nil {
				return nil, errx.WrapCollaborator(fmt.Errorf("fetch appointments for selection: %w", err))
			}
			appts = fetched
			err = compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
				state.Appointments = fetched
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to store appointments: %w", err)
			}
		}

		history, err := mm.History(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("load transcript for selection: %w", err)
		}

		selectionPrompt, err := prompts.RenderAppointmentSelection(ctx, appts, history)
		if err != nil {
			return nil, fmt.Errorf("render appointment selection prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(selectionPrompt),
			schema.UserMessage("Determine which appointment to cancel."),
		}, nil
	})
}

// NewSelectionParserNode decodes the selected appointment id or the -1 sentinel.
func NewSelectionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (int, error) {
		id, err := parsers.ParseAppointmentID(resp.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error parsing appointment selection output")
			return 0, err
		}
		return id, nil
	})
}

// NewSelectionParserPostHandler writes the selected appointment id into state.
func NewSelectionParserPostHandler() func(context.Context, int, *model.ConversationState) (int, error) {
	return func(ctx context.Context, out int, state *model.ConversationState) (int, error) {
		state.AppointmentID = out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("appointment_id", out).
			Msg("Appointment selection decision")
		return out, nil
	}
}

// NewConfirmationNode emits the fixed cancellation confirmation. Reached only
// for a resolved appointment id.
func NewConfirmationNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) (*schema.Message, error) {
		return emitFixedMessage(ctx, mm, ConfirmationMessage)
	})
}

// NewClarificationNode asks which appointment the user means when the
// selection classifier returned the unresolved sentinel.
func NewClarificationNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) (*schema.Message, error) {
		return emitFixedMessage(ctx, mm, ClarificationMessage)
	})
}

// NewRescheduleEscalationNode emits the fixed human-escalation message for
// reschedule requests.
func NewRescheduleEscalationNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) (*schema.Message, error) {
		return emitFixedMessage(ctx, mm, RescheduleEscalationMessage)
	})
}

// NewAgentAssemblerNode assembles the agent-loop context: [system prompt with
// current timestamp] + full history.
func NewAgentAssemblerNode(mm *conversations.MessagesManager, promptCfg *model.AssistantPromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ int) ([]*schema.Message, error) {
		conversationID, err := conversationIDFromState(ctx)
		if err != nil {
			return nil, err
		}

		systemPrompt, err := prompts.RenderAgentSystem(ctx, *promptCfg, time.Now())
		if err != nil {
			return nil, fmt.Errorf("render agent system prompt: %w", err)
		}

		messages, err := mm.BuildContext(ctx, conversationID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build agent context: %w", err)
		}

		return messages, nil
	})
}

// NewAgentModelPreHandler appends incoming messages to the loop history and
// marks the step budget exhausted once the tool round trips reach the limit.
func NewAgentModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.ConversationState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.ConversationState) ([]*schema.Message, error) {
		// Heuristic fix for Gemini OpenAI-compat: ensure tool results carry
		// a tool_call_id matching the most recent assistant tool call.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := strings.TrimSpace(msg.ToolCalls[0].ID); id != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Str("conversation_id", state.ConversationID).
				Msg("Step budget exhausted - next tool request will be substituted")
		}

		return state.History, nil
	}
}

// NewAgentModelPostHandler finalizes each agent model response: cost
// accounting, tool-call id normalization, the step-budget substitution, and
// persisting final answers.
func NewAgentModelPostHandler(mm *conversations.MessagesManager, modelName string) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.ConversationState) (*schema.Message, error) {
		recordUsageCost(out, state, NodeAgentModel, modelName)

		// Normalize tool calls: some providers (Gemini OpenAI-compat) may
		// omit tool_call IDs.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		// Step-budget substitution: when the budget is exhausted and the
		// model still requested a tool call, the tool is not executed. The
		// pending response is rewritten in place before it is appended, so
		// its identity (ResponseMeta, Extra) survives the substitution.
		if out != nil && state.ToolCallLimitReached && len(out.ToolCalls) > 0 {
			logx.Warn().
				Str("conversation_id", state.ConversationID).
				Int("pending_tool_calls", len(out.ToolCalls)).
				Msg("Substituting fallback answer for pending tool call")
			out.Content = StepBudgetFallbackMessage
			out.ToolCalls = nil
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}

		// Persist only terminal assistant answers.
		if out.Role == schema.Assistant && len(out.ToolCalls) == 0 && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewToolExecutorPreHandler counts tool round trips against the step budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.ConversationState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("conversation_id", state.ConversationID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}

		return in, nil
	}
}

// emitFixedMessage persists a fixed assistant message and returns it as the
// node output. Persistence failures are logged, not fatal: the user still
// gets the reply.
func emitFixedMessage(ctx context.Context, mm *conversations.MessagesManager, content string) (*schema.Message, error) {
	conversationID, err := conversationIDFromState(ctx)
	if err != nil {
		return nil, err
	}

	if err := mm.SaveResponse(ctx, conversationID, content); err != nil {
		logx.Error().
			Str("conversation_id", conversationID).
			Err(err).
			Msg("Error saving fixed assistant message")
	}

	return schema.AssistantMessage(content, nil), nil
}

func conversationIDFromState(ctx context.Context) (string, error) {
	var conversationID string
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
		conversationID = state.ConversationID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}
	return conversationID, nil
}
