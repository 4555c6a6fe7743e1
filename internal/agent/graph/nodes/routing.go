package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/model"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

// The routing decision tables are plain functions over typed steps, resolved
// into node names by an explicit switch inside each branch condition. The
// tables themselves stay independently testable.

// NextStep is the branch taken after the stage router.
type NextStep int

const (
	StepFetchAppointments NextStep = iota
	StepAgentLoop
	StepDetermineRescheduleOrCancel
)

// RouteFromStage maps a router stage to the branch to run. Stage 3 and any
// unexpected value fall through to the reschedule-or-cancel classifier.
func RouteFromStage(stage int) NextStep {
	switch stage {
	case model.StageFreshCancellation:
		return StepFetchAppointments
	case model.StageGeneral:
		return StepAgentLoop
	default:
		return StepDetermineRescheduleOrCancel
	}
}

// NewStageCondition resolves RouteFromStage into graph node names.
func NewStageCondition() func(context.Context, int) (string, error) {
	return func(ctx context.Context, stage int) (string, error) {
		step := RouteFromStage(stage)
		logx.Debug().Int("stage", stage).Msg("routing from stage router")
		switch step {
		case StepFetchAppointments:
			return NodeFetchAppointments, nil
		case StepAgentLoop:
			return NodeAgentAssembler, nil
		default:
			return NodeDecisionAssembler, nil
		}
	}
}

// CancellationStep is the branch taken after the reschedule-or-cancel classifier.
type CancellationStep int

const (
	StepSelectAppointment CancellationStep = iota
	StepRescheduleEscalation
)

// RouteFromDecision maps the classifier decision: only an explicit cancel
// proceeds to appointment selection.
func RouteFromDecision(decision int) CancellationStep {
	if decision == model.DecisionCancel {
		return StepSelectAppointment
	}
	return StepRescheduleEscalation
}

// NewDecisionCondition resolves RouteFromDecision into graph node names.
func NewDecisionCondition() func(context.Context, int) (string, error) {
	return func(ctx context.Context, decision int) (string, error) {
		logx.Debug().Int("decision", decision).Msg("routing from reschedule-or-cancel classifier")
		if RouteFromDecision(decision) == StepSelectAppointment {
			return NodeSelectionAssembler, nil
		}
		return NodeRescheduleEscalation, nil
	}
}

// ConfirmationStep is the branch taken after the appointment selection classifier.
type ConfirmationStep int

const (
	StepConfirmCancellation ConfirmationStep = iota
	StepClarifyAppointment
)

// RouteFromAppointmentID never confirms a cancellation for the unresolved
// sentinel; it asks the user to clarify instead.
func RouteFromAppointmentID(appointmentID int) ConfirmationStep {
	if appointmentID == model.AppointmentUnresolved {
		return StepClarifyAppointment
	}
	return StepConfirmCancellation
}

// NewSelectionCondition resolves RouteFromAppointmentID into graph node names.
func NewSelectionCondition() func(context.Context, int) (string, error) {
	return func(ctx context.Context, appointmentID int) (string, error) {
		logx.Debug().Int("appointment_id", appointmentID).Msg("routing from appointment selection")
		if RouteFromAppointmentID(appointmentID) == StepClarifyAppointment {
			return NodeClarification, nil
		}
		return NodeConfirmation, nil
	}
}

// NewToolExecutorCondition routes the agent model output: pending tool calls
// cycle back through the tool executor unless the step budget is exhausted.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("step budget exhausted - routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("routing to tool executor")
			return NodeToolExecutor, nil
		}

		logx.Debug().Msg("no tool calls - routing to end")
		return compose.END, nil
	}
}
