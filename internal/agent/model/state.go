package model

import (
	"github.com/cloudwego/eino/schema"
)

// Conversation stages produced by the stage-router classifier.
const (
	StageFreshCancellation  = 1 // user opens with a cancellation request
	StageGeneral            = 2 // anything else, handled by the agent loop
	StageRescheduleOrCancel = 3 // user is mid-flow deciding reschedule vs cancel
)

// Decisions produced by the reschedule-or-cancel classifier.
const (
	DecisionReschedule = 1
	DecisionCancel     = 2
)

// AppointmentUnresolved is the sentinel id emitted by the appointment
// selection classifier when the referenced appointment cannot be identified.
const AppointmentUnresolved = -1

// ConversationState stores per-run state for the Eino graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Concurrent runs each own an independent ConversationState; nothing is
//     shared across runs.
type ConversationState struct {
	ConversationID string

	// History is append-only. The step-budget substitution rewrites the
	// pending model response before it is appended, never an appended entry.
	History []*schema.Message

	// RouterStage and RescheduleOrCancelDecision are written exactly once
	// per run by the corresponding parser post-handlers.
	RouterStage                int
	RescheduleOrCancelDecision int

	// Appointments holds the data source result verbatim; empty until the
	// fetch node (or the selection assembler's lazy load) runs.
	Appointments []Appointment

	// AppointmentID is the id selected for cancellation. Zero means the
	// selection classifier has not run; AppointmentUnresolved means it ran
	// and could not identify an appointment.
	AppointmentID int

	ToolCallCount        int  // maintained in handlers (reset/increment)
	ToolCallLimitReached bool // set when the step budget is exhausted
	ToolCallIDSeq        int  // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this run.
	TotalCostUSD float64
}

// QueryInput represents the input for processing one user message.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}
