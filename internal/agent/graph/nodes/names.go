package nodes

// Graph node names.
const (
	NodeInputConverter       = "input_converter"
	NodeStageModel           = "stage_router_model"
	NodeStageParser          = "stage_router_parser"
	NodeFetchAppointments    = "fetch_appointments"
	NodeSuggestReschedule    = "suggest_reschedule"
	NodeDecisionAssembler    = "reschedule_or_cancel_assembler"
	NodeDecisionModel        = "reschedule_or_cancel_model"
	NodeDecisionParser       = "reschedule_or_cancel_parser"
	NodeSelectionAssembler   = "appointment_selection_assembler"
	NodeSelectionModel       = "appointment_selection_model"
	NodeSelectionParser      = "appointment_selection_parser"
	NodeConfirmation         = "cancellation_confirmation"
	NodeClarification        = "appointment_clarification"
	NodeRescheduleEscalation = "reschedule_escalation"
	NodeAgentAssembler       = "agent_context_assembler"
	NodeAgentModel           = "agent_model"
	NodeToolExecutor         = "tool_executor"
)

// Fixed assistant messages emitted by the terminal nodes and the step-budget
// substitution.
const (
	SuggestRescheduleMessage    = "I would love to cancel the appointment but would you like to reschedule instead?"
	RescheduleEscalationMessage = "Let me escalate this with a real person."
	ConfirmationMessage         = "I will cancel the appointment for you! Thank you!"
	ClarificationMessage        = "I'm not sure which appointment you mean. Could you tell me which appointment you would like to cancel?"
	StepBudgetFallbackMessage   = "Sorry, I could not find an answer to your question in the specified number of steps."
)
