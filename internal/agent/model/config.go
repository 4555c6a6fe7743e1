package model

// ================ Config ================
type ConversationConfig struct {
	TTL   string `envconfig:"CONVERSATION_TTL" default:"15m"`
	Tools struct {
		// MaxCalls is the step budget for the agent loop: the maximum number
		// of model-to-tool round trips before the loop is forced to answer.
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	}
}

// ClassifierModelConfig configures the model behind the three classifier
// invocations (stage router, reschedule-or-cancel, appointment selection).
type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"64"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
}

// AgentModelConfig configures the tool-calling model of the main agent loop.
type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.4"`
}

// AssistantPromptConfig carries the business identity rendered into the
// agent system prompt.
type AssistantPromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"home services company"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"BrightNest Home Services"`
}
