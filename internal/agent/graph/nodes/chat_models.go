package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/apptflow-poc/server/internal/agent/model"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey           string
	BaseURL          string
	ClassifierConfig *model.ClassifierModelConfig
	AgentConfig      *model.AgentModelConfig
}

// ChatModels holds the classifier and agent chat models behind the Eino
// model interfaces, so tests can substitute scripted models.
type ChatModels struct {
	Classifier          einomodel.BaseChatModel
	Agent               einomodel.ToolCallingChatModel
	ClassifierModelName string
	AgentModelName      string
}

// NewChatModels creates the Gemini-backed classifier and agent models.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// Classifier model: low temperature, no thinking budget, the calls must
	// emit a single bare token.
	classifierModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ClassifierConfig.Model,
		Temperature: &config.ClassifierConfig.Temperature,
		MaxTokens:   &config.ClassifierConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	agentModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AgentConfig.Model,
		Temperature: &config.AgentConfig.Temperature,
		MaxTokens:   &config.AgentConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	return &ChatModels{
		Classifier:          classifierModel,
		Agent:               agentModel,
		ClassifierModelName: config.ClassifierConfig.Model,
		AgentModelName:      config.AgentConfig.Model,
	}, nil
}

// BindToolsToAgentModel binds the tool declarations to the agent model.
func (cm *ChatModels) BindToolsToAgentModel(ctx context.Context, tools []*schema.ToolInfo) error {
	bound, err := cm.Agent.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	cm.Agent = bound

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}
