package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	"github.com/apptflow-poc/server/internal/agent/graph/conversations"
	"github.com/apptflow-poc/server/internal/agent/graph/nodes"
	"github.com/apptflow-poc/server/internal/agent/graph/observers"
	"github.com/apptflow-poc/server/internal/agent/graph/tools"
	"github.com/apptflow-poc/server/internal/agent/model"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

// FallbackApology is what callers should show the user when a run aborts
// (classifier or collaborator failure). The diagnostic detail goes to logs.
const FallbackApology = "Sorry, something went wrong on our side. Please try again in a moment."

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to compose the full conversation graph
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs ChatModels and the MessagesManager.
type Config struct {
	APIKey  string
	BaseURL string

	ClassifierModel model.ClassifierModelConfig
	AgentModel      model.AgentModelConfig
	AssistantPrompt model.AssistantPromptConfig
	Conversation    model.ConversationConfig

	ConversationRepo  model.ConversationRepository
	AppointmentSource appointments.Source
	SearchProvider    tools.SearchProvider
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModels        *nodes.ChatModels
	MessagesManager   *conversations.MessagesManager
	AssistantPrompt   *model.AssistantPromptConfig
	AppointmentSource appointments.Source
	SearchProvider    tools.SearchProvider
	ToolMaxCalls      int
}

// GraphBuilder handles the construction of the conversation graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().
			Str("conversation_id", in.ConversationID).
			Err(err).
			Msg("Conversation run aborted")
		return "", err
	}
	if out == nil {
		return "", nil
	}
	if len(out.Extra) > 0 {
		if b, err := json.Marshal(out.Extra); err == nil {
			logx.Debug().RawJSON("extra", b).Msg("Final message extras")
		}
	}
	return out.Content, nil
}

// BuildConversationGraph composes ChatModels and the MessagesManager, builds
// the graph, and returns a Runner.
func BuildConversationGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.AppointmentSource == nil {
		return nil, fmt.Errorf("appointment source is nil")
	}
	if cfg.SearchProvider == nil {
		cfg.SearchProvider = tools.NewStaticSearchProvider()
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ClassifierConfig: &cfg.ClassifierModel,
		AgentConfig:      &cfg.AgentModel,
	})
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:        cms,
		MessagesManager:   mm,
		AssistantPrompt:   &cfg.AssistantPrompt,
		AppointmentSource: cfg.AppointmentSource,
		SearchProvider:    cfg.SearchProvider,
		ToolMaxCalls:      cfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Conversation graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled conversation graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Classifier == nil || config.ChatModels.Agent == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.AssistantPrompt == nil {
		return nil, fmt.Errorf("assistant prompt config is nil")
	}
	if config.AppointmentSource == nil {
		return nil, fmt.Errorf("appointment source is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.ConversationState {
				return &model.ConversationState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools configures the agent tool set and binds it to the agent model.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	queryTools := tools.NewQueryTools(b.config.AppointmentSource, b.config.SearchProvider)
	toolInfos, err := tools.GetToolInfos(ctx, queryTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToAgentModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to agent model")
		return fmt.Errorf("failed to bind tools to agent model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               queryTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls; the
			// model sees the error and can recover on its next turn.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// Best-effort sanitize; never fail hard here.
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				return arguments, nil
			}

			switch name {
			case tools.ToolWebSearch:
				if v, ok := m["query"]; ok {
					switch vv := v.(type) {
					case string:
						m["query"] = strings.TrimSpace(vv)
					default:
						m["query"] = strings.TrimSpace(fmt.Sprint(v))
					}
				}
				if v, ok := m["max_results"]; ok {
					switch vv := v.(type) {
					case float64:
						// JSON numbers decode as float64
						m["max_results"] = clampInt(int(vv), 1, 10)
					case string:
						if n, err := parseInt(vv); err == nil {
							m["max_results"] = clampInt(n, 1, 10)
						} else {
							delete(m, "max_results")
						}
					default:
						delete(m, "max_results")
					}
				}
			case tools.ToolCancelAppointment:
				// Providers sometimes emit numeric ids as strings.
				if v, ok := m["appointment_id"]; ok {
					if s, isStr := v.(string); isStr {
						if n, err := parseInt(s); err == nil {
							m["appointment_id"] = n
						}
					}
				}
			}

			b, err := json.Marshal(m)
			if err != nil {
				return arguments, nil
			}
			return string(b), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)

	return nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	cms := b.config.ChatModels
	mm := b.config.MessagesManager

	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(mm),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	// Stage router classifier.
	b.graph.AddChatModelNode(nodes.NodeStageModel, cms.Classifier,
		compose.WithStatePostHandler(nodes.NewClassifierCostPostHandler(nodes.NodeStageModel, cms.ClassifierModelName)),
	)
	b.graph.AddLambdaNode(nodes.NodeStageParser,
		nodes.NewStageParserNode(),
		compose.WithStatePostHandler(nodes.NewStageParserPostHandler()),
	)

	// Fresh-cancellation branch.
	b.graph.AddLambdaNode(nodes.NodeFetchAppointments,
		nodes.NewFetchAppointmentsNode(b.config.AppointmentSource),
		compose.WithStatePostHandler(nodes.NewFetchAppointmentsPostHandler()),
	)
	b.graph.AddLambdaNode(nodes.NodeSuggestReschedule,
		nodes.NewSuggestRescheduleNode(mm),
	)

	// Reschedule-or-cancel classifier branch.
	b.graph.AddLambdaNode(nodes.NodeDecisionAssembler,
		nodes.NewDecisionAssemblerNode(mm),
	)
	b.graph.AddChatModelNode(nodes.NodeDecisionModel, cms.Classifier,
		compose.WithStatePostHandler(nodes.NewClassifierCostPostHandler(nodes.NodeDecisionModel, cms.ClassifierModelName)),
	)
	b.graph.AddLambdaNode(nodes.NodeDecisionParser,
		nodes.NewDecisionParserNode(),
		compose.WithStatePostHandler(nodes.NewDecisionParserPostHandler()),
	)

	// Appointment selection sub-flow.
	b.graph.AddLambdaNode(nodes.NodeSelectionAssembler,
		nodes.NewSelectionAssemblerNode(mm, b.config.AppointmentSource),
	)
	b.graph.AddChatModelNode(nodes.NodeSelectionModel, cms.Classifier,
		compose.WithStatePostHandler(nodes.NewClassifierCostPostHandler(nodes.NodeSelectionModel, cms.ClassifierModelName)),
	)
	b.graph.AddLambdaNode(nodes.NodeSelectionParser,
		nodes.NewSelectionParserNode(),
		compose.WithStatePostHandler(nodes.NewSelectionParserPostHandler()),
	)

	// Terminal message nodes.
	b.graph.AddLambdaNode(nodes.NodeConfirmation, nodes.NewConfirmationNode(mm))
	b.graph.AddLambdaNode(nodes.NodeClarification, nodes.NewClarificationNode(mm))
	b.graph.AddLambdaNode(nodes.NodeRescheduleEscalation, nodes.NewRescheduleEscalationNode(mm))

	// Agent loop.
	b.graph.AddLambdaNode(nodes.NodeAgentAssembler,
		nodes.NewAgentAssemblerNode(mm, b.config.AssistantPrompt),
	)
	b.graph.AddChatModelNode(nodes.NodeAgentModel, cms.Agent,
		compose.WithStatePreHandler(nodes.NewAgentModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewAgentModelPostHandler(mm, cms.AgentModelName)),
	)
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeStageModel},
		{nodes.NodeStageModel, nodes.NodeStageParser},
		{nodes.NodeFetchAppointments, nodes.NodeSuggestReschedule},
		{nodes.NodeSuggestReschedule, compose.END},
		{nodes.NodeDecisionAssembler, nodes.NodeDecisionModel},
		{nodes.NodeDecisionModel, nodes.NodeDecisionParser},
		{nodes.NodeSelectionAssembler, nodes.NodeSelectionModel},
		{nodes.NodeSelectionModel, nodes.NodeSelectionParser},
		{nodes.NodeConfirmation, compose.END},
		{nodes.NodeClarification, compose.END},
		{nodes.NodeRescheduleEscalation, compose.END},
		{nodes.NodeAgentAssembler, nodes.NodeAgentModel},
		{nodes.NodeToolExecutor, nodes.NodeAgentModel},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	stageBranch := compose.NewGraphBranch(
		nodes.NewStageCondition(),
		map[string]bool{
			nodes.NodeFetchAppointments: true,
			nodes.NodeAgentAssembler:    true,
			nodes.NodeDecisionAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeStageParser, stageBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding stage branch")
		return fmt.Errorf("error adding stage branch: %w", err)
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewDecisionCondition(),
		map[string]bool{
			nodes.NodeSelectionAssembler:   true,
			nodes.NodeRescheduleEscalation: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeDecisionParser, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	selectionBranch := compose.NewGraphBranch(
		nodes.NewSelectionCondition(),
		map[string]bool{
			nodes.NodeConfirmation:  true,
			nodes.NodeClarification: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSelectionParser, selectionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding selection branch")
		return fmt.Errorf("error adding selection branch: %w", err)
	}

	toolBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAgentModel, toolBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool branch")
		return fmt.Errorf("error adding tool branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps so the tool cycle can never spin unbounded even
	// if the budget flag were mishandled.
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
