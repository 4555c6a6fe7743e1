package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	"github.com/apptflow-poc/server/internal/agent/graph/conversations"
	"github.com/apptflow-poc/server/internal/agent/graph/nodes"
	"github.com/apptflow-poc/server/internal/agent/graph/tools"
	"github.com/apptflow-poc/server/internal/agent/model"
	"github.com/apptflow-poc/server/internal/agent/repo"
)

// scriptedModel replays a fixed sequence of responses. It satisfies the
// tool-calling model interface so it can stand in for both the classifier
// and the agent model.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	calls     [][]*schema.Message
}

func newScriptedModel(responses ...*schema.Message) *scriptedModel {
	return &scriptedModel{responses: responses}
}

func (m *scriptedModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.calls))
	}
	out := m.responses[0]
	m.responses = m.responses[1:]
	return out, nil
}

func (m *scriptedModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// repeatingToolModel always requests the same tool call, to exercise the
// step budget.
type repeatingToolModel struct {
	scriptedModel
}

func (m *repeatingToolModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	return schema.AssistantMessage("", []schema.ToolCall{
		{Function: schema.FunctionCall{Name: tools.ToolWebSearch, Arguments: `{"query":"anything"}`}},
	}), nil
}

func (m *repeatingToolModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *repeatingToolModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type testHarness struct {
	runner     Runner
	repository model.ConversationRepository
	classifier *scriptedModel
}

func buildTestGraph(t *testing.T, classifier *scriptedModel, agent einomodel.ToolCallingChatModel, maxToolCalls int) *testHarness {
	t.Helper()

	repository := repo.NewInMemoryConversationRepository()
	promptCfg := model.AssistantPromptConfig{
		BusinessType: "home services company",
		BusinessName: "BrightNest Home Services",
	}

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ChatModels: &nodes.ChatModels{
			Classifier:          classifier,
			Agent:               agent,
			ClassifierModelName: "gemini-2.5-flash-lite",
			AgentModelName:      "gemini-2.5-flash",
		},
		MessagesManager:   conversations.NewMessagesManager(repository),
		AssistantPrompt:   &promptCfg,
		AppointmentSource: appointments.NewStaticSource(),
		SearchProvider:    tools.NewStaticSearchProvider(),
		ToolMaxCalls:      maxToolCalls,
	})
	require.NoError(t, err)

	return &testHarness{
		runner:     &graphRunner{runnable: runnable},
		repository: repository,
		classifier: classifier,
	}
}

func TestFreshCancellationSuggestsReschedule(t *testing.T) {
	classifier := newScriptedModel(schema.AssistantMessage("1", nil))
	agent := newScriptedModel()
	h := buildTestGraph(t, classifier, agent, 10)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "I want to cancel my appointment",
	})
	require.NoError(t, err)
	assert.Equal(t, nodes.SuggestRescheduleMessage, reply)

	// No agent model turns on this branch.
	assert.Zero(t, agent.callCount())

	history, err := h.repository.LoadHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, nodes.SuggestRescheduleMessage, history.Messages[1].Content)
}

func TestGeneralQuestionRunsAgentLoop(t *testing.T) {
	classifier := newScriptedModel(schema.AssistantMessage("2", nil))
	agent := newScriptedModel(
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call_1", Function: schema.FunctionCall{
				Name:      tools.ToolWebSearch,
				Arguments: `{"query":"plumbing repair costs"}`,
			}},
		}),
		schema.AssistantMessage("Typical plumbing repairs take under two hours.", nil),
	)
	h := buildTestGraph(t, classifier, agent, 10)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "how long does a plumbing repair take?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Typical plumbing repairs take under two hours.", reply)
	assert.Equal(t, 2, agent.callCount())

	history, err := h.repository.LoadHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "Typical plumbing repairs take under two hours.", history.Messages[1].Content)
}

func TestRescheduleDecisionEscalates(t *testing.T) {
	classifier := newScriptedModel(
		schema.AssistantMessage("3", nil), // stage router
		schema.AssistantMessage("1", nil), // reschedule decision
	)
	h := buildTestGraph(t, classifier, newScriptedModel(), 10)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "actually, can we move it to Friday?",
	})
	require.NoError(t, err)
	assert.Equal(t, nodes.RescheduleEscalationMessage, reply)
	assert.Equal(t, 2, classifier.callCount())
}

func TestCancelDecisionConfirmsSelectedAppointment(t *testing.T) {
	classifier := newScriptedModel(
		schema.AssistantMessage("3", nil), // stage router
		schema.AssistantMessage("2", nil), // cancel decision
		schema.AssistantMessage("1", nil), // appointment selection
	)
	h := buildTestGraph(t, classifier, newScriptedModel(), 10)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "no, just cancel the cleaning one",
	})
	require.NoError(t, err)
	assert.Equal(t, nodes.ConfirmationMessage, reply)
	assert.Equal(t, 3, classifier.callCount())

	// The selection prompt carries the serialized appointment book.
	selectionContext := classifier.calls[2]
	require.NotEmpty(t, selectionContext)
	assert.Contains(t, selectionContext[0].Content, "Home cleaning service")
	assert.Contains(t, selectionContext[0].Content, "Plumbing repair")
}

func TestUnresolvedSelectionAsksForClarification(t *testing.T) {
	classifier := newScriptedModel(
		schema.AssistantMessage("3", nil),
		schema.AssistantMessage("2", nil),
		schema.AssistantMessage("-1", nil), // unresolved sentinel
	)
	h := buildTestGraph(t, classifier, newScriptedModel(), 10)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "cancel it",
	})
	require.NoError(t, err)
	assert.Equal(t, nodes.ClarificationMessage, reply)
}

func TestMalformedClassifierOutputAbortsRun(t *testing.T) {
	classifier := newScriptedModel(schema.AssistantMessage("sure, happy to help!", nil))
	h := buildTestGraph(t, classifier, newScriptedModel(), 10)

	_, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "hello",
	})
	require.Error(t, err)
}

func TestStepBudgetSubstitutesFallback(t *testing.T) {
	classifier := newScriptedModel(schema.AssistantMessage("2", nil))
	agent := &repeatingToolModel{}
	h := buildTestGraph(t, classifier, agent, 2)

	reply, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "keep searching until you find it",
	})
	require.NoError(t, err)
	assert.Equal(t, nodes.StepBudgetFallbackMessage, reply)

	// Budget 2 means two tool round trips, then the third request is
	// substituted: three agent model turns total.
	assert.Equal(t, 3, agent.callCount())

	history, err := h.repository.LoadHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, nodes.StepBudgetFallbackMessage, history.Messages[1].Content)
}

func TestToolResultsFlowBackToAgent(t *testing.T) {
	classifier := newScriptedModel(schema.AssistantMessage("2", nil))
	agent := newScriptedModel(
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call_1", Function: schema.FunctionCall{
				Name:      tools.ToolListAppointments,
				Arguments: `{}`,
			}},
		}),
		schema.AssistantMessage("You have two appointments.", nil),
	)
	h := buildTestGraph(t, classifier, agent, 10)

	_, err := h.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "what do I have booked?",
	})
	require.NoError(t, err)

	// Second agent turn sees the tool result appended to the transcript.
	require.Equal(t, 2, agent.callCount())
	secondTurn := agent.calls[1]
	last := secondTurn[len(secondTurn)-1]
	require.Equal(t, schema.Tool, last.Role)

	var payload struct {
		Appointments []model.Appointment `json:"appointments"`
		Total        int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(last.Content), &payload))
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, 1, payload.Appointments[0].ID)
}

func TestHistoryAccumulatesAcrossTurns(t *testing.T) {
	classifier := newScriptedModel(
		schema.AssistantMessage("2", nil),
		schema.AssistantMessage("2", nil),
	)
	agent := newScriptedModel(
		schema.AssistantMessage("We open at 8am.", nil),
		schema.AssistantMessage("And we close at 6pm.", nil),
	)
	h := buildTestGraph(t, classifier, agent, 10)
	ctx := context.Background()

	_, err := h.runner.Invoke(ctx, model.QueryInput{ConversationID: "conv-1", Query: "when do you open?"})
	require.NoError(t, err)
	_, err = h.runner.Invoke(ctx, model.QueryInput{ConversationID: "conv-1", Query: "and close?"})
	require.NoError(t, err)

	history, err := h.repository.LoadHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 4)

	// The second run's agent context included the first run's turns.
	secondAgentContext := agent.calls[1]
	require.GreaterOrEqual(t, len(secondAgentContext), 4)
	assert.Equal(t, "when do you open?", secondAgentContext[1].Content)
	assert.Equal(t, "We open at 8am.", secondAgentContext[2].Content)
}

func TestBuildGraphValidatesConfig(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	require.Error(t, err)

	_, err = BuildGraph(context.Background(), &GraphConfig{})
	require.Error(t, err)
}
