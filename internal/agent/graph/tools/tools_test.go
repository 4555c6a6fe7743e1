package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptflow-poc/server/internal/agent/appointments"
)

func invoke(t *testing.T, bt tool.BaseTool, args string) string {
	t.Helper()
	inv, ok := bt.(tool.InvokableTool)
	require.True(t, ok, "tool must be invokable")
	out, err := inv.InvokableRun(context.Background(), args)
	require.NoError(t, err)
	return out
}

func TestListAppointmentsTool_ReturnsFixtureVerbatim(t *testing.T) {
	bt := createListAppointmentsTool(appointments.NewStaticSource())

	out := invoke(t, bt, `{}`)

	var result ListAppointmentsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 2, result.Total)
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, result.Appointments[0].ID)
	assert.Equal(t, "Home cleaning service", result.Appointments[0].Description)
	assert.Equal(t, 2, result.Appointments[1].ID)
	assert.Equal(t, "Plumbing repair", result.Appointments[1].Description)
}

func TestCancelAppointmentTool(t *testing.T) {
	bt := createCancelAppointmentTool(appointments.NewStaticSource())

	out := invoke(t, bt, `{"appointment_id": 2}`)
	var result CancelAppointmentOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Appointment 2 cancelled.", result.Receipt)
	assert.Empty(t, result.Error)

	// Unknown ids come back as an error payload, not a tool failure.
	out = invoke(t, bt, `{"appointment_id": 99}`)
	result = CancelAppointmentOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.Receipt)
	assert.Contains(t, result.Error, "appointment not found")
}

func TestWebSearchTool_EmptyQuery(t *testing.T) {
	bt := createWebSearchTool(NewStaticSearchProvider())

	out := invoke(t, bt, `{"query": "  "}`)
	var result WebSearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "query is required", result.Error)
}

type failingProvider struct{}

func (failingProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	return nil, errors.New("backend down")
}

func TestWebSearchTool_ProviderFailureIsRecoverable(t *testing.T) {
	bt := createWebSearchTool(failingProvider{})

	out := invoke(t, bt, `{"query": "plumbing"}`)
	var result WebSearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result.Error, "backend down")
}

func TestStaticSearchProvider_MatchAndFallback(t *testing.T) {
	p := NewStaticSearchProvider()

	results, err := p.Search(context.Background(), "plumbing", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Title, "plumbing")

	results, err = p.Search(context.Background(), "quantum chromodynamics", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "No direct matches")
}

func TestGetToolInfos(t *testing.T) {
	ts := NewQueryTools(appointments.NewStaticSource(), NewStaticSearchProvider())
	infos, err := GetToolInfos(context.Background(), ts)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	names := []string{infos[0].Name, infos[1].Name, infos[2].Name}
	assert.ElementsMatch(t, names, []string{ToolWebSearch, ToolListAppointments, ToolCancelAppointment})
}
