package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T, ttl time.Duration) (*RedisConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConversationRepository(client, ttl), mr
}

func TestRedisRepoRoundTrip(t *testing.T) {
	r, _ := newTestRedisRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.UserMessage("cancel my appointment")))
	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.AssistantMessage("Which one?", nil)))

	history, err := r.LoadHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, "cancel my appointment", history.Messages[0].Content)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)
	assert.Equal(t, "Which one?", history.Messages[1].Content)
}

func TestRedisRepoPreservesToolCalls(t *testing.T) {
	r, _ := newTestRedisRepo(t, 0)
	ctx := context.Background()

	toolMsg := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "call_1", Function: schema.FunctionCall{Name: "web_search", Arguments: `{"query":"hours"}`}},
	})
	require.NoError(t, r.AddMessage(ctx, "conv-1", toolMsg))
	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.ToolMessage(`{"results":[]}`, "call_1")))

	history, err := r.LoadHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)

	require.Len(t, history.Messages[0].ToolCalls, 1)
	assert.Equal(t, "call_1", history.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "web_search", history.Messages[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", history.Messages[1].ToolCallID)
}

func TestRedisRepoEmptyHistory(t *testing.T) {
	r, _ := newTestRedisRepo(t, 0)

	history, err := r.LoadHistory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history.Messages)

	count, err := r.GetMessageCount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisRepoTTLRefreshedOnTouch(t *testing.T) {
	ttl := 30 * time.Minute
	r, mr := newTestRedisRepo(t, ttl)
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.UserMessage("hi")))
	key := fmt.Sprintf("conversation:%s:messages", "conv-1")
	assert.Equal(t, ttl, mr.TTL(key))

	mr.FastForward(10 * time.Minute)
	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.AssistantMessage("hello", nil)))
	assert.Equal(t, ttl, mr.TTL(key))
}

func TestRedisRepoClearHistory(t *testing.T) {
	r, _ := newTestRedisRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, "conv-1", schema.UserMessage("hi")))
	require.NoError(t, r.ClearHistory(ctx, "conv-1"))

	count, err := r.GetMessageCount(ctx, "conv-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisRepoConversationIsolation(t *testing.T) {
	r, _ := newTestRedisRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, "conv-a", schema.UserMessage("a")))
	require.NoError(t, r.AddMessage(ctx, "conv-b", schema.UserMessage("b")))

	historyA, err := r.LoadHistory(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, historyA.Messages, 1)
	assert.Equal(t, "a", historyA.Messages[0].Content)
}
