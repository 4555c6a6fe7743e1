package conversations

import (
	"context"

	"github.com/apptflow-poc/server/internal/agent/model"

	"github.com/cloudwego/eino/schema"
)

// MessagesManager mediates between the graph nodes and the conversation
// repository: it persists user and assistant turns and assembles the message
// lists the model nodes consume.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
}

func NewMessagesManager(conversationRepo model.ConversationRepository) *MessagesManager {
	return &MessagesManager{conversationRepo: conversationRepo}
}

// SaveUserMessage appends the incoming user turn to the conversation.
func (cm *MessagesManager) SaveUserMessage(ctx context.Context, conversationID string, query string) error {
	return cm.conversationRepo.AddMessage(ctx, conversationID, schema.UserMessage(query))
}

// BuildContext returns [system prompt] + full stored history. All three
// classifiers and the agent loop consume this shape.
func (cm *MessagesManager) BuildContext(ctx context.Context, conversationID string, systemPrompt string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(history.Messages)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, history.Messages...)

	return messages, nil
}

// History returns the stored conversation transcript.
func (cm *MessagesManager) History(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return history.Messages, nil
}

// SaveResponse appends a final assistant turn to the conversation.
func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return cm.conversationRepo.AddMessage(ctx, conversationID, assistantMsg)
}
