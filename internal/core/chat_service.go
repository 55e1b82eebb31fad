package core

import (
	"context"
	"time"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/store"
	"github.com/massy-ia/citydesk/internal/utils"
)

const conversationTitleLength = 50

// ConversationStore persists chat turns. Every read and delete is filtered by owner.
type ConversationStore interface {
	RecordChatTurn(ctx context.Context, turn store.ChatTurn) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	GetConversation(ctx context.Context, id, userID string) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id, userID string) error
}

// Notifier triggers external workflows without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, workflow string, payload any)
}

type ChatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	ContextUsed    bool   `json:"context_used"`
}

type ChatService struct {
	store     ConversationStore
	retriever ContextRetriever
	assistant *Assistant
	notifier  Notifier
	now       func() time.Time
}

func NewChatService(conversations ConversationStore, retriever ContextRetriever, assistant *Assistant, notifier Notifier) *ChatService {
	return &ChatService{
		store:     conversations,
		retriever: retriever,
		assistant: assistant,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Chat answers one message and appends the exchange to the caller's most
// recently updated conversation, starting one when the caller has none.
func (s *ChatService) Chat(ctx context.Context, caller *store.User, message string) (*ChatReply, error) {
	message = utils.SanitizeInput(message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}

	snippets := ""
	if s.retriever != nil {
		var err error
		snippets, err = s.retriever.RelevantContext(ctx, message)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to get relevant context, proceeding without it")
			snippets = ""
		}
	}

	response := s.assistant.CityAnswer(ctx, message, snippets)

	if s.notifier != nil {
		s.notifier.Notify(ctx, adapters.WorkflowElectionBot, map[string]any{
			"query":     message,
			"user":      caller.Public(),
			"timestamp": s.now().UnixMilli(),
		})
	}

	conv, err := s.store.RecordChatTurn(ctx, store.ChatTurn{
		UserID:      caller.ID,
		NewTitle:    utils.Truncate(message, conversationTitleLength),
		UserMessage: message,
		BotMessage:  response,
	})
	if err != nil {
		return nil, err
	}
	return &ChatReply{Response: response, ConversationID: conv.ID, ContextUsed: snippets != ""}, nil
}

func (s *ChatService) Conversations(ctx context.Context, caller *store.User) ([]store.Conversation, error) {
	return s.store.ListConversations(ctx, caller.ID)
}

func (s *ChatService) Conversation(ctx context.Context, caller *store.User, id string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id, caller.ID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, caller *store.User, id string) error {
	return s.store.DeleteConversation(ctx, id, caller.ID)
}
