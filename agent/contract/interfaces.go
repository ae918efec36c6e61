package contract

import "context"

// ChatModel is the external model boundary. The dialogue loop is its only
// caller, always through the recovery policy.
type ChatModel interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// MemoryStore is the long-term context collaborator. Failures are non-fatal:
// the loop proceeds with an empty recall result and logs the degradation.
type MemoryStore interface {
	Recall(ctx context.Context, conversationID string, query string) ([]ConversationTurn, error)
	Persist(ctx context.Context, conversationID string, turn ConversationTurn) error
}
