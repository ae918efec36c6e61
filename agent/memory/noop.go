package memory

import (
	"context"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

// NoopStore disables long-term memory. Recall finds nothing and Persist
// discards; both always succeed.
type NoopStore struct{}

var _ contractx.MemoryStore = NoopStore{}

func NewNoopStore() NoopStore { return NoopStore{} }

func (NoopStore) Recall(context.Context, string, string) ([]contractx.ConversationTurn, error) {
	return nil, nil
}

func (NoopStore) Persist(context.Context, string, contractx.ConversationTurn) error {
	return nil
}
