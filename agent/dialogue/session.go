package dialogue

import (
	"fmt"
	"time"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
	orderx "github.com/hanbit-dev/kiosk-agent/agent/order"
)

// Phase names the loop state between and within turns.
type Phase string

const (
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseModelCall     Phase = "model_call"
	PhaseToolExecution Phase = "tool_execution"
	PhaseResponding    Phase = "responding"
	PhaseEnded         Phase = "ended"
)

// Session holds one customer conversation: the transcript, the order being
// built, and the phase of the loop. A session is single-goroutine; the agent
// never shares one across turns in flight.
type Session struct {
	ID    string
	Phase Phase
	Turns []contractx.ConversationTurn

	Order     *orderx.Order
	StartedAt time.Time
}

// NewSession starts a conversation with a fresh open order.
func NewSession(catalog *menux.Catalog, now time.Time) (*Session, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", contractx.ErrValidation)
	}

	ord := orderx.New(catalog, now)
	return &Session{
		ID:        fmt.Sprintf("CONV-%s", ord.ID()),
		Phase:     PhaseAwaitingInput,
		Order:     ord,
		StartedAt: now.UTC(),
	}, nil
}

// Ended reports whether the conversation reached a terminal phase.
func (s *Session) Ended() bool {
	return s.Phase == PhaseEnded
}

// ResetOrder abandons the current order and starts a new open one, keeping
// the transcript. Used when the customer asks to start over.
func (s *Session) ResetOrder(catalog *menux.Catalog, now time.Time) error {
	if s.Ended() {
		return fmt.Errorf("%w: session has ended", contractx.ErrInvalidState)
	}

	s.Order = orderx.New(catalog, now)
	return nil
}

func (s *Session) append(turn contractx.ConversationTurn) {
	s.Turns = append(s.Turns, turn)
}

// window returns the most recent turns for the model request, never splitting
// a tool exchange: a tool-reply turn must follow the agent turn that issued
// the call, so the cut point backs up past orphaned tool replies.
func (s *Session) window(size int) []contractx.ConversationTurn {
	if size <= 0 || len(s.Turns) <= size {
		return s.Turns
	}

	start := len(s.Turns) - size
	for start > 0 && s.Turns[start].Role == contractx.RoleToolReply {
		start--
	}
	return s.Turns[start:]
}
