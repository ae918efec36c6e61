// Package dialogue drives the turn loop: customer input in, model rounds and
// tool executions in the middle, one natural-language reply out. The loop owns
// phase transitions; the order only ever changes through registry execution.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	orderx "github.com/hanbit-dev/kiosk-agent/agent/order"
	"github.com/hanbit-dev/kiosk-agent/agent/recovery"
	toolx "github.com/hanbit-dev/kiosk-agent/agent/tool"
	validatex "github.com/hanbit-dev/kiosk-agent/agent/validate"
)

const (
	maxToolRounds = 5
	historyWindow = 10

	apologyUnavailable = "죄송합니다. 지금 주문 시스템 연결이 원활하지 않아요. 잠시 후 다시 말씀해 주시겠어요? 주문 내역은 그대로 유지됩니다."
	apologyExhausted   = "죄송합니다. 요청을 한 번에 처리하지 못했어요. 조금 더 간단히 말씀해 주시겠어요?"
	farewellEnded      = "주문이 이미 종료되었습니다. 새로 주문하시려면 처음부터 다시 시작해 주세요."
)

// Agent wires the model, the tool registry, the recovery policy, and the
// memory collaborator into one turn handler.
type Agent struct {
	model    contractx.ChatModel
	registry *toolx.Registry
	memory   contractx.MemoryStore
	policy   *recovery.Policy
	system   string

	persistWG sync.WaitGroup
}

func NewAgent(
	model contractx.ChatModel,
	registry *toolx.Registry,
	memory contractx.MemoryStore,
	policy *recovery.Policy,
	systemPrompt string,
) (*Agent, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: tool registry is required", contractx.ErrValidation)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: recovery policy is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: system prompt is empty", contractx.ErrPromptMissing)
	}
	if memory == nil {
		memory = noopMemory{}
	}
	return &Agent{
		model:    model,
		registry: registry,
		memory:   memory,
		policy:   policy,
		system:   strings.TrimSpace(systemPrompt),
	}, nil
}

// HandleTurn resolves one customer utterance end to end. On model failure the
// transcript keeps the customer turn but the order is left untouched and the
// session returns to awaiting input.
func (a *Agent) HandleTurn(ctx context.Context, session *Session, input string) contractx.AgentReply {
	if session == nil {
		return contractx.AgentReply{Err: fmt.Errorf("%w: nil session", contractx.ErrValidation)}
	}
	if session.Ended() {
		return contractx.AgentReply{Message: farewellEnded, Ended: true}
	}

	cleaned := strings.TrimSpace(input)
	if err := validatex.UserInput(cleaned); err != nil {
		return contractx.AgentReply{
			Message: "입력을 이해하지 못했어요. 다시 말씀해 주시겠어요?",
			Err:     err,
		}
	}

	recalled := a.recallAndPersist(ctx, session.ID, cleaned)

	session.append(contractx.ConversationTurn{Role: contractx.RoleCustomer, Content: cleaned})
	before := session.Order.Snapshot()

	reply := a.resolve(ctx, session, recalled)

	if reply.Err == nil {
		after := session.Order.Snapshot()
		reply.OrderChanged = orderChanged(before, after)
		if reply.OrderChanged || after.Status != orderx.StatusOpen {
			reply.OrderSummary = orderx.FormatSummary(after)
		}
		if after.Status != orderx.StatusOpen {
			session.Phase = PhaseEnded
			reply.Ended = true
		}
		a.persistAsync(session.ID, contractx.ConversationTurn{
			Role:    contractx.RoleAgent,
			Content: reply.Message,
		})
	}
	if !reply.Ended {
		session.Phase = PhaseAwaitingInput
	}
	return reply
}

// resolve runs model rounds until the model answers in plain text or the tool
// round budget runs out.
func (a *Agent) resolve(ctx context.Context, session *Session, recalled []contractx.ConversationTurn) contractx.AgentReply {
	executed := map[string]contractx.ToolCallResult{}

	for round := 0; round < maxToolRounds; round++ {
		session.Phase = PhaseModelCall

		req := contractx.ModelRequest{
			System: a.systemPrompt(recalled),
			Turns:  session.window(historyWindow),
			Tools:  toolx.Schemas(),
		}

		resp, err := recovery.Do(ctx, a.policy, func(ctx context.Context) (contractx.ModelResponse, error) {
			return a.model.Complete(ctx, req)
		})
		if err != nil {
			log.Error().Err(err).Str("conversation_id", session.ID).Msg("model call failed after retries")
			return contractx.AgentReply{Message: apologyUnavailable, Err: err}
		}

		if len(resp.ToolCalls) == 0 {
			session.Phase = PhaseResponding
			session.append(contractx.ConversationTurn{Role: contractx.RoleAgent, Content: resp.Content})
			return contractx.AgentReply{Message: resp.Content}
		}

		session.Phase = PhaseToolExecution
		session.append(contractx.ConversationTurn{
			Role:      contractx.RoleAgent,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result, seen := executed[call.ID]
			if !seen {
				result = a.registry.Execute(ctx, call)
				executed[call.ID] = result
			} else {
				log.Warn().
					Str("conversation_id", session.ID).
					Str("tool", call.Name).
					Str("call_id", call.ID).
					Msg("duplicate tool call id, reusing previous result")
			}
			session.append(contractx.ConversationTurn{
				Role:       contractx.RoleToolReply,
				Content:    encodeToolResult(result),
				ToolCallID: call.ID,
			})
		}
	}

	log.Warn().Str("conversation_id", session.ID).Int("rounds", maxToolRounds).Msg("tool round budget exhausted")
	session.append(contractx.ConversationTurn{Role: contractx.RoleAgent, Content: apologyExhausted})
	return contractx.AgentReply{Message: apologyExhausted}
}

// recallAndPersist runs the two memory operations concurrently. Either one
// failing degrades the turn, never aborts it.
func (a *Agent) recallAndPersist(ctx context.Context, conversationID, input string) []contractx.ConversationTurn {
	var (
		wg       sync.WaitGroup
		recalled []contractx.ConversationTurn
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		turns, err := a.memory.Recall(ctx, conversationID, input)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("memory recall failed, continuing without context")
			return
		}
		recalled = turns
	}()
	go func() {
		defer wg.Done()
		turn := contractx.ConversationTurn{Role: contractx.RoleCustomer, Content: input}
		if err := a.memory.Persist(ctx, conversationID, turn); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("memory persist failed")
		}
	}()
	wg.Wait()

	return recalled
}

func (a *Agent) persistAsync(conversationID string, turn contractx.ConversationTurn) {
	a.persistWG.Add(1)
	go func() {
		defer a.persistWG.Done()
		// detached from the turn's context (the reply is already out) but
		// bounded, and tracked so Drain can wait for it on shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.memory.Persist(ctx, conversationID, turn); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("memory persist failed")
		}
	}()
}

// Drain blocks until in-flight memory writes finish or ctx expires, so the
// final assistant turn is not lost on process exit.
func (a *Agent) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.persistWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) systemPrompt(recalled []contractx.ConversationTurn) string {
	if len(recalled) == 0 {
		return a.system
	}

	var sb strings.Builder
	sb.WriteString(a.system)
	sb.WriteString("\n\n이전 대화에서 참고할 내용:\n")
	for _, turn := range recalled {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func encodeToolResult(result contractx.ToolCallResult) string {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error_kind":"internal","error":%q}`, err.Error())
	}
	return string(encoded)
}

func orderChanged(before, after orderx.Snapshot) bool {
	if before.Status != after.Status ||
		before.Total != after.Total ||
		before.ItemCount != after.ItemCount ||
		before.SpecialRequest != after.SpecialRequest ||
		len(before.Lines) != len(after.Lines) {
		return true
	}
	for i := range before.Lines {
		b, f := before.Lines[i], after.Lines[i]
		if b.MenuID != f.MenuID || b.Quantity != f.Quantity || len(b.Options) != len(f.Options) {
			return true
		}
		for j := range b.Options {
			if b.Options[j].ID != f.Options[j].ID {
				return true
			}
		}
	}
	return false
}

type noopMemory struct{}

func (noopMemory) Recall(context.Context, string, string) ([]contractx.ConversationTurn, error) {
	return nil, nil
}

func (noopMemory) Persist(context.Context, string, contractx.ConversationTurn) error {
	return nil
}
