package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
	orderx "github.com/hanbit-dev/kiosk-agent/agent/order"
	"github.com/hanbit-dev/kiosk-agent/agent/recovery"
	toolx "github.com/hanbit-dev/kiosk-agent/agent/tool"
)

const testPrompt = "당신은 주문 키오스크 직원입니다."

type step struct {
	resp contractx.ModelResponse
	err  error
}

// scriptModel replays a fixed sequence of model outcomes.
type scriptModel struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (m *scriptModel) Complete(_ context.Context, _ contractx.ModelRequest) (contractx.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.steps) {
		return contractx.ModelResponse{}, errors.New("script exhausted")
	}
	s := m.steps[m.calls]
	m.calls++
	return s.resp, s.err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "request timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// recordingMemory counts recalls and persists and optionally fails both.
type recordingMemory struct {
	mu       sync.Mutex
	fail     bool
	recalls  int
	persists int
	recalled []contractx.ConversationTurn
}

func (m *recordingMemory) Recall(context.Context, string, string) ([]contractx.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalls++
	if m.fail {
		return nil, contractx.ErrMemoryUnavailable
	}
	return m.recalled, nil
}

func (m *recordingMemory) Persist(_ context.Context, _ string, turn contractx.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persists++
	if m.fail {
		return contractx.ErrMemoryUnavailable
	}
	return nil
}

func fastPolicy(sleeps *[]time.Duration) *recovery.Policy {
	var mu sync.Mutex
	return recovery.NewPolicy(
		recovery.Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true},
		recovery.WithJitterFunc(func() float64 { return 0.5 }),
		recovery.WithSleepFunc(func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				mu.Lock()
				*sleeps = append(*sleeps, d)
				mu.Unlock()
			}
			return nil
		}),
	)
}

func newTestAgent(t *testing.T, model contractx.ChatModel, memory contractx.MemoryStore, sleeps *[]time.Duration) (*Agent, *Session) {
	t.Helper()

	catalog := menux.NewCatalog()
	session, err := NewSession(catalog, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	registry := toolx.NewRegistry(catalog, session.Order)
	agent, err := NewAgent(model, registry, memory, fastPolicy(sleeps), testPrompt)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}
	return agent, session
}

func toolCall(id, name string, args map[string]any) contractx.ToolCallRequest {
	return contractx.ToolCallRequest{ID: id, Name: name, Args: args}
}

func TestHandleTurnCompoundOrder(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c1", toolx.ToolAddItem, map[string]any{"menu_id": "B001", "quantity": float64(2)}),
			toolCall("c2", toolx.ToolAddItem, map[string]any{"menu_id": "D001", "quantity": float64(1)}),
		}}},
		{resp: contractx.ModelResponse{Content: "클래식 버거 2개와 콜라 1개를 담았습니다."}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	reply := agent.HandleTurn(context.Background(), session, "클래식 버거 2개랑 콜라 주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}
	if !reply.OrderChanged {
		t.Fatal("OrderChanged = false, want true")
	}

	snap := session.Order.Snapshot()
	if len(snap.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(snap.Lines))
	}
	if want := int64(2*5900 + 2000); snap.Total != want {
		t.Fatalf("Total = %d, want %d", snap.Total, want)
	}
	if !strings.Contains(reply.OrderSummary, "총 금액") {
		t.Fatalf("summary missing total: %q", reply.OrderSummary)
	}
	if session.Phase != PhaseAwaitingInput {
		t.Fatalf("Phase = %s, want awaiting_input", session.Phase)
	}
}

func TestHandleTurnRemoveItem(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c1", toolx.ToolAddItem, map[string]any{"menu_id": "B001", "quantity": float64(2)}),
		}}},
		{resp: contractx.ModelResponse{Content: "담았습니다."}},
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c2", toolx.ToolRemoveItem, map[string]any{"item_ref": "클래식 버거", "quantity": float64(1)}),
		}}},
		{resp: contractx.ModelResponse{Content: "하나를 뺐습니다."}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	if reply := agent.HandleTurn(context.Background(), session, "클래식 버거 2개 주세요"); reply.Err != nil {
		t.Fatalf("first turn error = %v", reply.Err)
	}
	reply := agent.HandleTurn(context.Background(), session, "클래식 버거 하나 빼주세요")
	if reply.Err != nil {
		t.Fatalf("second turn error = %v", reply.Err)
	}

	snap := session.Order.Snapshot()
	if snap.ItemCount != 1 || snap.Total != 5900 {
		t.Fatalf("unexpected order: %+v", snap)
	}
}

func TestHandleTurnRetriesTimeoutsThenSucceeds(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c1", toolx.ToolAddItem, map[string]any{"menu_id": "B001"}),
		}}},
		{resp: contractx.ModelResponse{Content: "담았습니다."}},
	}}

	var sleeps []time.Duration
	agent, session := newTestAgent(t, model, &recordingMemory{}, &sleeps)

	reply := agent.HandleTurn(context.Background(), session, "클래식 버거 주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}

	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("backoff sleeps = %v, want [1s 2s]", sleeps)
	}
	// the tool call ran exactly once despite the retried model call
	if snap := session.Order.Snapshot(); snap.ItemCount != 1 {
		t.Fatalf("ItemCount = %d, want 1", snap.ItemCount)
	}
}

func TestHandleTurnExhaustedRetriesLeavesOrderUntouched(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{err: timeoutErr{}},
		{err: timeoutErr{}},
		{err: timeoutErr{}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	if _, err := session.Order.AddItem("B001", 1, nil); err != nil {
		t.Fatalf("seed AddItem() error = %v", err)
	}
	before := session.Order.Snapshot()

	reply := agent.HandleTurn(context.Background(), session, "콜라도 주세요")
	if !errors.Is(reply.Err, contractx.ErrModelUnavailable) {
		t.Fatalf("reply.Err = %v, want ErrModelUnavailable", reply.Err)
	}
	if !strings.Contains(reply.Message, "죄송") {
		t.Fatalf("expected apology, got %q", reply.Message)
	}

	after := session.Order.Snapshot()
	if after.Total != before.Total || len(after.Lines) != len(before.Lines) {
		t.Fatalf("order changed on model failure: before=%+v after=%+v", before, after)
	}
	if session.Ended() {
		t.Fatal("session must stay usable after model failure")
	}
}

func TestHandleTurnDuplicateToolCallIDAppliedOnce(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("dup", toolx.ToolAddItem, map[string]any{"menu_id": "B001"}),
			toolCall("dup", toolx.ToolAddItem, map[string]any{"menu_id": "B001"}),
		}}},
		{resp: contractx.ModelResponse{Content: "담았습니다."}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	reply := agent.HandleTurn(context.Background(), session, "클래식 버거 주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}
	if snap := session.Order.Snapshot(); snap.ItemCount != 1 {
		t.Fatalf("ItemCount = %d, want 1 (duplicate id must not re-execute)", snap.ItemCount)
	}
}

func TestHandleTurnConfirmEndsSession(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c1", toolx.ToolAddItem, map[string]any{"menu_id": "B001"}),
			toolCall("c2", toolx.ToolConfirmOrder, nil),
		}}},
		{resp: contractx.ModelResponse{Content: "주문이 확정되었습니다. 감사합니다!"}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	reply := agent.HandleTurn(context.Background(), session, "클래식 버거 하나 주문하고 확정해주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}
	if !reply.Ended || !session.Ended() {
		t.Fatalf("session should end after confirm: reply.Ended=%v phase=%s", reply.Ended, session.Phase)
	}
	if session.Order.Status() != orderx.StatusConfirmed {
		t.Fatalf("Status = %s, want confirmed", session.Order.Status())
	}

	followUp := agent.HandleTurn(context.Background(), session, "콜라 추가요")
	if !followUp.Ended || followUp.Err != nil {
		t.Fatalf("ended session should refuse politely: %+v", followUp)
	}
}

func TestHandleTurnToolErrorRoutedBackToModel(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("c1", toolx.ToolAddItem, map[string]any{"menu_id": "피자"}),
		}}},
		{resp: contractx.ModelResponse{Content: "죄송하지만 피자는 메뉴에 없습니다."}},
	}}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	reply := agent.HandleTurn(context.Background(), session, "피자 주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}
	if reply.OrderChanged {
		t.Fatal("failed tool call must not mark the order changed")
	}

	// the tool error travelled through the transcript as a tool reply
	var sawToolError bool
	for _, turn := range session.Turns {
		if turn.Role == contractx.RoleToolReply && strings.Contains(turn.Content, "unknown_menu_item") {
			sawToolError = true
		}
	}
	if !sawToolError {
		t.Fatal("expected unknown_menu_item tool reply in transcript")
	}
}

func TestHandleTurnMemoryFailureDegrades(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{Content: "네, 말씀하세요."}},
	}}
	mem := &recordingMemory{fail: true}
	agent, session := newTestAgent(t, model, mem, nil)

	reply := agent.HandleTurn(context.Background(), session, "안녕하세요")
	if reply.Err != nil {
		t.Fatalf("memory failure must not fail the turn: %v", reply.Err)
	}
	if reply.Message != "네, 말씀하세요." {
		t.Fatalf("Message = %q", reply.Message)
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()
	if mem.recalls != 1 || mem.persists < 1 {
		t.Fatalf("recalls=%d persists=%d", mem.recalls, mem.persists)
	}
}

// gatedMemory blocks agent-turn persists until released, so tests can hold a
// background write in flight.
type gatedMemory struct {
	recordingMemory
	gate chan struct{}
}

func (m *gatedMemory) Persist(ctx context.Context, id string, turn contractx.ConversationTurn) error {
	if turn.Role == contractx.RoleAgent {
		<-m.gate
	}
	return m.recordingMemory.Persist(ctx, id, turn)
}

func TestDrainWaitsForInFlightPersist(t *testing.T) {
	t.Parallel()

	model := &scriptModel{steps: []step{
		{resp: contractx.ModelResponse{Content: "네, 말씀하세요."}},
	}}
	mem := &gatedMemory{gate: make(chan struct{})}
	agent, session := newTestAgent(t, model, mem, nil)

	reply := agent.HandleTurn(context.Background(), session, "안녕하세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}

	// the assistant-turn write is still held by the gate
	expired, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := agent.Drain(expired); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain(blocked) error = %v, want DeadlineExceeded", err)
	}

	close(mem.gate)
	if err := agent.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()
	if mem.persists != 2 {
		t.Fatalf("persists = %d, want customer + assistant turn", mem.persists)
	}
}

func TestHandleTurnRejectsBadInput(t *testing.T) {
	t.Parallel()

	model := &scriptModel{}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	for _, input := range []string{"", "   ", "<script>alert(1)</script>"} {
		reply := agent.HandleTurn(context.Background(), session, input)
		if !errors.Is(reply.Err, contractx.ErrValidation) {
			t.Fatalf("HandleTurn(%q) err = %v, want ErrValidation", input, reply.Err)
		}
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times for rejected input", model.calls)
	}
	if len(session.Turns) != 0 {
		t.Fatalf("rejected input must not enter the transcript: %d turns", len(session.Turns))
	}
}

func TestHandleTurnToolRoundBudget(t *testing.T) {
	t.Parallel()

	// the model keeps asking for the order forever
	steps := make([]step, 0, maxToolRounds+1)
	for i := 0; i < maxToolRounds+1; i++ {
		steps = append(steps, step{resp: contractx.ModelResponse{ToolCalls: []contractx.ToolCallRequest{
			toolCall("g"+strings.Repeat("x", i+1), toolx.ToolGetOrder, nil),
		}}})
	}
	model := &scriptModel{steps: steps}
	agent, session := newTestAgent(t, model, &recordingMemory{}, nil)

	reply := agent.HandleTurn(context.Background(), session, "주문 내역 보여주세요")
	if reply.Err != nil {
		t.Fatalf("HandleTurn() error = %v", reply.Err)
	}
	if model.calls != maxToolRounds {
		t.Fatalf("model calls = %d, want %d", model.calls, maxToolRounds)
	}
	if !strings.Contains(reply.Message, "죄송") {
		t.Fatalf("expected fallback apology, got %q", reply.Message)
	}
}

func TestSessionWindowKeepsToolPairsTogether(t *testing.T) {
	t.Parallel()

	catalog := menux.NewCatalog()
	session, err := NewSession(catalog, time.Now())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	for i := 0; i < 6; i++ {
		session.append(contractx.ConversationTurn{Role: contractx.RoleCustomer, Content: "q"})
		session.append(contractx.ConversationTurn{
			Role:      contractx.RoleAgent,
			ToolCalls: []contractx.ToolCallRequest{{ID: "id", Name: toolx.ToolGetOrder}},
		})
		session.append(contractx.ConversationTurn{Role: contractx.RoleToolReply, Content: "{}", ToolCallID: "id"})
		session.append(contractx.ConversationTurn{Role: contractx.RoleAgent, Content: "a"})
	}

	window := session.window(10)
	if len(window) > 12 {
		t.Fatalf("window too large: %d", len(window))
	}
	if window[0].Role == contractx.RoleToolReply {
		t.Fatal("window must not start with an orphaned tool reply")
	}
}
