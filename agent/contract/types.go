package contract

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleCustomer  Role = "user"
	RoleAgent     Role = "assistant"
	RoleToolReply Role = "tool"
)

// ConversationTurn is one entry of the dialogue transcript. Tool-result turns
// carry the correlation ID of the originating tool call; agent turns carry the
// tool calls they issued so the transcript replays to the model verbatim.
type ConversationTurn struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ToolCallRequest is a structured request from the model naming one
// registered operation. ID is the correlation identifier assigned by the
// model response.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallResult is fed back verbatim into the conversation so the model can
// react to failures instead of the loop swallowing them.
type ToolCallResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Payload   any    `json:"payload,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToolSchema is the model-facing declaration of one callable tool. Parameters
// is a JSON-schema object; the llm adapter serializes it per the declared
// schema, the registry never talks to the model itself.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ModelRequest carries conversation state plus the fixed tool catalog for one
// model round-trip.
type ModelRequest struct {
	System string
	Turns  []ConversationTurn
	Tools  []ToolSchema
}

// ModelResponse is either a final text reply or one or more tool calls.
type ModelResponse struct {
	Content   string
	ToolCalls []ToolCallRequest
}

// AgentReply is the user-facing outcome of one fully resolved utterance.
type AgentReply struct {
	Message      string
	OrderChanged bool
	OrderSummary string
	Ended        bool
	Err          error
}
