// Package llm adapts the neutral ChatModel contract onto the OpenAI chat
// completions API with function calling. It is the only package that speaks
// the SDK's wire types; the registry and the loop stay model-agnostic.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

type Model struct {
	client      *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int
}

var _ contractx.ChatModel = (*Model)(nil)

func NewModel(client *openaisdk.Client, model string, temperature float64, maxTokens int) (*Model, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model name is required", contractx.ErrValidation)
	}
	return &Model{
		client:      client,
		model:       strings.TrimSpace(model),
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Complete serializes the conversation and the tool schemas exactly as
// declared, performs one round-trip, and maps the response back to either a
// final reply or structured tool calls. Transport errors are returned
// unwrapped so the recovery policy can classify them.
func (m *Model) Complete(ctx context.Context, req contractx.ModelRequest) (contractx.ModelResponse, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.model),
		Messages: buildMessages(req),
	}
	if m.temperature >= 0 {
		params.Temperature = openaisdk.Float(m.temperature)
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(m.maxTokens))
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.ModelResponse{}, err
	}
	if completion == nil || len(completion.Choices) == 0 {
		return contractx.ModelResponse{}, fmt.Errorf("%w: completion has no choices", contractx.ErrSchemaViolation)
	}

	msg := completion.Choices[0].Message
	resp := contractx.ModelResponse{Content: strings.TrimSpace(msg.Content)}

	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if call.ID == "" || name == "" {
			return contractx.ModelResponse{}, fmt.Errorf("%w: tool call without id or name", contractx.ErrSchemaViolation)
		}

		// Unparsable arguments become an empty map on purpose: the
		// validation layer then rejects the call and the rejection is
		// reported back to the model as a tool error.
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				log.Warn().Str("tool", name).Err(err).Msg("tool call arguments are not valid JSON")
				args = map[string]any{}
			}
		}

		resp.ToolCalls = append(resp.ToolCalls, contractx.ToolCallRequest{
			ID:   call.ID,
			Name: name,
			Args: args,
		})
	}

	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return contractx.ModelResponse{}, fmt.Errorf("%w: completion is empty", contractx.ErrSchemaViolation)
	}
	return resp, nil
}

func buildMessages(req contractx.ModelRequest) []openaisdk.ChatCompletionMessageParamUnion {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}

	for _, turn := range req.Turns {
		switch turn.Role {
		case contractx.RoleCustomer:
			msgs = append(msgs, openaisdk.UserMessage(turn.Content))
		case contractx.RoleAgent:
			if len(turn.ToolCalls) == 0 {
				msgs = append(msgs, openaisdk.AssistantMessage(turn.Content))
				continue
			}
			msgs = append(msgs, assistantToolCallMessage(turn))
		case contractx.RoleToolReply:
			msgs = append(msgs, openaisdk.ToolMessage(turn.Content, turn.ToolCallID))
		}
	}
	return msgs
}

func assistantToolCallMessage(turn contractx.ConversationTurn) openaisdk.ChatCompletionMessageParamUnion {
	assistant := openaisdk.ChatCompletionAssistantMessageParam{}
	if turn.Content != "" {
		assistant.Content.OfString = openaisdk.String(turn.Content)
	}
	for _, call := range turn.ToolCalls {
		args := "{}"
		if len(call.Args) > 0 {
			if encoded, err := json.Marshal(call.Args); err == nil {
				args = string(encoded)
			}
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: args,
				},
			},
		})
	}
	return openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func buildTools(schemas []contractx.ToolSchema) []openaisdk.ChatCompletionToolUnionParam {
	if len(schemas) == 0 {
		return nil
	}
	tools := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		tools = append(tools, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        schema.Name,
			Description: openaisdk.String(schema.Description),
			Parameters:  openaisdk.FunctionParameters(schema.Parameters),
		}))
	}
	return tools
}
