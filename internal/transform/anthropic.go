package transform

import (
	"encoding/json"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// AnthropicTransformer speaks the Anthropic Messages API dialect, grounded
// on original_source/src/transformers/providers/anthropic.rs and extended
// per spec.md §4.2.2: max_tokens is required on the wire (defaulted to
// 1000), content is always an array of typed blocks, and finish-reason /
// tool_choice mapping is richer than the original's placeholder version.
type AnthropicTransformer struct{}

func NewAnthropicTransformer() *AnthropicTransformer { return &AnthropicTransformer{} }

const defaultAnthropicMaxTokens = 1000

func (t *AnthropicTransformer) ProviderName() string    { return "anthropic" }
func (t *AnthropicTransformer) SupportsTools() bool     { return true }
func (t *AnthropicTransformer) SupportsStreaming() bool { return true }

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	Messages    []anthropicMessage   `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	Stream      *bool                `json:"stream,omitempty"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []anthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   *string                 `json:"stop_reason"`
	Usage        anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicStreamEvent covers the handful of SSE event shapes the
// transformer understands: content_block_delta (text/tool_use deltas) and
// everything else, which degrades to an empty-choices chunk the consumer
// can skip per spec.md §4.2.2.
type anthropicStreamEvent struct {
	Type  string                `json:"type"`
	Index *int                  `json:"index,omitempty"`
	Delta *anthropicStreamDelta `json:"delta,omitempty"`
}

type anthropicStreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

func anthropicContentToUniversal(blocks []anthropicContentBlock) []universal.ContentPart {
	parts := make([]universal.ContentPart, len(blocks))
	for i, b := range blocks {
		switch b.Type {
		case "tool_use":
			parts[i] = universal.ContentPart{Type: "tool_use", ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input}
		case "tool_result":
			parts[i] = universal.ContentPart{Type: "tool_result", ToolUseID: b.ToolUseID, Text: b.Content, IsError: b.IsError}
		default:
			parts[i] = universal.ContentPart{Type: "text", Text: b.Text}
		}
	}
	return parts
}

func anthropicContentFromUniversal(content universal.MessageContent) []anthropicContentBlock {
	parts := content.AsParts()
	blocks := make([]anthropicContentBlock, len(parts))
	for i, p := range parts {
		switch p.Type {
		case "tool_use":
			blocks[i] = anthropicContentBlock{Type: "tool_use", ID: p.ToolUseID, Name: p.ToolName, Input: p.ToolInput}
		case "tool_result":
			blocks[i] = anthropicContentBlock{Type: "tool_result", ToolUseID: p.ToolUseID, Content: p.Text, IsError: p.IsError}
		default:
			blocks[i] = anthropicContentBlock{Type: "text", Text: p.Text}
		}
	}
	return blocks
}

func anthropicToolChoiceToUniversal(choice *anthropicToolChoice) *universal.ToolChoice {
	if choice == nil {
		return nil
	}
	switch choice.Type {
	case "any":
		c := universal.ToolChoiceRequired
		return &c
	default:
		c := universal.ToolChoiceAuto
		return &c
	}
}

// anthropicToolChoiceFromUniversal collapses every mode but Required to
// {"type":"auto"} per spec.md §4.2.2 — Anthropic has no wire shape for
// "none" or a specific-function pin, a documented lossy direction.
func anthropicToolChoiceFromUniversal(choice *universal.ToolChoice) *anthropicToolChoice {
	if choice == nil {
		return nil
	}
	if choice.Mode == "required" {
		return &anthropicToolChoice{Type: "any"}
	}
	return &anthropicToolChoice{Type: "auto"}
}

func anthropicFinishReasonToUniversal(reason *string) string {
	if reason == nil {
		return "end_turn"
	}
	switch *reason {
	case "tool_use":
		return "tool_calls"
	case "end_turn":
		return "stop"
	default:
		return *reason
	}
}

func anthropicFinishReasonFromUniversal(reason string) *string {
	switch reason {
	case "tool_calls":
		s := "tool_use"
		return &s
	case "stop":
		s := "end_turn"
		return &s
	case "":
		return nil
	default:
		s := reason
		return &s
	}
}

func (t *AnthropicTransformer) ToUniversalRequest(raw json.RawMessage) (*universal.ChatRequest, error) {
	var req anthropicRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, deserializationErr(err)
	}

	messages := make([]universal.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = universal.ChatMessage{
			Role:    m.Role,
			Content: universal.NewPartsContent(anthropicContentToUniversal(m.Content)),
		}
	}

	var tools []universal.Tool
	for _, tool := range req.Tools {
		tools = append(tools, universal.Tool{
			Type: "function",
			Function: universal.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	maxTokens := req.MaxTokens
	return &universal.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   &maxTokens,
		Stream:      boolVal(req.Stream),
		Tools:       tools,
		ToolChoice:  anthropicToolChoiceToUniversal(req.ToolChoice),
	}, nil
}

func (t *AnthropicTransformer) FromUniversalRequest(req *universal.ChatRequest) (json.RawMessage, error) {
	messages := make([]anthropicMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = anthropicMessage{Role: m.Role, Content: anthropicContentFromUniversal(m.Content)}
	}

	var tools []anthropicTool
	for _, tool := range req.Tools {
		tools = append(tools, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}

	maxTokens := defaultAnthropicMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	out := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      boolPtr(req.Stream),
		Tools:       tools,
		ToolChoice:  anthropicToolChoiceFromUniversal(req.ToolChoice),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *AnthropicTransformer) ToUniversalResponse(raw json.RawMessage) (*universal.ChatResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, deserializationErr(err)
	}

	parts := anthropicContentToUniversal(resp.Content)
	var toolCalls []universal.ToolCall
	for _, b := range resp.Content {
		if b.Type == "tool_use" {
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			toolCalls = append(toolCalls, universal.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: universal.FunctionCall{
					Name:      b.Name,
					Arguments: args,
				},
			})
		}
	}

	choice := universal.Choice{
		Index:        0,
		Message:      universal.ChatMessage{Role: resp.Role, Content: universal.NewPartsContent(parts)},
		FinishReason: anthropicFinishReasonToUniversal(resp.StopReason),
		ToolCalls:    toolCalls,
	}

	return &universal.ChatResponse{
		ID:      resp.ID,
		Object:  resp.Type,
		Model:   resp.Model,
		Choices: []universal.Choice{choice},
		Usage: universal.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (t *AnthropicTransformer) FromUniversalResponse(resp *universal.ChatResponse) (json.RawMessage, error) {
	if len(resp.Choices) == 0 {
		return nil, newError(KindInvalidFormat, "universal response has no choices", nil)
	}
	choice := resp.Choices[0]
	blocks := anthropicContentFromUniversal(choice.Message.Content)

	out := anthropicResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      resp.Model,
		StopReason: anthropicFinishReasonFromUniversal(choice.FinishReason),
		Usage: anthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *AnthropicTransformer) ToUniversalStreamChunk(raw json.RawMessage) (*universal.ChatStreamChunk, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, deserializationErr(err)
	}

	index := 0
	if event.Index != nil {
		index = *event.Index
	}

	if event.Delta == nil {
		return &universal.ChatStreamChunk{Object: "chat.completion.chunk", Model: "anthropic", Choices: nil}, nil
	}

	switch event.Delta.Type {
	case "text_delta":
		return &universal.ChatStreamChunk{
			Object: "chat.completion.chunk",
			Model:  "anthropic",
			Choices: []universal.StreamChoice{{
				Index: index,
				Delta: universal.StreamDelta{Role: "assistant", Content: event.Delta.Text},
			}},
		}, nil
	case "input_json_delta":
		// Anthropic's tool-use streaming delta: the caller aggregates
		// subsequent deltas by index; name/arguments are empty placeholders
		// per spec.md §4.2.2.
		return &universal.ChatStreamChunk{
			Object: "chat.completion.chunk",
			Model:  "anthropic",
			Choices: []universal.StreamChoice{{
				Index: index,
				Delta: universal.StreamDelta{
					Role: "assistant",
					ToolCalls: []universal.StreamToolCall{{
						Index:    0,
						Type:     "function",
						Function: universal.StreamFunctionCall{},
					}},
				},
			}},
		}, nil
	default:
		return &universal.ChatStreamChunk{Object: "chat.completion.chunk", Model: "anthropic", Choices: nil}, nil
	}
}

func (t *AnthropicTransformer) FromUniversalStreamChunk(chunk *universal.ChatStreamChunk) (json.RawMessage, error) {
	if len(chunk.Choices) == 0 {
		out := anthropicStreamEvent{Type: "message_stop"}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, serializationErr(err)
		}
		return data, nil
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		out := anthropicStreamEvent{
			Type:  "content_block_delta",
			Index: intPtr(choice.Index),
			Delta: &anthropicStreamDelta{Type: "text_delta", Text: choice.Delta.Content},
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, serializationErr(err)
		}
		return data, nil
	}

	out := anthropicStreamEvent{Type: "message_stop"}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}
