package transform

import (
	"encoding/json"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// OpenAITransformer speaks the OpenAI-compatible `/v1/chat/completions`
// dialect, grounded on original_source/src/transformers/providers/openai.rs
// and generalized per spec.md §4.2.1: content is always a flat string on
// this dialect, tool_calls live on the assistant message, and tool results
// are separate role="tool" messages carrying tool_call_id.
type OpenAITransformer struct{}

func NewOpenAITransformer() *OpenAITransformer { return &OpenAITransformer{} }

func (t *OpenAITransformer) ProviderName() string    { return "openai" }
func (t *OpenAITransformer) SupportsTools() bool     { return true }
func (t *OpenAITransformer) SupportsStreaming() bool { return true }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      *bool           `json:"stream,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string                      `json:"type"`
	Function openAIFunctionDefinition    `json:"function"`
}

type openAIFunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolChoiceObject struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type openAIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []openAIChoice  `json:"choices"`
	Usage   openAIUsage     `json:"usage"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamChunk struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIStreamChoice struct {
	Index        int             `json:"index"`
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason,omitempty"`
}

type openAIStreamDelta struct {
	Role      string               `json:"role,omitempty"`
	Content   string               `json:"content,omitempty"`
	ToolCalls []openAIStreamToolCall `json:"tool_calls,omitempty"`
}

type openAIStreamToolCall struct {
	Index    int                    `json:"index"`
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type,omitempty"`
	Function openAIStreamFunctionCall `json:"function"`
}

type openAIStreamFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func openAIMessageToUniversal(msg openAIMessage) universal.ChatMessage {
	if msg.Role == "tool" {
		text := ""
		if msg.Content != nil {
			text = *msg.Content
		}
		part := universal.ContentPart{Type: "tool_result", ToolUseID: msg.ToolCallID, Text: text}
		return universal.ChatMessage{Role: "tool", Content: universal.NewPartsContent([]universal.ContentPart{part})}
	}

	text := ""
	if msg.Content != nil {
		text = *msg.Content
	}

	if len(msg.ToolCalls) == 0 {
		return universal.ChatMessage{Role: msg.Role, Content: universal.NewTextContent(text), Name: msg.Name}
	}

	parts := make([]universal.ContentPart, 0, len(msg.ToolCalls)+1)
	if text != "" {
		parts = append(parts, universal.ContentPart{Type: "text", Text: text})
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, universal.ContentPart{
			Type:      "tool_use",
			ToolUseID: call.ID,
			ToolName:  call.Function.Name,
			ToolInput: json.RawMessage(call.Function.Arguments),
		})
	}
	return universal.ChatMessage{Role: msg.Role, Content: universal.NewPartsContent(parts), Name: msg.Name}
}

// openAIMessageFromUniversal concatenates all text parts into this
// dialect's flat string content (spec.md §4.2.1) and turns tool_use parts
// into tool_calls; other part types are dropped. A role="tool" message
// carrying a tool_result part becomes a role="tool" message with
// tool_call_id set.
func openAIMessageFromUniversal(msg universal.ChatMessage) openAIMessage {
	if msg.Role == "tool" {
		for _, part := range msg.Content.AsParts() {
			if part.Type == "tool_result" {
				text := part.Text
				return openAIMessage{Role: "tool", Content: &text, ToolCallID: part.ToolUseID}
			}
		}
	}

	var text string
	var toolCalls []openAIToolCall
	if msg.Content.IsParts() {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case "text":
				text += part.Text
			case "tool_use":
				toolCalls = append(toolCalls, openAIToolCall{
					ID:   part.ToolUseID,
					Type: "function",
					Function: openAIFunctionCall{
						Name:      part.ToolName,
						Arguments: string(part.ToolInput),
					},
				})
			}
		}
	} else {
		text = msg.Content.Text
	}

	out := openAIMessage{Role: msg.Role, Name: msg.Name, ToolCalls: toolCalls}
	if !(text == "" && len(toolCalls) > 0) {
		out.Content = &text
	}
	return out
}

func openAIToolChoiceToUniversal(raw json.RawMessage) *universal.ToolChoice {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "none":
			c := universal.ToolChoiceNone
			return &c
		case "required":
			c := universal.ToolChoiceRequired
			return &c
		default:
			c := universal.ToolChoiceAuto
			return &c
		}
	}
	var obj openAIToolChoiceObject
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Function.Name != "" {
		c := universal.ToolChoiceSpecific(obj.Function.Name)
		return &c
	}
	c := universal.ToolChoiceAuto
	return &c
}

func openAIToolChoiceFromUniversal(choice *universal.ToolChoice) json.RawMessage {
	if choice == nil {
		return nil
	}
	return rawOrNull(choice)
}

func (t *OpenAITransformer) ToUniversalRequest(raw json.RawMessage) (*universal.ChatRequest, error) {
	var req openAIRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, deserializationErr(err)
	}

	messages := make([]universal.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openAIMessageToUniversal(m)
	}

	var tools []universal.Tool
	for _, tool := range req.Tools {
		tools = append(tools, universal.Tool{
			Type: tool.Type,
			Function: universal.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	return &universal.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      boolVal(req.Stream),
		Tools:       tools,
		ToolChoice:  openAIToolChoiceToUniversal(req.ToolChoice),
	}, nil
}

func (t *OpenAITransformer) FromUniversalRequest(req *universal.ChatRequest) (json.RawMessage, error) {
	messages := make([]openAIMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openAIMessageFromUniversal(m)
	}

	var tools []openAITool
	for _, tool := range req.Tools {
		tools = append(tools, openAITool{
			Type: tool.Type,
			Function: openAIFunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	out := openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      boolPtr(req.Stream),
		Tools:       tools,
		ToolChoice:  openAIToolChoiceFromUniversal(req.ToolChoice),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *OpenAITransformer) ToUniversalResponse(raw json.RawMessage) (*universal.ChatResponse, error) {
	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, deserializationErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindInvalidFormat, "response has no choices", nil)
	}

	choices := make([]universal.Choice, len(resp.Choices))
	for i, c := range resp.Choices {
		msg := openAIMessageToUniversal(c.Message)
		var toolCalls []universal.ToolCall
		for _, call := range c.Message.ToolCalls {
			toolCalls = append(toolCalls, universal.ToolCall{
				ID:   call.ID,
				Type: call.Type,
				Function: universal.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		choices[i] = universal.Choice{
			Index:        c.Index,
			Message:      msg,
			FinishReason: c.FinishReason,
			ToolCalls:    toolCalls,
		}
	}

	return &universal.ChatResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: universal.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      sumIfZero(resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		},
	}, nil
}

func (t *OpenAITransformer) FromUniversalResponse(resp *universal.ChatResponse) (json.RawMessage, error) {
	choices := make([]openAIChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		msg := openAIMessageFromUniversal(c.Message)
		for _, call := range c.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
				ID:   call.ID,
				Type: call.Type,
				Function: openAIFunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		choices[i] = openAIChoice{Index: c.Index, Message: msg, FinishReason: c.FinishReason}
	}

	out := openAIResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: openAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *OpenAITransformer) ToUniversalStreamChunk(raw json.RawMessage) (*universal.ChatStreamChunk, error) {
	var chunk openAIStreamChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, deserializationErr(err)
	}

	choices := make([]universal.StreamChoice, len(chunk.Choices))
	for i, c := range chunk.Choices {
		var toolCalls []universal.StreamToolCall
		for _, call := range c.Delta.ToolCalls {
			toolCalls = append(toolCalls, universal.StreamToolCall{
				Index: call.Index,
				ID:    call.ID,
				Type:  call.Type,
				Function: universal.StreamFunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		choices[i] = universal.StreamChoice{
			Index: c.Index,
			Delta: universal.StreamDelta{
				Role:      c.Delta.Role,
				Content:   c.Delta.Content,
				ToolCalls: toolCalls,
			},
			FinishReason: c.FinishReason,
		}
	}

	return &universal.ChatStreamChunk{
		ID:      chunk.ID,
		Object:  chunk.Object,
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: choices,
	}, nil
}

func (t *OpenAITransformer) FromUniversalStreamChunk(chunk *universal.ChatStreamChunk) (json.RawMessage, error) {
	choices := make([]openAIStreamChoice, len(chunk.Choices))
	for i, c := range chunk.Choices {
		var toolCalls []openAIStreamToolCall
		for _, call := range c.Delta.ToolCalls {
			toolCalls = append(toolCalls, openAIStreamToolCall{
				Index: call.Index,
				ID:    call.ID,
				Type:  call.Type,
				Function: openAIStreamFunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		choices[i] = openAIStreamChoice{
			Index: c.Index,
			Delta: openAIStreamDelta{
				Role:      c.Delta.Role,
				Content:   c.Delta.Content,
				ToolCalls: toolCalls,
			},
			FinishReason: c.FinishReason,
		}
	}

	out := openAIStreamChunk{
		ID:      chunk.ID,
		Object:  chunk.Object,
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: choices,
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}
