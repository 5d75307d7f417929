// Package universal defines the dialect-neutral chat schema every provider
// transformer converts to and from. It mirrors the wire shape of the
// Anthropic Messages API closely enough that the Anthropic transformer is
// nearly a passthrough, while staying general enough that OpenAI-compatible
// and Gemini transformers can losslessly round-trip through it.
package universal

import "encoding/json"

// ChatRequest is the canonical form of an inbound chat completion request.
type ChatRequest struct {
	Model            string                 `json:"model"`
	Messages         []ChatMessage          `json:"messages"`
	System           string                 `json:"system,omitempty"`
	Temperature      *float64               `json:"temperature,omitempty"`
	MaxTokens        *int                   `json:"max_tokens,omitempty"`
	Stream           bool                   `json:"stream,omitempty"`
	Tools            []Tool                 `json:"tools,omitempty"`
	ToolChoice       *ToolChoice            `json:"tool_choice,omitempty"`
	ProviderMetadata map[string]any         `json:"provider_metadata,omitempty"`
}

// ChatMessage is one turn in the conversation.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// MessageContent is either a plain string or a list of typed parts. Both
// forms are valid on the wire (Anthropic and OpenAI both accept a bare
// string for simple text turns), so it marshals/unmarshals as an untagged
// union instead of a tagged Go type.
type MessageContent struct {
	Text  string
	Parts []ContentPart
	// multi records whether this value was constructed/parsed as the Parts
	// form, so round-tripping an empty-string Text value doesn't silently
	// turn into an empty Parts array or vice versa.
	multi bool
}

// NewTextContent builds a plain-text MessageContent.
func NewTextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// NewPartsContent builds a structured MessageContent.
func NewPartsContent(parts []ContentPart) MessageContent {
	return MessageContent{Parts: parts, multi: true}
}

// IsParts reports whether this content holds structured parts.
func (m MessageContent) IsParts() bool {
	return m.multi
}

func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.multi {
		return json.Marshal(m.Parts)
	}
	return json.Marshal(m.Text)
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = MessageContent{Text: text}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*m = MessageContent{Parts: parts, multi: true}
	return nil
}

// AsParts normalizes content to a slice of parts, wrapping plain text in a
// single text part. Useful for transformers that only speak the parts form.
func (m MessageContent) AsParts() []ContentPart {
	if m.multi {
		return m.Parts
	}
	if m.Text == "" {
		return nil
	}
	return []ContentPart{{Type: "text", Text: m.Text}}
}

// ContentPart is one block inside a structured message: text, a tool call
// issued by the assistant, a tool result returned by the user, or an
// attached image/file. For a "tool_result" part, Text carries the result
// payload serialized as a string, matching the wire shape every dialect
// converges on.
type ContentPart struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	IsError bool `json:"is_error,omitempty"`

	ImageURL *ImageURL `json:"image_url,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	FileData string    `json:"file_data,omitempty"`
}

// ImageURL is an inline or remote image reference attached to a message.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool is a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable tool's name, description, and
// JSON Schema parameters.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a single invocation of a tool requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the name and raw JSON arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolChoice controls how the model is allowed to use tools. It is an
// untagged union over four wire shapes: the bare strings "auto"/"none"/
// "required", or an object pinning a specific function.
type ToolChoice struct {
	Mode     string // "auto", "none", "required", or "specific"
	Function string // set only when Mode == "specific"
}

// Auto, None, and Required are the three bare-string tool choice modes.
var (
	ToolChoiceAuto     = ToolChoice{Mode: "auto"}
	ToolChoiceNone     = ToolChoice{Mode: "none"}
	ToolChoiceRequired = ToolChoice{Mode: "required"}
)

// ToolChoiceSpecific pins the model to a single named function.
func ToolChoiceSpecific(name string) ToolChoice {
	return ToolChoice{Mode: "specific", Function: name}
}

type toolChoiceObject struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Mode == "specific" {
		obj := toolChoiceObject{Type: "function"}
		obj.Function.Name = t.Function
		return json.Marshal(obj)
	}
	if t.Mode == "" {
		return json.Marshal("auto")
	}
	return json.Marshal(t.Mode)
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "none":
			*t = ToolChoiceNone
		case "required", "any":
			*t = ToolChoiceRequired
		default:
			*t = ToolChoiceAuto
		}
		return nil
	}

	var obj toolChoiceObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = ToolChoiceSpecific(obj.Function.Name)
	return nil
}

// ChatResponse is the canonical form of a complete (non-streaming) chat
// response.
type ChatResponse struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Created          int64          `json:"created"`
	Model            string         `json:"model"`
	Choices          []Choice       `json:"choices"`
	Usage            Usage          `json:"usage"`
	ProviderMetadata map[string]any `json:"provider_metadata,omitempty"`
}

// Choice is a single completion candidate.
type Choice struct {
	Index        int            `json:"index"`
	Message      ChatMessage    `json:"message"`
	FinishReason string         `json:"finish_reason"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
}

// Usage reports token accounting for a request/response pair.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamChunk is one server-sent increment of a streaming response.
type ChatStreamChunk struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Created          int64          `json:"created"`
	Model            string         `json:"model"`
	Choices          []StreamChoice `json:"choices"`
	ProviderMetadata map[string]any `json:"provider_metadata,omitempty"`
}

// StreamChoice is one candidate's delta within a stream chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamDelta is the incremental content of a streaming choice.
type StreamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []StreamToolCall `json:"tool_calls,omitempty"`
}

// StreamToolCall is the incremental form of a ToolCall during streaming;
// Index tracks which tool call (by position) a fragment belongs to, since
// providers split name and arguments across multiple chunks.
type StreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function StreamFunctionCall `json:"function"`
}

// StreamFunctionCall is the incremental name/arguments fragment of a tool
// call delta.
type StreamFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
