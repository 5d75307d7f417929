package transform

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// GeminiTransformer speaks the Gemini generateContent dialect, grounded on
// original_source/src/transformers/providers/gemini.rs and extended per
// spec.md §4.2.3: roles are user/model/function instead of user/assistant/
// tool, content is "parts" rather than typed blocks, and generation
// parameters live under a nested generationConfig object.
type GeminiTransformer struct{}

func NewGeminiTransformer() *GeminiTransformer { return &GeminiTransformer{} }

func (t *GeminiTransformer) ProviderName() string    { return "gemini" }
func (t *GeminiTransformer) SupportsTools() bool     { return true }
func (t *GeminiTransformer) SupportsStreaming() bool { return true }

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	GenerationConfig  *geminiGenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []geminiTool             `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig        `json:"toolConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is Gemini's untagged part union: exactly one of the fields is
// populated depending on which kind of content the block carries.
type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp   `json:"functionResponse,omitempty"`
	InlineData       *geminiInlineData     `json:"inlineData,omitempty"`
	FileData         *geminiFileData       `json:"fileData,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiStreamChunk struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

func geminiRoleToUniversal(role string) string {
	switch role {
	case "model":
		return "assistant"
	case "function":
		return "tool"
	case "user":
		return "user"
	default:
		return "user"
	}
}

func geminiRoleFromUniversal(role string) string {
	switch role {
	case "assistant":
		return "model"
	case "tool":
		return "function"
	default:
		return "user"
	}
}

func geminiPartToUniversal(p geminiPart) universal.ContentPart {
	switch {
	case p.FunctionCall != nil:
		return universal.ContentPart{
			Type:      "tool_use",
			ToolUseID: newCallID(),
			ToolName:  p.FunctionCall.Name,
			ToolInput: p.FunctionCall.Args,
		}
	case p.FunctionResponse != nil:
		return universal.ContentPart{
			Type:      "tool_result",
			ToolUseID: p.FunctionResponse.Name,
			Text:      string(rawOrNull(p.FunctionResponse.Response)),
		}
	case p.InlineData != nil:
		return universal.ContentPart{
			Type:     "image",
			ImageURL: &universal.ImageURL{URL: dataURL(p.InlineData.MimeType, p.InlineData.Data)},
		}
	case p.FileData != nil:
		return universal.ContentPart{
			Type:     "image",
			ImageURL: &universal.ImageURL{URL: p.FileData.FileURI},
		}
	default:
		return universal.ContentPart{Type: "text", Text: p.Text}
	}
}

func geminiPartFromUniversal(p universal.ContentPart) geminiPart {
	switch p.Type {
	case "tool_use":
		args := p.ToolInput
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return geminiPart{FunctionCall: &geminiFunctionCall{Name: p.ToolName, Args: args}}
	case "tool_result":
		resp := json.RawMessage(p.Text)
		if len(resp) == 0 || !json.Valid(resp) {
			resp = rawOrNull(p.Text)
		}
		return geminiPart{FunctionResponse: &geminiFunctionResp{Name: p.ToolUseID, Response: resp}}
	case "image":
		if p.ImageURL != nil && strings.HasPrefix(p.ImageURL.URL, "data:") {
			mime, data := parseDataURL(p.ImageURL.URL)
			return geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}}
		}
		if p.ImageURL != nil {
			return geminiPart{FileData: &geminiFileData{FileURI: p.ImageURL.URL}}
		}
		return geminiPart{Text: p.Text}
	default:
		return geminiPart{Text: p.Text}
	}
}

// dataURL builds a "data:<mime>;base64,<data>" URL; data is assumed already
// base64-encoded, matching Gemini's inlineData.data field.
func dataURL(mime, data string) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + data
}

func parseDataURL(url string) (mime, data string) {
	rest := strings.TrimPrefix(url, "data:")
	idx := strings.Index(rest, ";base64,")
	if idx < 0 {
		return "application/octet-stream", base64.StdEncoding.EncodeToString([]byte(rest))
	}
	return rest[:idx], rest[idx+len(";base64,"):]
}

func geminiToolChoiceToUniversal(cfg *geminiToolConfig) *universal.ToolChoice {
	if cfg == nil {
		return nil
	}
	switch cfg.FunctionCallingConfig.Mode {
	case "ANY":
		c := universal.ToolChoiceRequired
		return &c
	case "NONE":
		c := universal.ToolChoiceNone
		return &c
	default:
		c := universal.ToolChoiceAuto
		return &c
	}
}

// geminiToolChoiceFromUniversal maps Auto/Required/None one to one and
// collapses Specific to AUTO — Gemini's functionCallingConfig has no way to
// pin a single named function (spec.md §4.2.3).
func geminiToolChoiceFromUniversal(choice *universal.ToolChoice) *geminiToolConfig {
	if choice == nil {
		return nil
	}
	mode := "AUTO"
	switch choice.Mode {
	case "required":
		mode = "ANY"
	case "none":
		mode = "NONE"
	}
	return &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{Mode: mode}}
}

func geminiFinishReasonToUniversal(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "":
		return "stop"
	default:
		return strings.ToLower(reason)
	}
}

func geminiFinishReasonFromUniversal(reason string) string {
	switch reason {
	case "stop":
		return "STOP"
	case "length":
		return "MAX_TOKENS"
	case "":
		return ""
	default:
		return strings.ToUpper(reason)
	}
}

func (t *GeminiTransformer) ToUniversalRequest(raw json.RawMessage) (*universal.ChatRequest, error) {
	var req geminiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, deserializationErr(err)
	}

	messages := make([]universal.ChatMessage, len(req.Contents))
	for i, c := range req.Contents {
		parts := make([]universal.ContentPart, len(c.Parts))
		for j, p := range c.Parts {
			parts[j] = geminiPartToUniversal(p)
		}
		messages[i] = universal.ChatMessage{Role: geminiRoleToUniversal(c.Role), Content: universal.NewPartsContent(parts)}
	}

	var tools []universal.Tool
	for _, tool := range req.Tools {
		for _, fn := range tool.FunctionDeclarations {
			tools = append(tools, universal.Tool{
				Type: "function",
				Function: universal.FunctionDefinition{
					Name:        fn.Name,
					Description: fn.Description,
					Parameters:  fn.Parameters,
				},
			})
		}
	}

	out := &universal.ChatRequest{Model: "gemini", Messages: messages, Tools: tools, ToolChoice: geminiToolChoiceToUniversal(req.ToolConfig)}
	if req.GenerationConfig != nil {
		out.Temperature = req.GenerationConfig.Temperature
		out.MaxTokens = req.GenerationConfig.MaxOutputTokens
		if req.GenerationConfig.TopP != nil || req.GenerationConfig.TopK != nil {
			out.ProviderMetadata = map[string]any{}
			if req.GenerationConfig.TopP != nil {
				out.ProviderMetadata["top_p"] = *req.GenerationConfig.TopP
			}
			if req.GenerationConfig.TopK != nil {
				out.ProviderMetadata["top_k"] = *req.GenerationConfig.TopK
			}
		}
	}
	return out, nil
}

func (t *GeminiTransformer) FromUniversalRequest(req *universal.ChatRequest) (json.RawMessage, error) {
	contents := make([]geminiContent, len(req.Messages))
	for i, m := range req.Messages {
		parts := m.Content.AsParts()
		gParts := make([]geminiPart, len(parts))
		for j, p := range parts {
			gParts[j] = geminiPartFromUniversal(p)
		}
		contents[i] = geminiContent{Role: geminiRoleFromUniversal(m.Role), Parts: gParts}
	}

	var tools []geminiTool
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, tool := range req.Tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			}
		}
		tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	genConfig := &geminiGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens}
	if v, ok := req.ProviderMetadata["top_p"]; ok {
		if f, ok := v.(float64); ok {
			genConfig.TopP = floatPtr(f)
		}
	}
	if v, ok := req.ProviderMetadata["top_k"]; ok {
		switch n := v.(type) {
		case float64:
			genConfig.TopK = intPtr(int(n))
		case int:
			genConfig.TopK = intPtr(n)
		}
	}

	out := geminiRequest{
		Contents:         contents,
		GenerationConfig: genConfig,
		Tools:            tools,
		ToolConfig:       geminiToolChoiceFromUniversal(req.ToolChoice),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *GeminiTransformer) ToUniversalResponse(raw json.RawMessage) (*universal.ChatResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, deserializationErr(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, newError(KindInvalidFormat, "response has no candidates", nil)
	}

	choices := make([]universal.Choice, len(resp.Candidates))
	for i, c := range resp.Candidates {
		parts := make([]universal.ContentPart, len(c.Content.Parts))
		var toolCalls []universal.ToolCall
		for j, p := range c.Content.Parts {
			up := geminiPartToUniversal(p)
			parts[j] = up
			if up.Type == "tool_use" {
				toolCalls = append(toolCalls, universal.ToolCall{
					ID:   up.ToolUseID,
					Type: "function",
					Function: universal.FunctionCall{Name: up.ToolName, Arguments: string(rawOrNull(up.ToolInput))},
				})
			}
		}
		choices[i] = universal.Choice{
			Index:        c.Index,
			Message:      universal.ChatMessage{Role: "assistant", Content: universal.NewPartsContent(parts)},
			FinishReason: geminiFinishReasonToUniversal(c.FinishReason),
			ToolCalls:    toolCalls,
		}
	}

	return &universal.ChatResponse{
		Model:   resp.ModelVersion,
		Object:  "chat.completion",
		Choices: choices,
		Usage: universal.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      sumIfZero(resp.UsageMetadata.TotalTokenCount, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount),
		},
	}, nil
}

func (t *GeminiTransformer) FromUniversalResponse(resp *universal.ChatResponse) (json.RawMessage, error) {
	if len(resp.Choices) == 0 {
		return nil, newError(KindInvalidFormat, "universal response has no choices", nil)
	}

	candidates := make([]geminiCandidate, len(resp.Choices))
	for i, c := range resp.Choices {
		parts := make([]geminiPart, 0, len(c.Message.Content.AsParts()))
		for _, p := range c.Message.Content.AsParts() {
			parts = append(parts, geminiPartFromUniversal(p))
		}
		candidates[i] = geminiCandidate{
			Content:      geminiContent{Role: "model", Parts: parts},
			FinishReason: geminiFinishReasonFromUniversal(c.FinishReason),
			Index:        c.Index,
		}
	}

	out := geminiResponse{
		Candidates:   candidates,
		ModelVersion: resp.Model,
		UsageMetadata: geminiUsageMetadata{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}

func (t *GeminiTransformer) ToUniversalStreamChunk(raw json.RawMessage) (*universal.ChatStreamChunk, error) {
	var chunk geminiStreamChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, deserializationErr(err)
	}

	choices := make([]universal.StreamChoice, len(chunk.Candidates))
	for i, c := range chunk.Candidates {
		var text strings.Builder
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		var finish *string
		if c.FinishReason != "" {
			r := geminiFinishReasonToUniversal(c.FinishReason)
			finish = &r
		}
		choices[i] = universal.StreamChoice{
			Index:        c.Index,
			Delta:        universal.StreamDelta{Role: "assistant", Content: text.String()},
			FinishReason: finish,
		}
	}

	return &universal.ChatStreamChunk{Object: "chat.completion.chunk", Model: "gemini", Choices: choices}, nil
}

func (t *GeminiTransformer) FromUniversalStreamChunk(chunk *universal.ChatStreamChunk) (json.RawMessage, error) {
	candidates := make([]geminiCandidate, len(chunk.Choices))
	for i, c := range chunk.Choices {
		var parts []geminiPart
		if c.Delta.Content != "" {
			parts = append(parts, geminiPart{Text: c.Delta.Content})
		}
		finish := ""
		if c.FinishReason != nil {
			finish = geminiFinishReasonFromUniversal(*c.FinishReason)
		}
		candidates[i] = geminiCandidate{Content: geminiContent{Role: "model", Parts: parts}, FinishReason: finish, Index: c.Index}
	}

	out := geminiStreamChunk{Candidates: candidates}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, serializationErr(err)
	}
	return data, nil
}
