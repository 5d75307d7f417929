package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/modelgate/internal/universal"
)

func TestAnthropicToUniversalRequestKeepsMaxTokens(t *testing.T) {
	tr := NewAnthropicTransformer()
	raw := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"max_tokens": 1024,
		"messages": [{"role": "user", "content": [{"type": "text", "text": "hi"}]}]
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 1024, *req.MaxTokens)
}

func TestAnthropicFromUniversalRequestDefaultsMaxTokensWhenMissing(t *testing.T) {
	tr := NewAnthropicTransformer()
	req := &universal.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []universal.ChatMessage{{Role: "user", Content: universal.NewTextContent("hi")}},
	}

	raw, err := tr.FromUniversalRequest(req)
	require.NoError(t, err)

	var decoded anthropicRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, defaultAnthropicMaxTokens, decoded.MaxTokens)
}

func TestAnthropicToolUseRoundTrip(t *testing.T) {
	tr := NewAnthropicTransformer()
	raw := []byte(`{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [
			{"type": "text", "text": "let me check"},
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Boston"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 20, "output_tokens": 15}
	}`)

	resp, err := tr.ToUniversalResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.Choices[0].ToolCalls[0].Function.Name)
	assert.Equal(t, 35, resp.Usage.TotalTokens)

	out, err := tr.FromUniversalResponse(resp)
	require.NoError(t, err)

	var decoded anthropicResponse
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.NotNil(t, decoded.StopReason)
	assert.Equal(t, "tool_use", *decoded.StopReason)
}

func TestAnthropicToolChoiceCollapsesSpecificToAuto(t *testing.T) {
	choice := universal.ToolChoiceSpecific("get_weather")
	out := anthropicToolChoiceFromUniversal(&choice)
	require.NotNil(t, out)
	assert.Equal(t, "auto", out.Type)
}

func TestAnthropicStreamTextDeltaRoundTrip(t *testing.T) {
	tr := NewAnthropicTransformer()
	raw := []byte(`{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "hel"}}`)

	chunk, err := tr.ToUniversalStreamChunk(raw)
	require.NoError(t, err)
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "hel", chunk.Choices[0].Delta.Content)

	out, err := tr.FromUniversalStreamChunk(chunk)
	require.NoError(t, err)

	var decoded anthropicStreamEvent
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "content_block_delta", decoded.Type)
	assert.Equal(t, "hel", decoded.Delta.Text)
}
