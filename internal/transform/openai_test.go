package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/modelgate/internal/universal"
)

func TestOpenAIToUniversalRequestPlainText(t *testing.T) {
	tr := NewOpenAITransformer()
	raw := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "ping"}
		],
		"temperature": 0.2,
		"stream": true
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "ping", req.Messages[1].Content.Text)
	assert.False(t, req.Messages[1].Content.IsParts())
}

func TestOpenAIToolCallRoundTrip(t *testing.T) {
	tr := NewOpenAITransformer()
	raw := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "user", "content": "what's the weather in Boston?"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Boston\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "72F and sunny"}
		]
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)

	assistant := req.Messages[1]
	require.True(t, assistant.Content.IsParts())
	require.Len(t, assistant.Content.Parts, 1)
	assert.Equal(t, "tool_use", assistant.Content.Parts[0].Type)
	assert.Equal(t, "get_weather", assistant.Content.Parts[0].ToolName)

	toolMsg := req.Messages[2]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "tool_result", toolMsg.Content.Parts[0].Type)
	assert.Equal(t, "call_1", toolMsg.Content.Parts[0].ToolUseID)

	out, err := tr.FromUniversalRequest(req)
	require.NoError(t, err)

	var decoded openAIRequest
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, "call_1", decoded.Messages[2].ToolCallID)
	require.Len(t, decoded.Messages[1].ToolCalls, 1)
	assert.Equal(t, "get_weather", decoded.Messages[1].ToolCalls[0].Function.Name)
}

func TestOpenAIUsageFillsTotalWhenMissing(t *testing.T) {
	tr := NewOpenAITransformer()
	raw := []byte(`{
		"id": "x", "object": "chat.completion", "model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 0}
	}`)

	resp, err := tr.ToUniversalResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestOpenAIToolChoiceRoundTrip(t *testing.T) {
	tr := NewOpenAITransformer()

	choice := universal.ToolChoiceSpecific("get_weather")
	raw, err := tr.FromUniversalRequest(&universal.ChatRequest{Model: "gpt-4o", ToolChoice: &choice})
	require.NoError(t, err)

	var decoded openAIRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back := openAIToolChoiceToUniversal(decoded.ToolChoice)
	require.NotNil(t, back)
	assert.Equal(t, "specific", back.Mode)
	assert.Equal(t, "get_weather", back.Function)
}
