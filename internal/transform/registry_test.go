package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryListsBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.HasProvider("openai"))
	assert.True(t, r.HasProvider("anthropic"))
	assert.True(t, r.HasProvider("gemini"))
	assert.False(t, r.HasProvider("cohere"))
	assert.ElementsMatch(t, []string{"openai", "anthropic", "gemini"}, r.ListProviders())
}

func TestRegistryGetUnsupportedProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("cohere")
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindUnsupportedProvider, te.Kind)
}

func TestTransformRequestOpenAIToAnthropic(t *testing.T) {
	r := NewRegistry()
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "hello there"}],
		"max_tokens": 256
	}`)

	out, err := r.TransformRequest("openai", "anthropic", body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.EqualValues(t, 256, decoded["max_tokens"])
	messages := decoded["messages"].([]any)
	require.Len(t, messages, 1)
}

func TestTransformRequestAnthropicToOpenAICarriesMaxTokens(t *testing.T) {
	r := NewRegistry()
	body := []byte(`{
		"model": "claude-3-5-sonnet",
		"max_tokens": 512,
		"messages": [{"role": "user", "content": [{"type": "text", "text": "hi"}]}]
	}`)

	out, err := r.TransformRequest("anthropic", "openai", body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.EqualValues(t, 512, decoded["max_tokens"])
}

func TestTransformResponseRoundTripsUsage(t *testing.T) {
	r := NewRegistry()
	body := []byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	out, err := r.TransformResponse("openai", "anthropic", body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	usage := decoded["usage"].(map[string]any)
	assert.EqualValues(t, 10, usage["input_tokens"])
	assert.EqualValues(t, 5, usage["output_tokens"])
	assert.Equal(t, "end_turn", decoded["stop_reason"])
}
