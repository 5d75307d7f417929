package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/modelgate/internal/universal"
)

func TestGeminiRoleMapping(t *testing.T) {
	tr := NewGeminiTransformer()
	raw := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"text": "hi"}]},
			{"role": "model", "parts": [{"text": "hello"}]}
		]
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
}

func TestGeminiFunctionCallRoundTrip(t *testing.T) {
	tr := NewGeminiTransformer()
	raw := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"text": "weather in Boston?"}]},
			{"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"city": "Boston"}}}]},
			{"role": "function", "parts": [{"functionResponse": {"name": "get_weather", "response": {"temp": 72}}}]}
		]
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)

	modelMsg := req.Messages[1]
	require.True(t, modelMsg.Content.IsParts())
	assert.Equal(t, "tool_use", modelMsg.Content.Parts[0].Type)
	assert.Equal(t, "get_weather", modelMsg.Content.Parts[0].ToolName)

	fnMsg := req.Messages[2]
	assert.Equal(t, "tool", fnMsg.Role)
	assert.Equal(t, "tool_result", fnMsg.Content.Parts[0].Type)

	out, err := tr.FromUniversalRequest(req)
	require.NoError(t, err)

	var decoded geminiRequest
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Contents, 3)
	assert.Equal(t, "model", decoded.Contents[1].Role)
	require.NotNil(t, decoded.Contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_weather", decoded.Contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "function", decoded.Contents[2].Role)
}

func TestGeminiToolChoiceSpecificCollapsesToAuto(t *testing.T) {
	choice := universal.ToolChoiceSpecific("get_weather")
	cfg := geminiToolChoiceFromUniversal(&choice)
	require.NotNil(t, cfg)
	assert.Equal(t, "AUTO", cfg.FunctionCallingConfig.Mode)
}

func TestGeminiGenerationConfigCarriesTopPTopKViaProviderMetadata(t *testing.T) {
	tr := NewGeminiTransformer()
	raw := []byte(`{
		"contents": [{"role": "user", "parts": [{"text": "hi"}]}],
		"generationConfig": {"temperature": 0.5, "maxOutputTokens": 100, "topP": 0.9, "topK": 40}
	}`)

	req, err := tr.ToUniversalRequest(raw)
	require.NoError(t, err)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.5, *req.Temperature)
	assert.Equal(t, 0.9, req.ProviderMetadata["top_p"])
	assert.Equal(t, 40, req.ProviderMetadata["top_k"])

	out, err := tr.FromUniversalRequest(req)
	require.NoError(t, err)

	var decoded geminiRequest
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.NotNil(t, decoded.GenerationConfig.TopP)
	assert.Equal(t, 0.9, *decoded.GenerationConfig.TopP)
	require.NotNil(t, decoded.GenerationConfig.TopK)
	assert.Equal(t, 40, *decoded.GenerationConfig.TopK)
}

func TestGeminiUsageMetadataMapping(t *testing.T) {
	tr := NewGeminiTransformer()
	raw := []byte(`{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "hi"}]}, "finishReason": "STOP", "index": 0}],
		"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 2, "totalTokenCount": 10}
	}`)

	resp, err := tr.ToUniversalResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}
