package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/corvidlabs/modelgate/internal/config"
	"github.com/corvidlabs/modelgate/internal/providers"
	"github.com/corvidlabs/modelgate/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFieldsRecursively(t *testing.T) {
	testData := map[string]interface{}{
		"keep": "this",
		"cache_control": map[string]interface{}{
			"type": "ephemeral",
		},
		"nested": map[string]interface{}{
			"keep_nested": "value",
			"cache_control": map[string]interface{}{
				"type": "ephemeral",
			},
			"deep": map[string]interface{}{
				"cache_control": "remove_me",
				"keep_deep":     "deep_value",
			},
		},
		"array": []interface{}{
			map[string]interface{}{
				"cache_control": "remove",
				"keep_array":    "array_value",
			},
		},
	}

	result, ok := providers.RemoveFieldsRecursively(testData, []string{"cache_control"}).(map[string]interface{})
	require.True(t, ok, "result should be a map")

	// Check root level
	assert.NotContains(t, result, "cache_control", "cache_control should be removed from root")
	assert.Equal(t, "this", result["keep"], "other fields should be preserved")

	// Check nested level
	nested, ok := result["nested"].(map[string]interface{})
	require.True(t, ok, "nested should be a map")
	assert.NotContains(t, nested, "cache_control", "cache_control should be removed from nested object")
	assert.Equal(t, "value", nested["keep_nested"], "other nested fields should be preserved")

	// Check deep nested level
	deep, ok := nested["deep"].(map[string]interface{})
	require.True(t, ok, "deep should be a map")
	assert.NotContains(t, deep, "cache_control", "cache_control should be removed from deep nested object")
	assert.Equal(t, "deep_value", deep["keep_deep"], "other deep nested fields should be preserved")

	// Check array level
	array, ok := result["array"].([]interface{})
	require.True(t, ok, "array should be a slice")
	require.Len(t, array, 1, "array should have 1 item")

	arrayItem, ok := array[0].(map[string]interface{})
	require.True(t, ok, "array item should be a map")
	assert.NotContains(t, arrayItem, "cache_control", "cache_control should be removed from array items")
	assert.Equal(t, "array_value", arrayItem["keep_array"], "other array item fields should be preserved")
}

func TestSelectModel_DynamicProviderSelection(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := &ProxyHandler{logger: logger}

	cfg := &config.Config{
		Router: config.RouterConfig{
			Default:              "default,claude-3-5-sonnet",
			LongContext:          "longcontext,claude-3-opus",
			LongContextThreshold: 60000,
			Think:                "think,claude-3-5-sonnet",
			WebSearch:            "websearch,claude-3-5-sonnet:online",
			Background:           "background,claude-3-5-haiku",
		},
	}

	testCases := []struct {
		name          string
		inputModel    string
		systemChars   int // length of a single system message, driving router.EstimateTokens
		thinking      bool
		expectedModel string
		expectedBody  string
		description   string
	}{
		{
			name:          "explicit provider with comma",
			inputModel:    "openrouter,anthropic/claude-sonnet-4",
			expectedModel: "openrouter,anthropic/claude-sonnet-4",
			expectedBody:  "anthropic/claude-sonnet-4",
			description:   "should use explicit provider/model when comma format is used",
		},
		{
			name:          "explicit provider overrides long context",
			inputModel:    "openrouter,anthropic/claude-sonnet-4",
			systemChars:   240004, // estimates to 60001 tokens, which would normally trigger LongContext
			expectedModel: "openrouter,anthropic/claude-sonnet-4",
			expectedBody:  "anthropic/claude-sonnet-4",
			description:   "should prioritize explicit provider over automatic routing",
		},
		{
			name:          "automatic routing for long context",
			inputModel:    "claude-3-5-sonnet",
			systemChars:   240004, // estimates to 60001 tokens via router.EstimateTokens
			expectedModel: "longcontext,claude-3-opus",
			expectedBody:  "claude-3-opus",
			description:   "should use long context routing for high token count",
		},
		{
			name:          "automatic routing for haiku background",
			inputModel:    "claude-3-5-haiku",
			expectedModel: "background,claude-3-5-haiku",
			expectedBody:  "claude-3-5-haiku",
			description:   "should use background routing for haiku model",
		},
		{
			name:          "thinking routing when thinking block present",
			inputModel:    "claude-3-5-sonnet",
			thinking:      true,
			expectedModel: "think,claude-3-5-sonnet",
			expectedBody:  "claude-3-5-sonnet",
			description:   "should use think routing only when the request carries a thinking block",
		},
		{
			name:          "default fallback when no classifier matches",
			inputModel:    "claude-3-5-sonnet",
			expectedModel: "default,claude-3-5-sonnet",
			expectedBody:  "claude-3-5-sonnet",
			description:   "should fall back to the router default when nothing else applies",
		},
		{
			name:          "online suffix preservation",
			inputModel:    "openrouter,anthropic/claude-sonnet-4:online",
			expectedModel: "openrouter,anthropic/claude-sonnet-4:online",
			expectedBody:  "anthropic/claude-sonnet-4:online",
			description:   "should preserve :online suffix for web search",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Create test request body
			requestBody := map[string]interface{}{
				"model":      tc.inputModel,
				"messages":   []interface{}{},
				"max_tokens": 100,
			}
			if tc.thinking {
				requestBody["thinking"] = true
			}
			if tc.systemChars > 0 {
				requestBody["system"] = []interface{}{
					map[string]interface{}{"text": strings.Repeat("a", tc.systemChars)},
				}
			}

			inputBody, err := json.Marshal(requestBody)
			require.NoError(t, err)

			// Call selectModel
			resultBody, selectedModel, _ := handler.selectModel(inputBody, cfg)

			// Verify selected model
			assert.Equal(t, tc.expectedModel, selectedModel, tc.description)

			// Verify request body has correct model
			var parsedResult map[string]interface{}
			err = json.Unmarshal(resultBody, &parsedResult)
			require.NoError(t, err)

			assert.Equal(t, tc.expectedBody, parsedResult["model"], "request body should contain the final model name")
		})
	}
}

func TestSelectModel_NoModelProvided(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := &ProxyHandler{logger: logger}

	cfg := &config.Config{
		Router: config.RouterConfig{
			Default: "default,claude-3-5-sonnet",
		},
	}

	// Create test request body without model
	requestBody := map[string]interface{}{
		"messages":   []interface{}{},
		"max_tokens": 100,
	}

	inputBody, err := json.Marshal(requestBody)
	require.NoError(t, err)

	// Call selectModel
	resultBody, selectedModel, _ := handler.selectModel(inputBody, cfg)

	// Should use default
	assert.Equal(t, "default,claude-3-5-sonnet", selectedModel)

	// Verify request body has correct model
	var parsedResult map[string]interface{}
	err = json.Unmarshal(resultBody, &parsedResult)
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet", parsedResult["model"])
}

func TestHandleResponse_ErrorForwarding(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// "mock" maps to the openai dialect via dialectForProvider's default case,
	// so a success response is actually run through the real openai->anthropic
	// transform registry.
	mockProvider := &MockProvider{}

	handler := &ProxyHandler{logger: logger, transforms: transform.NewRegistry()}

	testCases := []struct {
		name            string
		statusCode      int
		responseBody    string
		shouldTransform bool
		description     string
	}{
		{
			name:            "error response not transformed",
			statusCode:      400,
			responseBody:    `{"error":{"type":"invalid_request_error","message":"Invalid model specified"}}`,
			shouldTransform: false,
			description:     "error responses should be forwarded without transformation",
		},
		{
			name:            "success response transformed",
			statusCode:      200,
			responseBody:    `{"id":"test","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
			shouldTransform: true,
			description:     "success responses should be transformed",
		},
		{
			name:            "server error not transformed",
			statusCode:      500,
			responseBody:    `{"error":{"type":"internal_server_error","message":"Internal server error"}}`,
			shouldTransform: false,
			description:     "server errors should be forwarded without transformation",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Create mock HTTP response
			resp := &http.Response{
				StatusCode: tc.statusCode,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(tc.responseBody)),
			}
			resp.Header.Set("Content-Type", "application/json")

			// Create response writer
			w := &MockResponseWriter{
				headers: make(http.Header),
				body:    &bytes.Buffer{},
			}

			// Call handleResponse
			handler.handleResponse(w, resp, mockProvider, 100, "")

			// Verify status code is preserved
			assert.Equal(t, tc.statusCode, w.statusCode, "status code should be preserved")

			// Verify response body
			responseBody := w.body.String()
			if tc.shouldTransform {
				// For successful responses, we expect the openai body converted
				// into Anthropic's message shape.
				assert.Contains(t, responseBody, `"type":"message"`, tc.description)
				assert.Contains(t, responseBody, `"end_turn"`, tc.description)
				assert.Contains(t, responseBody, "Hello", tc.description)
			} else {
				// For error responses, we expect original body
				assert.Equal(t, tc.responseBody, responseBody, "error response should be forwarded as-is")
			}
		})
	}
}

// Mock provider for testing
type MockProvider struct{}

func (m *MockProvider) Name() string                                 { return "mock" }
func (m *MockProvider) SupportsStreaming() bool                      { return true }
func (m *MockProvider) GetEndpoint() string                          { return "mock" }
func (m *MockProvider) SetAPIKey(key string)                         {}
func (m *MockProvider) IsStreaming(headers map[string][]string) bool { return false }
func (m *MockProvider) TransformStream(chunk []byte, state *providers.StreamState) ([]byte, error) {
	return chunk, nil
}

func (m *MockProvider) Transform(response []byte) ([]byte, error) {
	return response, nil
}

// Mock response writer for testing
type MockResponseWriter struct {
	headers    http.Header
	body       *bytes.Buffer
	statusCode int
}

func (m *MockResponseWriter) Header() http.Header {
	return m.headers
}

func (m *MockResponseWriter) Write(data []byte) (int, error) {
	return m.body.Write(data)
}

func (m *MockResponseWriter) WriteHeader(statusCode int) {
	m.statusCode = statusCode
}

func TestHandleStreamingResponse_ErrorForwarding(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// Create a mock provider
	mockProvider := &MockProvider{}

	handler := &ProxyHandler{logger: logger, transforms: transform.NewRegistry()}

	// Test error response body (simulating SSE error stream)
	errorStreamBody := `data: {"error":{"type":"invalid_request_error","message":"Invalid model specified"}}

`

	// Create mock HTTP response with error status
	resp := &http.Response{
		StatusCode: 400,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(errorStreamBody)),
	}
	resp.Header.Set("Content-Type", "text/event-stream")

	// Create response writer
	w := &MockResponseWriter{
		headers: make(http.Header),
		body:    &bytes.Buffer{},
	}

	// Call handleStreamingResponse
	handler.handleStreamingResponse(w, resp, mockProvider, 100)

	// Verify status code is preserved
	assert.Equal(t, 400, w.statusCode, "error status code should be preserved")

	// Verify response body contains original error data
	responseBody := w.body.String()
	assert.Contains(t, responseBody, "invalid_request_error", "error response should be forwarded as-is")
	assert.Contains(t, responseBody, "Invalid model specified", "error message should be preserved")
}
