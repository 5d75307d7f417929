package handlers

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/pkoukk/tiktoken-go"

	"github.com/corvidlabs/modelgate/internal/config"
	"github.com/corvidlabs/modelgate/internal/providers"
	"github.com/corvidlabs/modelgate/internal/router"
	"github.com/corvidlabs/modelgate/internal/sessioncache"
	"github.com/corvidlabs/modelgate/internal/transform"
	"github.com/corvidlabs/modelgate/internal/universal"
)

type ProxyHandler struct {
	config     *config.Manager
	registry   *providers.Registry
	logger     *slog.Logger
	cache      *sessioncache.Cache
	transforms *transform.Registry
}

func NewProxyHandler(config *config.Manager, registry *providers.Registry, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		config:     config,
		registry:   registry,
		logger:     logger,
		cache:      sessioncache.New(sessioncache.DefaultCapacity),
		transforms: transform.NewRegistry(),
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	// Read request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	// Count input tokens
	inputTokens := h.countInputTokens(string(body))

	// Select model and transform request body
	transformedBody, modelName, sessionID := h.selectModel(body, cfg)

	// Find provider for the model
	provider, providerConfig, err := h.findProvider(modelName, cfg)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "provider not found: %v", err)
		return
	}

	// Transform from Anthropic format to provider format
	finalBody, err := h.transformRequestToProviderFormat(transformedBody, provider.Name())
	if err != nil {
		h.logger.Warn("Request transformation failed, using original", "error", err)
		finalBody = transformedBody
	}

	// Debug: Log request being sent to provider (truncated for readability)
	if len(finalBody) > 500 {
		h.logger.Debug("Sending request to provider", "provider", provider.Name(), "body_preview", string(finalBody[:500])+"...")
	} else {
		h.logger.Debug("Sending request to provider", "provider", provider.Name(), "body", string(finalBody))
	}

	// Build final endpoint URL (handle special cases like Gemini)
	finalURL := h.buildEndpointURL(provider, providerConfig.APIBase, modelName)
	
	// Create upstream request
	req, err := http.NewRequestWithContext(r.Context(), r.Method, finalURL, strings.NewReader(string(finalBody)))
	if err != nil {
		h.httpError(w, http.StatusInternalServerError, "failed to create upstream request: %v", err)
		return
	}

	// Copy headers and set auth
	req.Header = r.Header.Clone()
	if providerConfig.APIKey != "" {
		h.setAuthHeader(req, provider, providerConfig.APIKey)
	}

	h.logger.Info("Proxying request",
		"provider", provider.Name(),
		"model", modelName,
		"url", finalURL,
		"input_tokens", inputTokens,
	)

	// Make upstream request
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "upstream request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	// Handle response based on streaming
	if provider.IsStreaming(resp.Header) {
		h.handleStreamingResponse(w, resp, provider, inputTokens)
	} else {
		h.handleResponse(w, resp, provider, inputTokens, sessionID)
	}
}

func (h *ProxyHandler) handleStreamingResponse(w http.ResponseWriter, resp *http.Response, provider providers.Provider, inputTokens int) {
	// Handle decompression
	bodyReader, err := h.decompressReader(resp)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "decompression error: %v", err)
		return
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	// Set streaming headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Copy relevant headers
	h.copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	// For error responses, capture and print the body
	var errorBodyLines []string
	captureError := resp.StatusCode != http.StatusOK

	// Create scanner
	scanner := bufio.NewScanner(bodyReader)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Capture error response body
		if captureError && line != "" {
			errorBodyLines = append(errorBodyLines, line)
		}

		// Skip empty lines and comments
		if line == "" {
			fmt.Fprint(w, "\n")
			h.flushResponse(w)
			continue
		}

		if strings.HasPrefix(line, ": ") {
			continue // Skip SSE comments
		}

		// Handle [DONE] message
		if line == "data: [DONE]" {
			fmt.Fprint(w, "data: [DONE]\n\n")
			h.flushResponse(w)
			break
		}

		// Process data lines
		if strings.HasPrefix(line, "data: ") {
			// For error responses, forward data as-is without transformation
			if captureError {
				fmt.Fprintf(w, "%s\n\n", line)
			} else {
				jsonData := strings.TrimPrefix(line, "data: ")

				// Transform chunk through the universal schema for successful responses
				events, err := h.transformStreamChunkToAnthropic(dialectForProvider(provider.Name()), []byte(jsonData))
				if err != nil {
					h.logger.Error("Stream transformation error", "error", err)
					// Send original chunk on error
					fmt.Fprintf(w, "%s\n\n", line)
				} else {
					if len(events) > 0 {
						w.Write(events)
					}
				}
			}

			h.flushResponse(w)
		} else {
			// Pass through other SSE lines
			fmt.Fprintf(w, "%s\n", line)
			h.flushResponse(w)
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("Stream scanning error", "error", err)
	}

	// Print captured error response body
	if captureError && len(errorBodyLines) > 0 {
		fmt.Printf("\nUpstream streaming error response body:\n%s\n", strings.Join(errorBodyLines, "\n"))
	}

	h.logger.Info("Completed streaming response",
		"status", resp.StatusCode,
		"input_tokens", inputTokens,
	)
}

func (h *ProxyHandler) handleResponse(w http.ResponseWriter, resp *http.Response, provider providers.Provider, inputTokens int, sessionID string) {
	// Handle decompression
	bodyReader, err := h.decompressReader(resp)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "decompression error: %v", err)
		return
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	// Read full response
	respBody, err := io.ReadAll(bodyReader)
	if err != nil {
		h.httpError(w, http.StatusBadGateway, "failed to read upstream response: %v", err)
		return
	}

	var finalBody []byte

	// For error responses, forward original response without transformation
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("\nUpstream error response body:\n%s\n", string(respBody))
		finalBody = respBody
	} else {
		// Transform successful responses through the universal schema
		transformedBody, err := h.transformResponseToAnthropic(dialectForProvider(provider.Name()), respBody)
		if err != nil {
			h.logger.Warn("Response transformation failed, using original", "error", err)
			finalBody = respBody
		} else {
			finalBody = transformedBody
		}
	}

	// Copy headers and send response
	h.copyHeaders(w, resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(finalBody)

	h.logResponseTokens(finalBody, resp.StatusCode, inputTokens)

	if sessionID != "" && resp.StatusCode == http.StatusOK {
		h.updateSessionUsage(sessionID, finalBody)
	}
}

// updateSessionUsage stores the upstream's reported input token count in
// the session cache, so the next request on this session sees that figure
// as its last usage for the long-context classifier. It is the only cache
// write; nothing is stored when the upstream call fails or is cancelled.
func (h *ProxyHandler) updateSessionUsage(sessionID string, respBody []byte) {
	var response struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return
	}
	if response.Usage.InputTokens <= 0 {
		return
	}
	h.cache.Put(sessionID, universal.SessionUsage{InputTokens: response.Usage.InputTokens})
}

func (h *ProxyHandler) findProvider(modelName string, cfg *config.Config) (providers.Provider, *config.Provider, error) {
	// Parse provider name from model (format: "provider,model" or just "model")
	parts := strings.SplitN(modelName, ",", 2)
	var providerName string
	if len(parts) > 1 {
		providerName = parts[0]
	}

	// Find provider config
	var providerConfig *config.Provider
	for i, p := range cfg.Providers {
		if p.Name == providerName {
			providerConfig = &cfg.Providers[i]
			break
		}
	}

	var provider providers.Provider

	if providerConfig != nil {
		_provider, err := h.registry.GetByDomain(providerConfig.APIBase)
		if err != nil {
			return nil, nil, fmt.Errorf("no provider implementation for domain: %w", err)
		}

		provider = _provider
	} else {
		_provider, ok := h.registry.Get(providerName)
		if !ok {
			return nil, nil, fmt.Errorf("provider '%s' not found in registry", providerName)
		}

		providerConfig = &config.Provider{
			Name:    _provider.Name(),
			APIBase: _provider.GetEndpoint(),
		}

		provider = _provider
	}

	// Use provider-specific API key if available, otherwise fallback to MODELGATE_API_KEY
	var apiKey string
	if providerConfig != nil {
		apiKey = providerConfig.APIKey
	}

	if apiKey == "" {
		if gatewayAPIKey := os.Getenv("MODELGATE_API_KEY"); gatewayAPIKey != "" {
			apiKey = gatewayAPIKey
			h.logger.Debug("Using MODELGATE_API_KEY for provider", "provider", provider.Name())
		}

		providerConfig.APIKey = apiKey
	}

	provider.SetAPIKey(apiKey)

	return provider, providerConfig, nil
}

// selectModel runs the route request through the router and rewrites the
// request body's model field to the chosen upstream model name. Routing
// token counts are estimated from the system prompt alone via
// router.EstimateTokens, independent of the tiktoken figure ServeHTTP tracks
// for logging. It returns the updated body, the
// "provider,model" route string, and the session id extracted from the
// request's metadata (empty if none was present).
func (h *ProxyHandler) selectModel(inputBody []byte, cfg *config.Config) ([]byte, string, string) {
	var modelBody map[string]any
	if err := json.Unmarshal(inputBody, &modelBody); err != nil {
		h.logger.Error("Failed to unmarshal request body for model selection", "error", err)
		return inputBody, cfg.Router.Default, ""
	}

	var routeReq universal.RouteRequestBody
	if err := json.Unmarshal(inputBody, &routeReq); err != nil {
		h.logger.Warn("Failed to unmarshal request body for routing, using default", "error", err)
	}

	var sessionID string
	var lastUsage *universal.SessionUsage
	if routeReq.Metadata != nil {
		sessionID = router.ExtractSessionID(routeReq.Metadata.UserID)
		if sessionID != "" {
			if usage, ok := h.cache.Get(sessionID); ok {
				lastUsage = &usage
			}
		}
	}

	estimatedTokens := router.EstimateTokens(routeReq.System)
	selectedModel := router.Route(routeReq, estimatedTokens, &cfg.Router, cfg.Providers, lastUsage)

	h.logger.Debug("Route decision",
		"route", selectedModel,
		"session_id", sessionID,
		"input_tokens", estimatedTokens,
	)

	_, finalModel := router.SplitModel(selectedModel)

	// Handle :online suffix for web search (preserve it for OpenRouter)
	// OpenRouter expects model:online format, so we keep it as-is
	modelBody["model"] = finalModel

	updatedBody, err := json.Marshal(modelBody)
	if err != nil {
		h.logger.Error("Failed to marshal updated request body", "error", err)
		return inputBody, selectedModel, sessionID
	}

	return updatedBody, selectedModel, sessionID
}

func (h *ProxyHandler) countInputTokens(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Error("Failed to get tiktoken encoding", "error", err)
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

func (h *ProxyHandler) decompressReader(resp *http.Response) (io.Reader, error) {
	var bodyReader io.Reader = resp.Body
	encoding := resp.Header.Get("Content-Encoding")

	switch encoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = gzipReader
	case "br":
		bodyReader = brotli.NewReader(resp.Body)
	}

	return bodyReader, nil
}

func (h *ProxyHandler) copyHeaders(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		// Skip compression headers since we handle decompression
		if key == "Content-Encoding" || key == "Content-Length" {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
}

func (h *ProxyHandler) flushResponse(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *ProxyHandler) httpError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Error("HTTP Error", "code", code, "message", msg)
	http.Error(w, msg, code)
}

// dialectForProvider maps a registered provider name to the wire dialect its
// upstream endpoint speaks. Everything OpenAI-compatible (OpenRouter, NVIDIA
// NIM, raw OpenAI) collapses to the "openai" dialect.
func dialectForProvider(providerName string) string {
	switch providerName {
	case "anthropic":
		return "anthropic"
	case "gemini":
		return "gemini"
	default:
		return "openai"
	}
}

// transformRequestToProviderFormat re-encodes the client's Anthropic-dialect
// request body into the upstream provider's dialect by routing it through
// the universal schema (internal/transform).
func (h *ProxyHandler) transformRequestToProviderFormat(requestBody []byte, providerName string) ([]byte, error) {
	dialect := dialectForProvider(providerName)
	if dialect == "anthropic" {
		return requestBody, nil
	}
	out, err := h.transforms.TransformRequest("anthropic", dialect, requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to transform request to %s dialect: %w", dialect, err)
	}
	return out, nil
}

// transformResponseToAnthropic re-encodes an upstream response body from the
// provider's dialect back into Anthropic's, the dialect the client always
// receives in, by routing it through the universal schema.
func (h *ProxyHandler) transformResponseToAnthropic(dialect string, respBody []byte) ([]byte, error) {
	if dialect == "anthropic" {
		return respBody, nil
	}
	out, err := h.transforms.TransformResponse(dialect, "anthropic", respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to transform response from %s dialect: %w", dialect, err)
	}
	return out, nil
}

// transformStreamChunkToAnthropic converts one upstream SSE chunk from the
// provider's dialect into a fully framed Anthropic SSE event ("event: ...\n
// data: ...\n\n"), by routing the chunk's JSON payload through the universal
// schema.
func (h *ProxyHandler) transformStreamChunkToAnthropic(dialect string, chunk []byte) ([]byte, error) {
	if dialect == "anthropic" {
		return []byte(fmt.Sprintf("data: %s\n\n", string(chunk))), nil
	}

	out, err := h.transforms.TransformStreamChunk(dialect, "anthropic", chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to transform stream chunk from %s dialect: %w", dialect, err)
	}

	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(out, &event); err != nil {
		return nil, fmt.Errorf("failed to inspect transformed stream chunk: %w", err)
	}

	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, string(out))), nil
}

// buildEndpointURL constructs the final endpoint URL for the provider
func (h *ProxyHandler) buildEndpointURL(provider providers.Provider, baseURL, modelName string) string {
	// Handle Gemini's special URL requirement
	if provider.Name() == "gemini" {
		// Extract actual model name from modelName (remove provider prefix if present)
		actualModel := modelName
		if parts := strings.SplitN(modelName, ",", 2); len(parts) > 1 {
			actualModel = parts[1]
		}
		
		// Gemini requires the model in the URL path
		// Format: https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent
		if strings.HasSuffix(baseURL, "/models") {
			return fmt.Sprintf("%s/%s:generateContent", baseURL, actualModel)
		} else if strings.Contains(baseURL, "/models/") {
			// Base URL already has a model specified, replace it
			baseIndex := strings.LastIndex(baseURL, "/models/")
			basePart := baseURL[:baseIndex+8] // Keep "/models/"
			return fmt.Sprintf("%s%s:generateContent", basePart, actualModel)
		}
		// Fallback to appending the model
		return fmt.Sprintf("%s/%s:generateContent", strings.TrimSuffix(baseURL, "/"), actualModel)
	}
	
	// For all other providers, use the base URL as-is
	return baseURL
}

// setAuthHeader sets the appropriate authentication header for the provider
func (h *ProxyHandler) setAuthHeader(req *http.Request, provider providers.Provider, apiKey string) {
	switch provider.Name() {
	case "gemini":
		// Gemini uses x-goog-api-key header
		req.Header.Set("x-goog-api-key", apiKey)
	default:
		// All other providers use Bearer token
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (h *ProxyHandler) logResponseTokens(respBody []byte, statusCode int, inputTokens int) {
	logFields := []any{
		"status", statusCode,
		"input_tokens", inputTokens,
	}

	// Try to extract output tokens from response
	var response map[string]interface{}
	if err := json.Unmarshal(respBody, &response); err == nil {
		if usage, ok := response["usage"].(map[string]interface{}); ok {
			if outputTokens, ok := usage["output_tokens"]; ok {
				logFields = append(logFields, "output_tokens", outputTokens)
			}
		}
	}

	if statusCode != http.StatusOK {
		h.logger.Error("Upstream error response", logFields...)
	} else {
		h.logger.Info("Successful response", logFields...)
	}
}
