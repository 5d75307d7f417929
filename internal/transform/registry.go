package transform

import (
	"encoding/json"
	"sync"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// Registry looks up Transformers by dialect name and composes pairs of them
// into cross-dialect translations, mirroring original_source's
// transformers/providers/factory.rs TransformerFactory/TransformerRegistry.
type Registry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

// NewRegistry builds a Registry pre-populated with the three built-in
// dialects: openai, anthropic, gemini.
func NewRegistry() *Registry {
	r := &Registry{transformers: make(map[string]Transformer)}
	r.Register(NewOpenAITransformer())
	r.Register(NewAnthropicTransformer())
	r.Register(NewGeminiTransformer())
	return r
}

// Register adds or replaces the Transformer for its ProviderName().
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[t.ProviderName()] = t
}

// Get returns the Transformer registered for name.
func (r *Registry) Get(name string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[name]
	if !ok {
		return nil, unsupportedProviderErr(name)
	}
	return t, nil
}

// HasProvider reports whether name has a registered Transformer.
func (r *Registry) HasProvider(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// ListProviders returns the names of every registered dialect.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	return names
}

// TransformRequest converts a request body from one dialect to another by
// routing it through the universal schema: from.ToUniversalRequest composed
// with to.FromUniversalRequest.
func (r *Registry) TransformRequest(from, to string, raw json.RawMessage) (json.RawMessage, error) {
	fromT, err := r.Get(from)
	if err != nil {
		return nil, err
	}
	toT, err := r.Get(to)
	if err != nil {
		return nil, err
	}

	req, err := fromT.ToUniversalRequest(raw)
	if err != nil {
		return nil, err
	}
	return toT.FromUniversalRequest(req)
}

// TransformResponse converts a response body from one dialect to another.
func (r *Registry) TransformResponse(from, to string, raw json.RawMessage) (json.RawMessage, error) {
	fromT, err := r.Get(from)
	if err != nil {
		return nil, err
	}
	toT, err := r.Get(to)
	if err != nil {
		return nil, err
	}

	resp, err := fromT.ToUniversalResponse(raw)
	if err != nil {
		return nil, err
	}
	return toT.FromUniversalResponse(resp)
}

// TransformStreamChunk converts one streamed chunk from one dialect to
// another.
func (r *Registry) TransformStreamChunk(from, to string, raw json.RawMessage) (json.RawMessage, error) {
	fromT, err := r.Get(from)
	if err != nil {
		return nil, err
	}
	toT, err := r.Get(to)
	if err != nil {
		return nil, err
	}

	chunk, err := fromT.ToUniversalStreamChunk(raw)
	if err != nil {
		return nil, err
	}
	return toT.FromUniversalStreamChunk(chunk)
}

// ToUniversalRequest exposes a single dialect's inbound conversion without
// requiring callers to know the "to" side of a transform (used by the proxy
// when it only needs the canonical form for routing decisions).
func (r *Registry) ToUniversalRequest(dialect string, raw json.RawMessage) (*universal.ChatRequest, error) {
	t, err := r.Get(dialect)
	if err != nil {
		return nil, err
	}
	return t.ToUniversalRequest(raw)
}
