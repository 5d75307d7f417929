package universal

// RouteRequestBody is the narrow view of an inbound request the router
// reads. It never looks at message content, only the fields the five
// classifiers and the explicit-override check need.
type RouteRequestBody struct {
	Model    string          `json:"model"`
	System   []SystemMessage `json:"system,omitempty"`
	Thinking *bool           `json:"thinking,omitempty"`
	Tools    []RequestTool   `json:"tools,omitempty"`
	Metadata *RequestMetadata `json:"metadata,omitempty"`
}

// SystemMessage is one entry of an Anthropic-style system prompt array.
type SystemMessage struct {
	Text string `json:"text"`
}

// RequestTool is the narrow tool shape the web-search classifier reads.
type RequestTool struct {
	Type string `json:"type"`
}

// RequestMetadata carries the opaque user_id the session id is extracted
// from.
type RequestMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// SessionUsage is the cached token usage from a session's prior turn.
type SessionUsage struct {
	InputTokens int `json:"input_tokens"`
}
