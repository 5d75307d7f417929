// Package transform implements the C2/C3 transformer pipeline: one
// Transformer per upstream dialect (OpenAI-compatible, Anthropic, Gemini),
// each converting requests, responses, and stream chunks to and from the
// dialect-neutral universal.ChatRequest/ChatResponse/ChatStreamChunk forms,
// plus a Registry that composes two transformers into a cross-dialect
// translation. It mirrors original_source's transformers/provider_trait.rs
// ProviderTransformer trait and transformers/providers/factory.rs
// TransformerFactory.
package transform

import "fmt"

// ErrorKind classifies why a transformer conversion failed, mirroring the
// original Rust TransformerError variants.
type ErrorKind string

const (
	KindDeserialization     ErrorKind = "deserialization"
	KindSerialization       ErrorKind = "serialization"
	KindUnsupportedProvider ErrorKind = "unsupported_provider"
	KindInvalidFormat       ErrorKind = "invalid_format"
	KindToolConversion      ErrorKind = "tool_conversion"
	KindMessageConversion   ErrorKind = "message_conversion"
)

// Error is the typed failure every Transformer and Registry method returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func deserializationErr(err error) *Error {
	return newError(KindDeserialization, "failed to decode dialect payload", err)
}

func serializationErr(err error) *Error {
	return newError(KindSerialization, "failed to encode dialect payload", err)
}

func unsupportedProviderErr(name string) *Error {
	return newError(KindUnsupportedProvider, name, nil)
}
