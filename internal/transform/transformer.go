package transform

import (
	"encoding/json"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// Transformer implements the six conversions a single upstream dialect
// needs to participate in the pipeline, plus the three capability flags
// spec.md §4.2 lists. Every method is a total function over syntactically
// valid dialect JSON: unrecognized variants degrade to plain text or are
// dropped rather than returning an error (spec.md §3 invariant). The one
// exception is a response with no choice or candidate at all, for which
// the response conversions return a KindInvalidFormat error.
type Transformer interface {
	ProviderName() string
	SupportsTools() bool
	SupportsStreaming() bool

	ToUniversalRequest(raw json.RawMessage) (*universal.ChatRequest, error)
	FromUniversalRequest(req *universal.ChatRequest) (json.RawMessage, error)

	ToUniversalResponse(raw json.RawMessage) (*universal.ChatResponse, error)
	FromUniversalResponse(resp *universal.ChatResponse) (json.RawMessage, error)

	ToUniversalStreamChunk(raw json.RawMessage) (*universal.ChatStreamChunk, error)
	FromUniversalStreamChunk(chunk *universal.ChatStreamChunk) (json.RawMessage, error)
}
