package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/modelgate/internal/universal"
)

func TestEstimateTokens(t *testing.T) {
	system := []universal.SystemMessage{
		{Text: strings.Repeat("a", 100)},
		{Text: strings.Repeat("b", 40)},
	}
	assert.Equal(t, 35, EstimateTokens(system))
}

func TestEstimateTokens_Empty(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
}

func TestExtractSessionID(t *testing.T) {
	assert.Equal(t, "abc123", ExtractSessionID("user_session_abc123"))
	assert.Equal(t, "", ExtractSessionID("user-without-marker"))
	assert.Equal(t, "", ExtractSessionID(""))
}
