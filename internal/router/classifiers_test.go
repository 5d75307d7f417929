package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/modelgate/internal/config"
	"github.com/corvidlabs/modelgate/internal/universal"
)

func boolPtr(b bool) *bool { return &b }

func TestClassifyLongContext(t *testing.T) {
	cfg := &config.RouterConfig{LongContext: "anthropic,claude-3-5-sonnet-20241022", LongContextThreshold: 60000}

	t.Run("fires on token count alone", func(t *testing.T) {
		model, ok := classifyLongContext(universal.RouteRequestBody{}, 60001, cfg, nil)
		assert.True(t, ok)
		assert.Equal(t, cfg.LongContext, model)
	})

	t.Run("fires on stale session usage plus a sizeable request", func(t *testing.T) {
		usage := &universal.SessionUsage{InputTokens: 70000}
		model, ok := classifyLongContext(universal.RouteRequestBody{}, 20001, cfg, usage)
		assert.True(t, ok)
		assert.Equal(t, cfg.LongContext, model)
	})

	t.Run("does not fire when session usage is stale but request is tiny", func(t *testing.T) {
		usage := &universal.SessionUsage{InputTokens: 70000}
		_, ok := classifyLongContext(universal.RouteRequestBody{}, 100, cfg, usage)
		assert.False(t, ok)
	})

	t.Run("no-op without a configured long context model", func(t *testing.T) {
		_, ok := classifyLongContext(universal.RouteRequestBody{}, 999999, &config.RouterConfig{}, nil)
		assert.False(t, ok)
	})
}

func TestClassifySubagent(t *testing.T) {
	cfg := &config.RouterConfig{}

	t.Run("extracts model from system[1] marker", func(t *testing.T) {
		req := universal.RouteRequestBody{
			System: []universal.SystemMessage{
				{Text: "you are claude code"},
				{Text: "<CCR-SUBAGENT-MODEL>openai,gpt-4o</CCR-SUBAGENT-MODEL>"},
			},
		}
		model, ok := classifySubagent(req, 0, cfg, nil)
		assert.True(t, ok)
		assert.Equal(t, "openai,gpt-4o", model)
	})

	t.Run("ignores the marker in system[0]", func(t *testing.T) {
		req := universal.RouteRequestBody{
			System: []universal.SystemMessage{
				{Text: "<CCR-SUBAGENT-MODEL>openai,gpt-4o</CCR-SUBAGENT-MODEL>"},
			},
		}
		_, ok := classifySubagent(req, 0, cfg, nil)
		assert.False(t, ok)
	})

	t.Run("no-op without a second system message", func(t *testing.T) {
		_, ok := classifySubagent(universal.RouteRequestBody{}, 0, cfg, nil)
		assert.False(t, ok)
	})
}

func TestClassifyBackground(t *testing.T) {
	cfg := &config.RouterConfig{Background: "anthropic,claude-3-haiku-20240307"}

	model, ok := classifyBackground(universal.RouteRequestBody{Model: "claude-3-5-haiku-20241022"}, 0, cfg, nil)
	assert.True(t, ok)
	assert.Equal(t, cfg.Background, model)

	_, ok = classifyBackground(universal.RouteRequestBody{Model: "claude-3-5-sonnet-20241022"}, 0, cfg, nil)
	assert.False(t, ok)
}

func TestClassifyThinking(t *testing.T) {
	cfg := &config.RouterConfig{Think: "openai,o1-preview"}

	model, ok := classifyThinking(universal.RouteRequestBody{Thinking: boolPtr(true)}, 0, cfg, nil)
	assert.True(t, ok)
	assert.Equal(t, cfg.Think, model)

	_, ok = classifyThinking(universal.RouteRequestBody{}, 0, cfg, nil)
	assert.False(t, ok)
}

func TestClassifyWebSearch(t *testing.T) {
	cfg := &config.RouterConfig{WebSearch: "openrouter,perplexity/llama-3.1-sonar-huge-128k-online"}

	req := universal.RouteRequestBody{Tools: []universal.RequestTool{{Type: "web_search_20241022"}}}
	model, ok := classifyWebSearch(req, 0, cfg, nil)
	assert.True(t, ok)
	assert.Equal(t, cfg.WebSearch, model)

	req = universal.RouteRequestBody{Tools: []universal.RequestTool{{Type: "custom_tool"}}}
	_, ok = classifyWebSearch(req, 0, cfg, nil)
	assert.False(t, ok)
}
