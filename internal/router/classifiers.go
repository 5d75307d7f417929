package router

import (
	"strings"

	"github.com/corvidlabs/modelgate/internal/config"
	"github.com/corvidlabs/modelgate/internal/universal"
)

const subagentModelMarkerStart = "<CCR-SUBAGENT-MODEL>"
const subagentModelMarkerEnd = "</CCR-SUBAGENT-MODEL>"

// Classifier inspects a route request and, if its condition holds and the
// router config names a model for it, returns that model. Classifiers run
// in a fixed priority order and the first match wins; they never consult
// each other's results.
type Classifier func(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (model string, ok bool)

// classifiers is the fixed evaluation order: long-context, subagent,
// background, thinking, web-search. Order matters and is part of the
// routing contract, not an implementation detail.
var classifiers = []Classifier{
	classifyLongContext,
	classifySubagent,
	classifyBackground,
	classifyThinking,
	classifyWebSearch,
}

// classifyLongContext fires when the request's own token estimate exceeds
// the threshold, or when the session's last known usage was already large
// and the current request is non-trivially sized too. Matches the original
// router's two-part OR condition exactly.
func classifyLongContext(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (string, bool) {
	if cfg.LongContext == "" {
		return "", false
	}

	threshold := cfg.LongContextThreshold
	if threshold <= 0 {
		threshold = config.DefaultLongContextThreshold
	}

	tokenCountThreshold := tokenCount > threshold
	lastUsageThreshold := lastUsage != nil && lastUsage.InputTokens > threshold && tokenCount > 20000

	if tokenCountThreshold || lastUsageThreshold {
		return cfg.LongContext, true
	}
	return "", false
}

// classifySubagent extracts a model override embedded in the second system
// message (index 1) by a subagent wrapper, e.g.
// "<CCR-SUBAGENT-MODEL>openai,gpt-4o</CCR-SUBAGENT-MODEL>". Only system[1]
// is ever inspected; this is intentional, not an oversight, since the
// marker convention only ever appears there.
func classifySubagent(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (string, bool) {
	if len(req.System) <= 1 {
		return "", false
	}

	text := req.System[1].Text
	if !strings.HasPrefix(text, subagentModelMarkerStart) {
		return "", false
	}

	start := len(subagentModelMarkerStart)
	end := strings.Index(text, subagentModelMarkerEnd)
	if end < start {
		return "", false
	}

	model := text[start:end]
	if model == "" {
		return "", false
	}
	return model, true
}

// classifyBackground routes small housekeeping calls (the
// claude-3-5-haiku family Claude Code issues for background tasks) to a
// cheaper configured model.
func classifyBackground(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (string, bool) {
	if cfg.Background == "" {
		return "", false
	}
	if strings.HasPrefix(req.Model, "claude-3-5-haiku") {
		return cfg.Background, true
	}
	return "", false
}

// classifyThinking routes any request carrying a non-nil thinking field to
// the configured reasoning model, regardless of its value.
func classifyThinking(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (string, bool) {
	if cfg.Think == "" || req.Thinking == nil {
		return "", false
	}
	return cfg.Think, true
}

// classifyWebSearch routes requests carrying any tool whose type begins
// with "web_search" to the configured web-search-capable model.
func classifyWebSearch(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, lastUsage *universal.SessionUsage) (string, bool) {
	if cfg.WebSearch == "" {
		return "", false
	}
	for _, tool := range req.Tools {
		if strings.HasPrefix(tool.Type, "web_search") {
			return cfg.WebSearch, true
		}
	}
	return "", false
}
