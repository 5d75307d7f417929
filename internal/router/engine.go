package router

import (
	"strings"

	"github.com/corvidlabs/modelgate/internal/config"
	"github.com/corvidlabs/modelgate/internal/universal"
)

// Route picks the "provider,model" string to use for a request, in the
// fixed priority order: an explicit "provider,model" override in the
// request, then the five classifiers in order, then the router's default.
// Route never fails: a malformed or unmatched explicit override passes
// through unchanged, and an absent default simply yields "".
func Route(req universal.RouteRequestBody, tokenCount int, cfg *config.RouterConfig, providers []config.Provider, lastUsage *universal.SessionUsage) string {
	if model, ok := resolveExplicitOverride(req.Model, providers); ok {
		return model
	}

	for _, classify := range classifiers {
		if model, ok := classify(req, tokenCount, cfg, lastUsage); ok {
			return model
		}
	}

	return cfg.Default
}

// resolveExplicitOverride checks whether the request names a model as
// "provider,model". If so and that provider+model combination is known to
// the config, it returns the canonical "provider,model" string using the
// configured provider's own name. If the string contains a comma but
// matches no known provider/model, it is returned unchanged (never
// silently dropped). If the model has no comma at all, this is not an
// override.
func resolveExplicitOverride(model string, providers []config.Provider) (string, bool) {
	if !strings.Contains(model, ",") {
		return "", false
	}

	parts := strings.SplitN(model, ",", 2)
	providerName, modelName := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	for _, p := range providers {
		if !strings.EqualFold(p.Name, providerName) {
			continue
		}
		for _, m := range p.Models {
			if strings.EqualFold(m, modelName) {
				return p.Name + "," + m, true
			}
		}
		for _, m := range p.GetAllowedModels() {
			if strings.EqualFold(m, modelName) {
				return p.Name + "," + m, true
			}
		}
	}

	return model, true
}

// SplitModel separates a "provider,model" route string into its two
// halves. If there is no comma, provider is "" and model is the string
// unchanged.
func SplitModel(route string) (provider, model string) {
	parts := strings.SplitN(route, ",", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", route
}
