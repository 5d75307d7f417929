package router

import (
	"strings"

	"github.com/corvidlabs/modelgate/internal/universal"
)

// EstimateTokens implements the cheap byte-length heuristic the classifiers
// and threshold comparisons are specified against: floor(len(text) * 0.25)
// summed across every system message, matching the original router's
// calculate_token_count exactly so the long-context threshold fires at the
// same point a byte-for-byte reimplementation would.
func EstimateTokens(system []universal.SystemMessage) int {
	total := 0
	for _, msg := range system {
		total += int(float64(len(msg.Text)) * 0.25)
	}
	return total
}

// ExtractSessionID pulls the session id out of an opaque user_id string,
// taking everything after the first "_session_" marker. Returns "" if the
// marker is absent.
func ExtractSessionID(userID string) string {
	const marker = "_session_"
	idx := strings.Index(userID, marker)
	if idx < 0 {
		return ""
	}
	return userID[idx+len(marker):]
}
