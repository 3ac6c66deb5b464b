package quota

import (
	"fmt"
	"strconv"
	"strings"
)

// MayIssue reports whether a user with the given number of active peers may
// receive another one under the plan limit.
func MayIssue(activePeerCount, planLimit int) bool {
	return activePeerCount < planLimit
}

// Limits maps a plan tier to its peer limit.
type Limits map[string]int

// For returns the peer limit for a tier, zero for unknown tiers.
func (l Limits) For(tier string) int {
	return l[tier]
}

// ParseLimits parses a "tier:limit,tier:limit" string from configuration.
func ParseLimits(s string) (Limits, error) {
	limits := make(Limits)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tier, raw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid plan limit entry %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid plan limit value %q", part)
		}
		limits[strings.TrimSpace(tier)] = n
	}
	return limits, nil
}
