// Package selector implements the content-addressable selector cache —
// the zero-AI-cost fast path for element resolution. Entries are keyed
// by (tenant, goal hash, normalized URL pattern) so paraphrased goals
// and structurally similar pages hit the same entry.
package selector

import (
	"time"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

// Key is the composite cache key.
type Key struct {
	TenantID   string `json:"tenant_id"`
	GoalHash   string `json:"goal_hash"`
	URLPattern string `json:"url_pattern"`
}

// String renders the key as a single joinable token.
func (k Key) String() string {
	return k.TenantID + ":" + k.GoalHash + ":" + k.URLPattern
}

// CachedSelector is one last-known-good selector with its usage
// statistics. Exactly one row exists per key.
type CachedSelector struct {
	pilot.Entity

	ID  id.SelectorID `json:"id"`
	Key Key           `json:"key"`

	Selector    string `json:"selector"`
	Description string `json:"description,omitempty"`

	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`

	LastUsedAt    time.Time  `json:"last_used_at"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// SuccessRate returns the fraction of recorded uses that verified,
// or 0 when unused.
func (c *CachedSelector) SuccessRate() float64 {
	total := c.SuccessCount + c.FailureCount
	if total == 0 {
		return 0
	}
	return float64(c.SuccessCount) / float64(total)
}
