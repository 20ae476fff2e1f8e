package selector

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/probelab/pilot"
)

// HashGoal produces the deterministic cache hash of a goal text:
// trim, lowercase, SHA-256 hex. Case and surrounding whitespace do
// not change the hash, so paraphrased-but-identical goals hit cache.
func HashGoal(goal string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(goal))
	if normalized == "" {
		return "", pilot.ErrBlankGoal
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeURL reduces a URL to its cacheable pattern. Rules, applied
// in order: strip fragment, strip query string, strip trailing slash,
// replace UUID-shaped path segments with "{id}", replace purely
// numeric path segments with "{id}". Normalizing an already-normalized
// URL is a no-op.
func NormalizeURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", pilot.ErrBlankURL
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", pilot.ErrBlankURL
	}

	path := strings.TrimSuffix(u.Path, "/")
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if isUUIDSegment(seg) || isNumericSegment(seg) {
			segments[i] = "{id}"
		}
	}

	// Assembled by hand: url.URL.String percent-encodes the braces in
	// "{id}", which would break the pattern and its idempotence.
	pattern := strings.Join(segments, "/")
	if u.Host != "" {
		pattern = u.Host + pattern
	}
	if u.Scheme != "" {
		pattern = u.Scheme + "://" + pattern
	}
	return pattern, nil
}

func isUUIDSegment(seg string) bool {
	if len(seg) != 36 {
		return false
	}
	_, err := uuid.Parse(seg)
	return err == nil
}

func isNumericSegment(seg string) bool {
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(seg) > 0
}

// BuildKey validates and normalizes the raw inputs into a cache Key.
// Blank goal text or a blank URL is a validation error — a caller bug,
// surfaced immediately and never retried.
func BuildKey(tenantID, goal, rawURL string) (Key, error) {
	hash, err := HashGoal(goal)
	if err != nil {
		return Key{}, err
	}
	pattern, err := NormalizeURL(rawURL)
	if err != nil {
		return Key{}, err
	}
	return Key{TenantID: tenantID, GoalHash: hash, URLPattern: pattern}, nil
}
