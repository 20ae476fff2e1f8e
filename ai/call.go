package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/probelab/pilot"
)

// Call invokes the model and unmarshals its output into T. Responses
// are tolerated with or without markdown code fences. A malformed
// payload earns exactly one retry with a stricter instruction appended;
// a second malformed payload returns pilot.ErrMalformedPayload.
func Call[T any](ctx context.Context, inv Invoker, req Request) (T, error) {
	var zero T

	raw, err := inv.Complete(ctx, req)
	if err != nil {
		return zero, err
	}

	out, err := decode[T](raw)
	if err == nil {
		return out, nil
	}

	strict := req
	strict.User = req.User + "\n\nYour previous response was not valid JSON. " +
		"Respond with ONLY a valid JSON object matching the requested schema — " +
		"no prose, no code fences."

	raw, rerr := inv.Complete(ctx, strict)
	if rerr != nil {
		return zero, rerr
	}
	out, err = decode[T](raw)
	if err != nil {
		return zero, fmt.Errorf("decode model output after retry: %v: %w", err, pilot.ErrMalformedPayload)
	}
	return out, nil
}

// decode unmarshals raw into T, stripping markdown fences first.
func decode[T any](raw string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(StripFences(raw)), &out); err != nil {
		return out, err
	}
	return out, nil
}

// StripFences removes a surrounding markdown code fence, with or
// without a language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
