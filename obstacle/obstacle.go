// Package obstacle detects goal-blocking page overlays (consent
// dialogs, paywalls, onboarding tours) and produces the dismissal step
// for the highest-priority one.
package obstacle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/step"
)

// Type classifies an overlay.
type Type string

const (
	TypeLegal         Type = "legal"
	TypeCookieConsent Type = "cookie_consent"
	TypeOnboarding    Type = "onboarding"
	TypeAgeGate       Type = "age_gate"
	TypeLoginWall     Type = "login_wall"
	TypePromotional   Type = "promotional"
	TypeAdFeedback    Type = "ad_feedback"
)

// priority ranks overlay types; lower is more urgent. Legal and
// consent dialogs block everything else, ad-feedback popups block
// almost nothing.
func priority(t Type) int {
	switch t {
	case TypeLegal:
		return 0
	case TypeCookieConsent:
		return 1
	case TypeOnboarding:
		return 2
	case TypeAgeGate:
		return 3
	case TypeLoginWall:
		return 4
	case TypePromotional:
		return 5
	case TypeAdFeedback:
		return 6
	}
	return 7
}

// Confidence grades how certain the model is that the overlay exists
// and that the dismiss selector is right.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// actionable reports whether the confidence clears the dismissal gate.
// Low-confidence detections are reported but never acted on.
func (c Confidence) actionable() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

// Detection is the detector's verdict for one snapshot.
type Detection struct {
	Present         bool       `json:"present"`
	Type            Type       `json:"type,omitempty"`
	DismissSelector string     `json:"dismiss_selector,omitempty"`
	Text            string     `json:"text,omitempty"`
	Confidence      Confidence `json:"confidence,omitempty"`
	Centered        bool       `json:"centered,omitempty"`
}

// DismissStep builds the click step that clears the overlay.
func (d *Detection) DismissStep() *step.ActionStep {
	s := step.New(step.ActionClick, fmt.Sprintf("dismiss %s overlay", d.Type))
	s.Selector = d.DismissSelector
	s.Origin = step.OriginObstacle
	return s
}

// candidate is the model's wire representation of one overlay.
type candidate struct {
	Type       string `json:"type"`
	Selector   string `json:"dismiss_selector"`
	Text       string `json:"text"`
	Confidence string `json:"confidence"`
	Position   string `json:"position"` // "center" or "corner"
}

type detectPayload struct {
	Overlays []candidate `json:"overlays"`
}

// Detector finds obstacles in page snapshots.
type Detector struct {
	invoker ai.Invoker
	logger  *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(invoker ai.Invoker, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{invoker: invoker, logger: logger}
}

const detectSystem = `You detect overlays that block interaction with a web page.
Respond with a JSON object {"overlays":[{"type":...,"dismiss_selector":...,"text":...,"confidence":...,"position":...}]}.
Types: legal, cookie_consent, onboarding, age_gate, login_wall, promotional, ad_feedback.
Confidence: high, medium, low. Position: center or corner.
Report only overlays actually present; an empty list is a valid answer.`

// Detect inspects the snapshot for blocking overlays. When several are
// present the most urgent wins: type priority first, then a centered
// overlay over a corner one, then higher confidence. A detection below
// medium confidence is returned with Present=false — reported, not
// acted on. Detection failures degrade to "no obstacle" so a flaky
// model call never stalls a run.
func (d *Detector) Detect(ctx context.Context, snap *bridge.Snapshot) (*Detection, error) {
	user := fmt.Sprintf("Page: %s (%s)\n\n%s", snap.Title, snap.URL, truncate(snap.DOM, 8000))

	payload, err := ai.Call[detectPayload](ctx, d.invoker, ai.Request{
		System:      detectSystem,
		User:        user,
		Temperature: 0.1,
	})
	if err != nil {
		if errors.Is(err, pilot.ErrMalformedPayload) {
			d.logger.Warn("obstacle detection unusable, assuming clear",
				slog.String("url", snap.URL),
			)
			return &Detection{}, nil
		}
		return nil, fmt.Errorf("detect obstacles on %q: %w", snap.URL, err)
	}

	best := pick(payload.Overlays)
	if best == nil {
		return &Detection{}, nil
	}

	det := &Detection{
		Present:         true,
		Type:            Type(best.Type),
		DismissSelector: best.Selector,
		Text:            best.Text,
		Confidence:      Confidence(strings.ToLower(best.Confidence)),
		Centered:        best.Position == "center",
	}
	if !det.Confidence.actionable() || det.DismissSelector == "" {
		det.Present = false
	}
	return det, nil
}

// pick returns the most urgent candidate, or nil when none qualify.
func pick(overlays []candidate) *candidate {
	var best *candidate
	for i := range overlays {
		c := &overlays[i]
		if !knownType(c.Type) {
			continue
		}
		if best == nil || moreUrgent(c, best) {
			best = c
		}
	}
	return best
}

func moreUrgent(a, b *candidate) bool {
	pa, pb := priority(Type(a.Type)), priority(Type(b.Type))
	if pa != pb {
		return pa < pb
	}
	ca, cb := a.Position == "center", b.Position == "center"
	if ca != cb {
		return ca
	}
	return confRank(a.Confidence) < confRank(b.Confidence)
}

func confRank(c string) int {
	switch Confidence(strings.ToLower(c)) {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	}
	return 2
}

func knownType(t string) bool {
	return priority(Type(t)) < 7
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
