// Package persona defines behavioral profiles that shape how the
// planner and executor act, and the registry that resolves them.
package persona

import (
	"context"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/id"
)

// Source records where a persona definition came from.
type Source string

const (
	// SourceBuiltin personas ship with the library.
	SourceBuiltin Source = "builtin"
	// SourceCustom personas are tenant-authored.
	SourceCustom Source = "custom"
	// SourceAbsorbed personas were learned from prior runs.
	SourceAbsorbed Source = "absorbed"
)

// Definition is one persona: an immutable record resolved once per
// run. There is a single data-driven representation regardless of
// source — builtin, custom, and absorbed personas all flow through
// the same registry.
type Definition struct {
	pilot.Entity

	ID           id.PersonaID `json:"id"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name,omitempty"`
	Temperature  float32      `json:"temperature"`
	SystemPrompt string       `json:"system_prompt,omitempty"`

	// Skills are ordered references composed into the prompt,
	// priority-sorted (lower first).
	Skills []SkillRef `json:"skills,omitempty"`

	// ScanEveryAction makes the accessibility scan run after every
	// action instead of only after navigations.
	ScanEveryAction bool `json:"scan_every_action"`

	Source Source `json:"source"`
	Active bool   `json:"active"`
}

// SkillRef is one ordered skill reference.
type SkillRef struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Store defines the persistence contract for custom/absorbed personas.
type Store interface {
	// ListPersonas returns all active persona definitions.
	ListPersonas(ctx context.Context) ([]*Definition, error)
}

// Builtins returns the persona definitions that ship with the library.
func Builtins() []*Definition {
	return []*Definition{
		{
			Entity:      pilot.NewEntity(),
			ID:          id.NewPersonaID(),
			Name:        "standard",
			DisplayName: "Standard Tester",
			Temperature: 0.2,
			SystemPrompt: "You are a meticulous QA tester. Work through the " +
				"goal step by step and verify each outcome before moving on.",
			Source: SourceBuiltin,
			Active: true,
		},
		{
			Entity:      pilot.NewEntity(),
			ID:          id.NewPersonaID(),
			Name:        "auditor",
			DisplayName: "Accessibility Auditor",
			Temperature: 0.1,
			SystemPrompt: "You are a compliance-focused accessibility auditor. " +
				"Prefer keyboard-reachable interactions and flag anything that " +
				"would fail WCAG AA.",
			ScanEveryAction: true,
			Source:          SourceBuiltin,
			Active:          true,
		},
		{
			Entity:      pilot.NewEntity(),
			ID:          id.NewPersonaID(),
			Name:        "hacker",
			DisplayName: "Adversarial Tester",
			Temperature: 0.7,
			SystemPrompt: "You are an adversarial tester. Probe edge cases, " +
				"malformed input, and unexpected navigation orders.",
			Source: SourceBuiltin,
			Active: true,
		},
	}
}
