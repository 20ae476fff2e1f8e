package pilot

import "time"

// Config holds configuration for the execution engine.
type Config struct {
	// Concurrency is the maximum number of runs executing simultaneously
	// across all tenants.
	Concurrency int

	// MaxRunsPerTenant caps concurrent runs for a single tenant.
	// Zero means no per-tenant limit beyond the global one.
	MaxRunsPerTenant int

	// SubmitRate is the maximum sustained run admissions per second.
	// Zero disables rate limiting.
	SubmitRate float64

	// SubmitBurst is the token-bucket burst for SubmitRate.
	SubmitBurst int

	// RunTimeout is the wall-clock budget for a single run. A run that
	// exceeds it transitions to StatusTimeout at the next step boundary.
	RunTimeout time.Duration

	// StepTimeout is the default per-step execution deadline, overridable
	// per step via the "timeout-ms" param.
	StepTimeout time.Duration

	// StepRetryLimit bounds repair attempts for one logical step.
	StepRetryLimit int

	// PlannerMaxSteps caps the number of steps a plan may contain.
	PlannerMaxSteps int

	// HistoryWindow is how many recent executed steps are handed to the
	// healer as context. Bounded to cap prompt size.
	HistoryWindow int

	// SelectorTTL is the age threshold for the stale-selector sweep.
	SelectorTTL time.Duration

	// JanitorSchedule is the cron expression for the stale-selector sweep.
	JanitorSchedule string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      10,
		MaxRunsPerTenant: 3,
		RunTimeout:       10 * time.Minute,
		StepTimeout:      30 * time.Second,
		StepRetryLimit:   3,
		PlannerMaxSteps:  15,
		HistoryWindow:    5,
		SelectorTTL:      30 * 24 * time.Hour,
		JanitorSchedule:  "@daily",
		ShutdownTimeout:  30 * time.Second,
	}
}
