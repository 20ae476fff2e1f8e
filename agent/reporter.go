package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// Reporter back-fills a human-readable summary onto terminal runs. It
// runs after the terminal state is persisted, so a summary failure
// costs nothing but the summary itself.
type Reporter struct {
	runs    run.Store
	invoker ai.Invoker
	timeout time.Duration
	logger  *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(runs run.Store, invoker ai.Invoker, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{runs: runs, invoker: invoker, timeout: 30 * time.Second, logger: logger}
}

const summarySystem = `You summarize automated QA test runs for developers.
Given the run's goals, outcome, and step log, write a short plain-text
summary: what was tested, what worked, what failed and the likely cause.
Three sentences maximum. No markdown.`

// Summarize generates and persists the summary for a finished run.
func (rp *Reporter) Summarize(r *run.TestRun) {
	ctx, cancel := context.WithTimeout(context.Background(), rp.timeout)
	defer cancel()

	summary, err := rp.invoker.Complete(ctx, ai.Request{
		System:      summarySystem,
		User:        describeRun(r),
		Temperature: 0.3,
	})
	if err != nil {
		rp.logger.Warn("run summary not generated",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	r.Summary = strings.TrimSpace(summary)
	if err := rp.runs.UpdateRun(ctx, r); err != nil {
		rp.logger.Warn("run summary not persisted",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// describeRun renders the run into the prompt fed to the model.
func describeRun(r *run.TestRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nGoals: %s\nStatus: %s\n", r.TargetURL, strings.Join(r.Goals, "; "), r.Status)
	if r.FailureReason != "" {
		fmt.Fprintf(&b, "Failure: %s\n", r.FailureReason)
	}
	b.WriteString("Steps:\n")
	for _, x := range r.Executed {
		fmt.Fprintf(&b, "- %s %q: %s", x.Step.Action, x.Step.Target, x.Status)
		if x.Error != "" {
			fmt.Fprintf(&b, " (%s)", x.Error)
		}
		if x.Status == step.StatusFailed && x.Suggestion != "" {
			fmt.Fprintf(&b, " hint: %s", x.Suggestion)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
