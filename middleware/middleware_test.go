package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

func stepCtx() *StepContext {
	return &StepContext{
		Run:  run.New("org_a", "https://example.com", []string{"g"}),
		Step: step.New(step.ActionClick, "the button"),
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(ctx context.Context, sc *StepContext, next Handler) error {
			order = append(order, name+"-in")
			err := next(ctx)
			order = append(order, name+"-out")
			return err
		}
	}

	chain := Chain(mk("a"), mk("b"), mk("c"))
	err := chain(context.Background(), stepCtx(), func(ctx context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := "a-in b-in c-in handler c-out b-out a-out"
	if got := strings.Join(order, " "); got != want {
		t.Fatalf("order = %q, want %q", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := Chain()(context.Background(), stepCtx(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("empty chain must call handler directly: called=%v err=%v", called, err)
	}
}

func TestRecover_ConvertsPanic(t *testing.T) {
	mw := Recover(discard())
	err := mw(context.Background(), stepCtx(), func(ctx context.Context) error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

func TestRecover_PassThrough(t *testing.T) {
	mw := Recover(discard())
	want := errors.New("ordinary failure")
	err := mw(context.Background(), stepCtx(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected pass-through error, got %v", err)
	}
}

func TestTimeout_ParamOverridesFallback(t *testing.T) {
	sc := stepCtx()
	sc.Step = sc.Step.WithParam(step.ParamTimeoutMS, "10")

	mw := Timeout(30 * time.Second)
	err := mw(context.Background(), sc, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded from 10ms param, got %v", err)
	}
}

func TestTimeout_FallbackApplies(t *testing.T) {
	mw := Timeout(25 * time.Millisecond)
	err := mw(context.Background(), stepCtx(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("expected deadline on handler context")
		}
		if time.Until(deadline) > 25*time.Millisecond {
			t.Fatal("deadline further out than fallback")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Timeout: %v", err)
	}
}

func TestMetrics_PassThrough(t *testing.T) {
	// Without a configured MeterProvider the instruments are noops; the
	// middleware must still propagate results faithfully.
	mw := Metrics()
	want := errors.New("fail")
	err := mw(context.Background(), stepCtx(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected pass-through error, got %v", err)
	}
}

func TestTracing_PassThrough(t *testing.T) {
	mw := Tracing()
	err := mw(context.Background(), stepCtx(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Tracing: %v", err)
	}
}
