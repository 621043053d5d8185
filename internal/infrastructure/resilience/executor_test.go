package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "ollama.chat", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "ollama.chat", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "ollama.chat", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "ollama.chat", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestLimitOperationWaitsBetweenAttempts(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	})
	// 600/min is one call every 100ms after the initial burst of one.
	exec.LimitOperation("gemini.generate", 600, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("expected limiter to delay calls, took %v", elapsed)
	}
}

func TestLimitOperationRespectsContext(t *testing.T) {
	exec := NewExecutor(Config{RetryMaxAttempts: 1, BreakerEnabled: false})
	exec.LimitOperation("gemini.generate", 1, 1)

	if err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("first call should pass the burst, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := exec.Execute(ctx, "gemini.generate", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err == nil || called {
		t.Fatalf("expected limiter wait to fail before the call, err=%v called=%v", err, called)
	}
}

func TestOperationPolicyOverridesAttempts(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
		Operations: map[string]Policy{
			OperationNATSPublish: {MaxAttempts: 4},
		},
	})
	always := func(error) ErrorClassification { return ErrorClassification{Retryable: true, RecordFailure: true} }

	count := func(op string) int {
		attempts := 0
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			attempts++
			return errors.New("down")
		}, always)
		return attempts
	}
	if got := count(OperationNATSPublish); got != 4 {
		t.Fatalf("expected 4 publish attempts, got %d", got)
	}
	if got := count(OperationOllamaTags); got != 2 {
		t.Fatalf("expected fallback of 2 attempts, got %d", got)
	}

	p := exec.Policy(OperationNATSPublish)
	if p.InitialBackoff != time.Millisecond || p.Burst != 1 {
		t.Fatalf("expected unset fields to inherit, got %+v", p)
	}
}

func TestOperationPolicyBreakerThreshold(t *testing.T) {
	exec := NewExecutor(Config{RetryMaxAttempts: 1, BreakerEnabled: true, BreakerMinRequests: 100})
	exec.SetPolicy(OperationAnthropic, Policy{BreakerMinRequests: 1, BreakerFailureRatio: 1, BreakerOpenTimeout: time.Minute})
	record := func(error) ErrorClassification { return ErrorClassification{RecordFailure: true} }

	_ = exec.Execute(context.Background(), OperationAnthropic, func(context.Context) error { return errors.New("500") }, record)
	err := exec.Execute(context.Background(), OperationAnthropic, func(context.Context) error { return nil }, record)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected breaker open after one failure, got %v", err)
	}

	_ = exec.Execute(context.Background(), OperationGemini, func(context.Context) error { return errors.New("500") }, record)
	if err := exec.Execute(context.Background(), OperationGemini, func(context.Context) error { return nil }, record); err != nil {
		t.Fatalf("fallback breaker must stay closed, got %v", err)
	}
}

func TestLimitOperationKeepsPolicy(t *testing.T) {
	exec := NewExecutor(DefaultConfig())
	exec.LimitOperation(OperationGemini, 15, 1)

	p := exec.Policy(OperationGemini)
	if p.RequestsPerMinute != 15 || p.MaxAttempts != ModelCallPolicy().MaxAttempts || p.BreakerMinRequests != ModelCallPolicy().BreakerMinRequests {
		t.Fatalf("expected model policy with a rate limit, got %+v", p)
	}
}
