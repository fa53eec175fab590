package resilience

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

func TestBreakerInitialState(t *testing.T) {
	b := New(DefaultConfig())
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(CaptureConfig(3, time.Hour))

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenThenClosed(t *testing.T) {
	b := New(CaptureConfig(1, time.Millisecond))
	b.Failure()

	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed after one good frame", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 3})
	b.Failure()

	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()

	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := New(CaptureConfig(1, time.Hour))
	b.Failure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New(CaptureConfig(3, time.Hour))

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := New(CaptureConfig(1, time.Hour))

	frame, err := ExecuteWithResult(b, func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	})
	if err != nil || frame == nil {
		t.Fatalf("ExecuteWithResult = (%v, %v)", frame, err)
	}

	captureErr := errors.New("no display")
	if _, err := ExecuteWithResult(b, func() (image.Image, error) { return nil, captureErr }); !errors.Is(err, captureErr) {
		t.Errorf("err = %v, want capture error", err)
	}

	calls := 0
	_, err = ExecuteWithResult(b, func() (image.Image, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, ErrOpen) || calls != 0 {
		t.Errorf("open breaker should skip the call: err=%v calls=%d", err, calls)
	}
}

func TestExecute(t *testing.T) {
	b := New(CaptureConfig(2, time.Second))

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute success = %v, want nil", err)
	}
	testErr := errors.New("test error")
	if err := b.Execute(func() error { return testErr }); err != testErr {
		t.Errorf("Execute failure = %v, want %v", err, testErr)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []State
	b := New(CaptureConfig(1, time.Millisecond))
	b.WithHook(func(_, to State) {
		transitions = append(transitions, to)
	})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()
	b.Success()

	want := []State{Open, HalfOpen, Closed}
	if len(transitions) != len(want) {
		t.Fatalf("got %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New(Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()

	_ = b.State()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", cfg.Threshold, DefaultThreshold)
	}
	if cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want %v", cfg.ResetTimeout, DefaultResetTimeout)
	}
	if cfg.HalfOpenSuccesses != 1 {
		t.Errorf("HalfOpenSuccesses = %d, want 1", cfg.HalfOpenSuccesses)
	}
	if cfg.Name != "default" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
}
