package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noWait makes Retry skip its backoff sleeps and records requested delays.
func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := after
	after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	t.Cleanup(func() { after = orig })
	return &waits
}

func TestRetry(t *testing.T) {
	transient := errors.New("transient")
	rejected := errors.New("rejected")

	tests := []struct {
		name      string
		attempts  int
		results   []error // per call; the last one repeats
		wantCalls int
		wantErr   error
		wantWaits int
	}{
		{"first call succeeds", 3, []error{nil}, 1, nil, 0},
		{"second call succeeds", 3, []error{transient, nil}, 2, nil, 1},
		{"all calls fail", 3, []error{transient}, 3, transient, 2},
		{"single attempt", 1, []error{transient}, 1, transient, 0},
		{"permanent stops at once", 5, []error{Permanent(rejected)}, 1, rejected, 0},
		{"permanent after transient", 5, []error{transient, Permanent(rejected)}, 2, rejected, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waits := noWait(t)
			calls := 0
			err := Retry(context.Background(), tt.attempts, func() error {
				i := min(calls, len(tt.results)-1)
				calls++
				return tt.results[i]
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(*waits) != tt.wantWaits {
				t.Errorf("waits = %d, want %d", len(*waits), tt.wantWaits)
			}
		})
	}
}

func TestRetry_PermanentIsUnwrapped(t *testing.T) {
	noWait(t)
	rejected := errors.New("rejected")
	err := Retry(context.Background(), 3, func() error { return Permanent(rejected) })
	if err != rejected { //nolint:errorlint // identity is the point
		t.Errorf("err = %#v, want the bare rejection", err)
	}
}

func TestRetry_CancelledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 3, func() error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	failure := errors.New("fail")
	calls := 0
	err := Retry(ctx, 10, func() error {
		calls++
		return failure
	})
	if calls < 1 || calls >= 10 {
		t.Errorf("calls = %d, want between 1 and 9", calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, failure) {
		t.Errorf("err = %v, want deadline and last failure", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		{0, 250 * time.Millisecond, 500 * time.Millisecond},
		{1, 500 * time.Millisecond, time.Second},
		{2, time.Second, 2 * time.Second},
		{10, maxDelay / 2, maxDelay},
		{62, maxDelay / 2, maxDelay},
	}
	for _, tt := range tests {
		for range 20 {
			d := backoffDelay(tt.attempt)
			if d < tt.lo || d >= tt.hi {
				t.Fatalf("backoffDelay(%d) = %v, want [%v, %v)", tt.attempt, d, tt.lo, tt.hi)
			}
		}
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}
