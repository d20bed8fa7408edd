package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type flakyRelay struct {
	calls  atomic.Int32
	cancel context.CancelFunc
	failN  int32
}

func (f *flakyRelay) Run(ctx context.Context) error {
	n := f.calls.Add(1)
	if n > f.failN {
		f.cancel()
		<-ctx.Done()
		return nil
	}
	return errors.New("connection reset")
}

func TestRunEventRelayReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := &flakyRelay{cancel: cancel, failN: 3}

	done := make(chan error, 1)
	go func() {
		done <- RunEventRelay(ctx, relay, RelayBackoff{Initial: time.Millisecond, Max: 4 * time.Millisecond}, zap.NewNop())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop did not stop")
	}
	if got := relay.calls.Load(); got != 4 {
		t.Fatalf("runs = %d, want 4", got)
	}
}

type closingRelay struct {
	calls  atomic.Int32
	cancel context.CancelFunc
}

func (c *closingRelay) Run(ctx context.Context) error {
	if c.calls.Add(1) == 2 {
		c.cancel()
	}
	return nil
}

func TestRunEventRelayRetriesCleanClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := &closingRelay{cancel: cancel}

	err := RunEventRelay(ctx, relay, RelayBackoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := relay.calls.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestRelayBackoffPolicyIsBounded(t *testing.T) {
	policy := RelayBackoff{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond}.policy()
	policy.Reset()
	for i := 0; i < 10; i++ {
		// randomization may stretch a delay by half of the interval
		if d := policy.NextBackOff(); d <= 0 || d > 60*time.Millisecond {
			t.Fatalf("delay %d = %v outside bounds", i, d)
		}
	}
}

func TestRunEventRelayNilRelay(t *testing.T) {
	if err := RunEventRelay(context.Background(), nil, DefaultRelayBackoff, zap.NewNop()); err != nil {
		t.Fatalf("nil relay: %v", err)
	}
}
