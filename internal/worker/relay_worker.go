package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var errRelayClosed = errors.New("event relay closed")

// Relay is a long-running subscription that returns when its connection
// breaks or ctx ends.
type Relay interface {
	Run(ctx context.Context) error
}

// RelayBackoff bounds the delay between reconnect attempts.
type RelayBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultRelayBackoff is used when main does not override it.
var DefaultRelayBackoff = RelayBackoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}

func (b RelayBackoff) policy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.Initial
	policy.MaxInterval = b.Max
	return policy
}

// RunEventRelay keeps relay subscribed until ctx ends, reconnecting with
// exponential backoff. A run that stayed up longer than the maximum delay
// starts the backoff over. Events published while disconnected are lost.
func RunEventRelay(ctx context.Context, relay Relay, cfg RelayBackoff, logger *zap.Logger) error {
	if relay == nil {
		return nil
	}
	policy := cfg.policy()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		started := time.Now()
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if time.Since(started) > cfg.Max {
			policy.Reset()
		}
		if err == nil {
			err = errRelayClosed
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Warn("event relay disconnected; reconnecting", zap.Error(err), zap.Duration("delay", delay))
		}),
	)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
