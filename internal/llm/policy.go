package llm

import (
	"context"
	"time"
)

// ReconnectPolicy controls how the transport re-establishes a dropped
// stream. The delay before the n-th consecutive attempt is
// min(InitialDelay * BackoffMultiplier^(n-1), MaxDelay).
type ReconnectPolicy struct {
	RetryOnDisconnect      bool
	RetryInitialConnection bool
	InitialDelay           time.Duration
	BackoffMultiplier      float64
	MaxDelay               time.Duration

	// MaxRetries bounds consecutive reconnect attempts. Zero retries forever.
	MaxRetries int
}

// DefaultReconnectPolicy is shared by every backend.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		RetryOnDisconnect:      true,
		RetryInitialConnection: false,
		InitialDelay:           time.Second,
		BackoffMultiplier:      2,
		MaxDelay:               60 * time.Second,
	}
}

func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	if d <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && float64(d)*mult >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
		d = time.Duration(float64(d) * mult)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p ReconnectPolicy) exhausted(attempt int) bool {
	return p.MaxRetries > 0 && attempt > p.MaxRetries
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
