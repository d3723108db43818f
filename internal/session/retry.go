package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/internal/identity"
)

// RetryPolicy bounds the provider reconnection procedure: a fixed attempt
// budget with exponentially growing delays and no jitter.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget. The counter persists across
	// operations and only resets when the provider connection is restored.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the wait before the first attempt.
	// Default: 2s
	InitialDelay time.Duration

	// Multiplier grows the delay between attempts.
	// Default: 1.5
	Multiplier float64
}

// ApplyDefaults applies default values to unset policy fields.
func (p *RetryPolicy) ApplyDefaults() {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.Multiplier == 0 {
		p.Multiplier = 1.5
	}
}

// newSchedule builds the deterministic delay sequence for one exhaustion
// cycle: InitialDelay, then ×Multiplier per attempt.
func (p RetryPolicy) newSchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	b.MaxInterval = time.Hour
	return b
}

// retryState tracks the attempt budget across operations.
type retryState struct {
	attempts int
	lastErr  error
	schedule *backoff.ExponentialBackOff
}

// RetryAuth runs the bounded reconnection procedure: it waits out the next
// scheduled delay and re-runs provider initialization, up to the policy's
// attempt budget. The budget is shared across calls; a successful attempt
// resets it. When the budget is exhausted the user is notified and
// ErrRetryExhausted is returned.
func (m *Manager) RetryAuth(ctx context.Context) error {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()

	for m.retry.attempts < m.cfg.Retry.MaxAttempts {
		delay := m.retry.schedule.NextBackOff()
		m.retry.attempts++

		log.Info().
			Int("attempt", m.retry.attempts).
			Dur("delay", delay).
			Msg("retrying provider connection")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		err := m.provider.ConfigurePersistence(ctx)
		if err == nil {
			m.resetRetryLocked()
			return nil
		}

		m.retry.lastErr = err
		if !identity.Retryable(err) {
			return err
		}
	}

	m.notify(Notice{Kind: KindError, Message: msgRetryExhausted})

	if m.retry.lastErr != nil {
		return fmt.Errorf("%w: %v", ErrRetryExhausted, m.retry.lastErr)
	}
	return ErrRetryExhausted
}

// resetRetry restores the full attempt budget and delay schedule.
func (m *Manager) resetRetry() {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()
	m.resetRetryLocked()
}

func (m *Manager) resetRetryLocked() {
	m.retry.attempts = 0
	m.retry.lastErr = nil
	m.retry.schedule = m.cfg.Retry.newSchedule()
}
