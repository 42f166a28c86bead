// Package sweep expires stale donation intents in the background. A
// pending intent whose donor never completed the transfer would otherwise
// stay confirmable forever; the sweeper moves it to the terminal
// 'expired' status after a TTL, off the request-handling path.
package sweep

import (
	"context"
	"log"
	"time"
)

// IntentExpirer is the slice of the intent store the sweeper needs.
type IntentExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type Sweeper struct {
	Intents  IntentExpirer
	TTL      time.Duration
	Interval time.Duration
}

func New(intents IntentExpirer, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{Intents: intents, TTL: ttl, Interval: interval}
}

// Run sweeps on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.Intents.ExpireStale(ctx, time.Now().Add(-s.TTL))
	if err != nil {
		log.Println("Failed to expire stale intents:", err)
		return
	}
	if n > 0 {
		log.Printf("Expired %d stale donation intents", n)
	}
}
