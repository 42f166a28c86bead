package sweep

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeExpirer struct {
	calls   int
	cutoffs []time.Time
	err     error
}

func (f *fakeExpirer) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestSweepUsesTTLCutoff(t *testing.T) {
	f := &fakeExpirer{}
	s := New(f, 72*time.Hour, time.Hour)

	before := time.Now().Add(-s.TTL)
	s.sweep(context.Background())
	after := time.Now().Add(-s.TTL)

	if f.calls != 1 {
		t.Fatalf("expected one ExpireStale call, got %d", f.calls)
	}
	cutoff := f.cutoffs[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Fatalf("cutoff %v not within [%v, %v]", cutoff, before, after)
	}
}

func TestSweepSurvivesStoreError(t *testing.T) {
	f := &fakeExpirer{err: errors.New("db down")}
	s := New(f, time.Hour, time.Hour)

	s.sweep(context.Background())
	s.sweep(context.Background())

	if f.calls != 2 {
		t.Fatalf("a failing sweep must not stop subsequent sweeps, got %d calls", f.calls)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := &fakeExpirer{}
	s := New(f, time.Hour, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
	if f.calls == 0 {
		t.Fatal("expected at least one sweep before cancellation")
	}
}
