package hold

import (
    "context"
    "log"
    "time"
)

// Sweeper reclaims seats whose holder went silent without releasing:
// idle tabs, crashed clients, holds that simply ran out.  It runs on a
// fixed interval independent of any request and reports reclaimed seats
// per show through the onReclaim callback so the hub can broadcast the
// new state.  The store re-validates each hold's expiry under its lock
// at the moment of removal, so a concurrent extend that lands first
// always keeps the seat.
type Sweeper struct {
    store     *Store
    interval  time.Duration
    onReclaim func(showID uint64, seatIDs []string)
}

// NewSweeper builds a sweeper over the store.  The interval is expected
// to be in the 1–5 second range; onReclaim may not be nil.
func NewSweeper(store *Store, interval time.Duration, onReclaim func(showID uint64, seatIDs []string)) *Sweeper {
    if interval <= 0 {
        interval = 2 * time.Second
    }
    return &Sweeper{store: store, interval: interval, onReclaim: onReclaim}
}

// Run ticks until the context is cancelled.  Intended to run in its own
// goroutine; cancellation on shutdown leaves no dangling timers.
func (s *Sweeper) Run(ctx context.Context) {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            log.Printf("sweeper: stopped (%v)", ctx.Err())
            return
        case now := <-ticker.C:
            for showID, seats := range s.store.SweepExpired(now) {
                log.Printf("sweeper: show=%d reclaimed=%d", showID, len(seats))
                s.onReclaim(showID, seats)
            }
        }
    }
}
