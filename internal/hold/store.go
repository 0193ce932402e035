// Package hold implements the in-memory seat-hold coordinator: the hold
// store itself, the acquisition gatekeeper (resolver), the expiration
// sweeper and the snapshot source.  The store is the single source of
// truth for in-flight holds; everything durable (confirmed bookings,
// seat catalogs) is read through narrow interfaces implemented by the
// repository layer.
package hold

import (
    "sync"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/model"
)

// AcquireResult enumerates the outcomes of Store.Acquire.
type AcquireResult int

const (
    AcquireOK         AcquireResult = iota // seat was free; hold created
    AcquireAlreadyOwn                      // caller already holds the seat; hold rebound
    AcquireHeld                            // another user holds the seat
    AcquireConfirmed                       // seat belongs to a committed booking
)

// ReleaseResult enumerates the outcomes of Store.Release.  NotHolder and
// NotHeld are distinct so that callers can tell "you tried to release
// someone else's seat" apart from "there was nothing to release".
type ReleaseResult int

const (
    Released  ReleaseResult = iota // hold removed
    NotHolder                      // hold exists but belongs to another user
    NotHeld                        // no hold on this seat
)

// ExtendResult enumerates the outcomes of Store.Extend.
type ExtendResult int

const (
    Extended        ExtendResult = iota // expiry refreshed
    ExtendNotHolder                     // hold belongs to another user
    ExtendNotHeld                       // no hold on this seat
)

// Store is the authoritative table of per-seat transient state for all
// showtimes currently being viewed.  All mutating operations are atomic
// compare-and-set transitions serialized by a single mutex; hold volumes
// are small enough that one global lock beats fine-grained per-seat
// locking.  No store operation performs I/O; confirmed-booking
// information reaches the store through SeedConfirmed/MarkConfirmed.
type Store struct {
    mu sync.Mutex

    // holds is the primary index: show id -> seat label -> hold.
    holds map[uint64]map[string]*model.SeatHold

    // confirmed caches seats referenced by committed bookings, per show.
    // A seat present here can never be held again.
    confirmed map[uint64]map[string]struct{}

    // seeded records which shows have had their confirmed set loaded
    // from the durable store, so snapshots can stay in-memory afterwards.
    seeded map[uint64]bool

    // now is replaceable in tests.
    now func() time.Time
}

// NewStore returns an empty hold store.
func NewStore() *Store {
    return &Store{
        holds:     make(map[uint64]map[string]*model.SeatHold),
        confirmed: make(map[uint64]map[string]struct{}),
        seeded:    make(map[uint64]bool),
        now:       time.Now,
    }
}

// Acquire attempts to create a hold on the seat for the given user and
// connection.  Exactly one of two concurrent callers for the same free
// seat wins; the loser observes AcquireHeld, never a silent overwrite.
// A repeat acquire by the current holder succeeds idempotently: the hold
// is rebound to the new connection and its expiry is refreshed, but
// never shortened.  The returned hold is a copy and is only meaningful
// for AcquireOK and AcquireAlreadyOwn.
func (s *Store) Acquire(key model.SeatKey, userID uint64, connID string, ttl time.Duration) (model.SeatHold, AcquireResult) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.isConfirmedLocked(key) {
        return model.SeatHold{}, AcquireConfirmed
    }
    now := s.now().UTC()
    if cur, ok := s.holdLocked(key); ok {
        if cur.Expired(now) {
            // Reclaim lazily rather than waiting for the sweeper.
            s.removeLocked(key)
        } else if cur.UserID != userID {
            return model.SeatHold{}, AcquireHeld
        } else {
            cur.ConnID = connID
            if exp := now.Add(ttl); exp.After(cur.ExpiresAt) {
                cur.ExpiresAt = exp
            }
            return *cur, AcquireAlreadyOwn
        }
    }
    h := &model.SeatHold{
        Key:        key,
        UserID:     userID,
        ConnID:     connID,
        AcquiredAt: now,
        ExpiresAt:  now.Add(ttl),
    }
    byShow := s.holds[key.ShowID]
    if byShow == nil {
        byShow = make(map[string]*model.SeatHold)
        s.holds[key.ShowID] = byShow
    }
    byShow[key.SeatID] = h
    return *h, AcquireOK
}

// Release removes the hold on the seat if (and only if) it is owned by
// the given user.
func (s *Store) Release(key model.SeatKey, userID uint64) ReleaseResult {
    s.mu.Lock()
    defer s.mu.Unlock()

    cur, ok := s.holdLocked(key)
    if !ok || cur.Expired(s.now().UTC()) {
        return NotHeld
    }
    if cur.UserID != userID {
        return NotHolder
    }
    s.removeLocked(key)
    return Released
}

// Extend refreshes the expiry of the caller's hold.  The new expiry is
// max(current expiry, now+ttl): an extension never shortens a hold.  The
// returned time is only meaningful when the result is Extended.
func (s *Store) Extend(key model.SeatKey, userID uint64, ttl time.Duration) (time.Time, ExtendResult) {
    s.mu.Lock()
    defer s.mu.Unlock()

    cur, ok := s.holdLocked(key)
    now := s.now().UTC()
    if !ok || cur.Expired(now) {
        return time.Time{}, ExtendNotHeld
    }
    if cur.UserID != userID {
        return time.Time{}, ExtendNotHolder
    }
    if exp := now.Add(ttl); exp.After(cur.ExpiresAt) {
        cur.ExpiresAt = exp
    }
    return cur.ExpiresAt, Extended
}

// ReleaseUserShow removes every hold the user owns within one show and
// returns the released seat labels.  Used for the explicit clear-all
// operation.
func (s *Store) ReleaseUserShow(userID, showID uint64) []string {
    s.mu.Lock()
    defer s.mu.Unlock()

    var released []string
    for seatID, h := range s.holds[showID] {
        if h.UserID == userID {
            released = append(released, seatID)
            s.removeLocked(model.SeatKey{ShowID: showID, SeatID: seatID})
        }
    }
    return released
}

// ReleaseConn removes every hold that is still bound to the given
// (user, connection) pair and returns the released seats grouped by
// show.  Disconnect reconciliation uses this: holds that the same user
// already rebound to a newer connection survive.
func (s *Store) ReleaseConn(userID uint64, connID string) map[uint64][]string {
    s.mu.Lock()
    defer s.mu.Unlock()

    released := make(map[uint64][]string)
    for showID, byShow := range s.holds {
        for seatID, h := range byShow {
            if h.UserID == userID && h.ConnID == connID {
                released[showID] = append(released[showID], seatID)
                s.removeLocked(model.SeatKey{ShowID: showID, SeatID: seatID})
            }
        }
    }
    return released
}

// ShowsForConn returns every show in which the (user, connection) pair
// still owns holds.  Disconnect reconciliation schedules one grace
// release per returned show, covering holds the session took on
// showtimes it never joined or had already left.
func (s *Store) ShowsForConn(userID uint64, connID string) []uint64 {
    s.mu.Lock()
    defer s.mu.Unlock()

    var shows []uint64
    for showID, byShow := range s.holds {
        for _, h := range byShow {
            if h.UserID == userID && h.ConnID == connID {
                shows = append(shows, showID)
                break
            }
        }
    }
    return shows
}

// RebindConn transfers ownership of the user's holds within a show to a
// new connection and reports how many holds were rebound.  Called when a
// user rejoins a showtime after a reconnect so that the pending release
// of the dead connection no longer covers these holds.
func (s *Store) RebindConn(userID, showID uint64, connID string) int {
    s.mu.Lock()
    defer s.mu.Unlock()

    n := 0
    for _, h := range s.holds[showID] {
        if h.UserID == userID {
            h.ConnID = connID
            n++
        }
    }
    return n
}

// SweepExpired removes every hold whose deadline has passed and returns
// the reclaimed seats grouped by show.  Expiry is re-validated per hold
// under the lock at the moment of removal, so a concurrent Extend that
// completed first always wins.  When the table is empty the call returns
// immediately without scanning anything.
func (s *Store) SweepExpired(now time.Time) map[uint64][]string {
    s.mu.Lock()
    defer s.mu.Unlock()

    if len(s.holds) == 0 {
        return nil
    }
    now = now.UTC()
    reclaimed := make(map[uint64][]string)
    for showID, byShow := range s.holds {
        for seatID, h := range byShow {
            if h.Expired(now) {
                reclaimed[showID] = append(reclaimed[showID], seatID)
                s.removeLocked(model.SeatKey{ShowID: showID, SeatID: seatID})
            }
        }
    }
    if len(reclaimed) == 0 {
        return nil
    }
    return reclaimed
}

// MarkConfirmed promotes the given seats to CONFIRMED: any holds on them
// are dropped and the seats become permanently unavailable for holding.
// Called by the booking finalizer after the durable write committed.
func (s *Store) MarkConfirmed(showID uint64, seatIDs []string) {
    s.mu.Lock()
    defer s.mu.Unlock()

    set := s.confirmed[showID]
    if set == nil {
        set = make(map[string]struct{})
        s.confirmed[showID] = set
    }
    for _, seatID := range seatIDs {
        set[seatID] = struct{}{}
        s.removeLocked(model.SeatKey{ShowID: showID, SeatID: seatID})
    }
}

// SeedConfirmed merges confirmed seats loaded from the durable store and
// marks the show as seeded so subsequent snapshots can be served from
// memory.
func (s *Store) SeedConfirmed(showID uint64, seatIDs []string) {
    s.mu.Lock()
    defer s.mu.Unlock()

    set := s.confirmed[showID]
    if set == nil {
        set = make(map[string]struct{})
        s.confirmed[showID] = set
    }
    for _, seatID := range seatIDs {
        set[seatID] = struct{}{}
    }
    s.seeded[showID] = true
}

// ConfirmedSeats returns the cached confirmed seats for a show and
// whether the cache has been seeded from the durable store.
func (s *Store) ConfirmedSeats(showID uint64) ([]string, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if !s.seeded[showID] {
        return nil, false
    }
    set := s.confirmed[showID]
    seats := make([]string, 0, len(set))
    for seatID := range set {
        seats = append(seats, seatID)
    }
    return seats, true
}

// IsConfirmed reports whether the seat is cached as confirmed.  A false
// answer is not authoritative unless the show has been seeded; the
// resolver re-checks the durable store in that case.
func (s *Store) IsConfirmed(key model.SeatKey) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.isConfirmedLocked(key)
}

// State returns the derived state of a seat together with a copy of its
// hold when HELD.
func (s *Store) State(key model.SeatKey) (model.SeatState, *model.SeatHold) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.isConfirmedLocked(key) {
        return model.SeatConfirmed, nil
    }
    if h, ok := s.holdLocked(key); ok && !h.Expired(s.now().UTC()) {
        c := *h
        return model.SeatHeld, &c
    }
    return model.SeatAvailable, nil
}

// HoldsForShow returns copies of every unexpired hold within a show.
func (s *Store) HoldsForShow(showID uint64) []model.SeatHold {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now().UTC()
    var out []model.SeatHold
    for _, h := range s.holds[showID] {
        if !h.Expired(now) {
            out = append(out, *h)
        }
    }
    return out
}

// ValidateHeld checks that every given seat is currently held by the
// user.  On failure it returns the first offending seat label; the
// booking finalizer rejects the whole batch in that case.
func (s *Store) ValidateHeld(showID, userID uint64, seatIDs []string) (string, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now().UTC()
    byShow := s.holds[showID]
    for _, seatID := range seatIDs {
        h, ok := byShow[seatID]
        if !ok || h.Expired(now) || h.UserID != userID {
            return seatID, false
        }
    }
    return "", true
}

// Stats returns the number of active holds per show.
func (s *Store) Stats() map[uint64]int {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now().UTC()
    stats := make(map[uint64]int, len(s.holds))
    for showID, byShow := range s.holds {
        n := 0
        for _, h := range byShow {
            if !h.Expired(now) {
                n++
            }
        }
        if n > 0 {
            stats[showID] = n
        }
    }
    return stats
}

func (s *Store) holdLocked(key model.SeatKey) (*model.SeatHold, bool) {
    h, ok := s.holds[key.ShowID][key.SeatID]
    return h, ok
}

func (s *Store) removeLocked(key model.SeatKey) {
    byShow := s.holds[key.ShowID]
    delete(byShow, key.SeatID)
    if len(byShow) == 0 {
        delete(s.holds, key.ShowID)
    }
}

func (s *Store) isConfirmedLocked(key model.SeatKey) bool {
    _, ok := s.confirmed[key.ShowID][key.SeatID]
    return ok
}
