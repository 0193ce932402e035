package hold

import (
    "context"
    "sync"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/model"
)

// CatalogSource supplies the seat inventory of a show from the durable
// store.  The repository layer implements it; the resolver caches the
// result per show because hall layouts do not change while a show is
// being sold.
type CatalogSource interface {
    // SeatLabels returns every seat label in the show's hall.  It
    // returns repository.ErrShowNotFound for unknown shows.
    SeatLabels(ctx context.Context, showID uint64) ([]string, error)
}

// ConfirmedSource answers confirmed-booking questions from the durable
// store.  Confirmation is the final authority on a seat: it may have
// been written by another server instance or a non-real-time path, so
// the resolver re-checks it for seats that look free in memory.
type ConfirmedSource interface {
    IsSeatConfirmed(ctx context.Context, showID uint64, seatLabel string) (bool, error)
    ConfirmedSeatLabels(ctx context.Context, showID uint64) ([]string, error)
}

// Catalog memoizes show seat inventories.
type Catalog struct {
    src CatalogSource

    mu     sync.Mutex
    byShow map[uint64]map[string]struct{}
    labels map[uint64][]string
}

// NewCatalog wraps a CatalogSource with a per-show cache.
func NewCatalog(src CatalogSource) *Catalog {
    return &Catalog{
        src:    src,
        byShow: make(map[uint64]map[string]struct{}),
        labels: make(map[uint64][]string),
    }
}

// Labels returns the ordered seat labels of a show, loading them from
// the durable store on first access.
func (c *Catalog) Labels(ctx context.Context, showID uint64) ([]string, error) {
    c.mu.Lock()
    cached, ok := c.labels[showID]
    c.mu.Unlock()
    if ok {
        return cached, nil
    }
    labels, err := c.src.SeatLabels(ctx, showID)
    if err != nil {
        return nil, err
    }
    set := make(map[string]struct{}, len(labels))
    for _, l := range labels {
        set[l] = struct{}{}
    }
    c.mu.Lock()
    c.byShow[showID] = set
    c.labels[showID] = labels
    c.mu.Unlock()
    return labels, nil
}

// Exists reports whether the seat label belongs to the show's hall.
func (c *Catalog) Exists(ctx context.Context, key model.SeatKey) (bool, error) {
    c.mu.Lock()
    set, ok := c.byShow[key.ShowID]
    c.mu.Unlock()
    if !ok {
        if _, err := c.Labels(ctx, key.ShowID); err != nil {
            return false, err
        }
        c.mu.Lock()
        set = c.byShow[key.ShowID]
        c.mu.Unlock()
    }
    _, ok = set[key.SeatID]
    return ok, nil
}

// Outcome is the result of a resolved acquisition attempt.
type Outcome int

const (
    OutcomeAcquired    Outcome = iota // hold created (or re-owned by the same user)
    OutcomeHeld                       // SEAT_ALREADY_HELD: another session holds it
    OutcomeBooked                     // SEAT_ALREADY_BOOKED: a committed booking covers it
    OutcomeInvalidSeat                // INVALID_SEAT: not part of the show's hall
)

// Resolver is the gatekeeper in front of Store.Acquire.  It validates
// the seat against the show's hall layout, checks the in-memory hold
// state, and re-checks the durable store for a confirmed booking before
// letting the acquisition through.  The check-then-acquire sequence is
// racy across processes when hold state is not shared; within one
// process the store's compare-and-set makes it safe.
type Resolver struct {
    store     *Store
    catalog   *Catalog
    confirmed ConfirmedSource
}

// NewResolver builds a resolver over the given store and durable-store
// accessors.
func NewResolver(store *Store, catalog *Catalog, confirmed ConfirmedSource) *Resolver {
    return &Resolver{store: store, catalog: catalog, confirmed: confirmed}
}

// Acquire validates and executes a hold acquisition.  A non-nil error
// means the durable store could not be consulted; no outcome is implied
// and nothing was mutated.
func (r *Resolver) Acquire(ctx context.Context, key model.SeatKey, userID uint64, connID string, ttl time.Duration) (model.SeatHold, Outcome, error) {
    ok, err := r.catalog.Exists(ctx, key)
    if err != nil {
        return model.SeatHold{}, 0, err
    }
    if !ok {
        return model.SeatHold{}, OutcomeInvalidSeat, nil
    }

    // Cheap in-memory pre-checks before touching the database.
    switch state, h := r.store.State(key); state {
    case model.SeatConfirmed:
        return model.SeatHold{}, OutcomeBooked, nil
    case model.SeatHeld:
        if h.UserID != userID {
            return model.SeatHold{}, OutcomeHeld, nil
        }
        // The caller already holds it; fall through to the CAS which
        // rebinds the connection and refreshes the expiry.
    default:
        // Seat looks free in memory: the durable store has the final
        // word on confirmed bookings written outside this process.
        booked, err := r.confirmed.IsSeatConfirmed(ctx, key.ShowID, key.SeatID)
        if err != nil {
            return model.SeatHold{}, 0, err
        }
        if booked {
            r.store.MarkConfirmed(key.ShowID, []string{key.SeatID})
            return model.SeatHold{}, OutcomeBooked, nil
        }
    }

    h, res := r.store.Acquire(key, userID, connID, ttl)
    switch res {
    case AcquireOK, AcquireAlreadyOwn:
        return h, OutcomeAcquired, nil
    case AcquireConfirmed:
        return model.SeatHold{}, OutcomeBooked, nil
    default:
        // Lost the race against a concurrent acquire.
        return model.SeatHold{}, OutcomeHeld, nil
    }
}
