// Package booking converts a set of currently-held seats into a
// durable, exclusive booking.  The whole operation is all-or-nothing:
// either every requested seat is held by the caller and one booking
// transaction commits covering all of them, or nothing changes and the
// caller keeps whatever holds it had.
package booking

import (
    "context"
    "errors"
    "fmt"
    "log"
    "sort"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/hold"
    "github.com/iliyamo/cinema-seat-live/internal/queue"
    "github.com/iliyamo/cinema-seat-live/internal/repository"
)

// Writer persists a confirmed booking.  Implemented by
// repository.BookingRepo with a single transaction covering the booking
// row and all of its seats.
type Writer interface {
    CreateBooking(ctx context.Context, rec *repository.BookingRecord, seatLabels []string) error
}

// Publisher emits the booking-confirmed event to the message broker.
// It is best-effort: a publish failure is logged but never fails a
// booking that already committed.
type Publisher func(ctx context.Context, ev queue.BookingConfirmedEvent) error

// ErrNoSeats is returned when the request contains no usable seat ids.
var ErrNoSeats = errors.New("no seats to confirm")

// NotHeldError reports the first requested seat that is not currently
// held by the caller.  The entire confirmation is rejected when any
// seat fails the check; no partial booking is ever created.
type NotHeldError struct {
    Seat string
}

func (e *NotHeldError) Error() string {
    return fmt.Sprintf("seat %s is not held by you", e.Seat)
}

// Finalizer performs the HELD -> CONFIRMED promotion.
type Finalizer struct {
    store   *hold.Store
    writer  Writer
    publish Publisher // nil disables event publishing
}

// NewFinalizer wires the finalizer.  publish may be nil.
func NewFinalizer(store *hold.Store, writer Writer, publish Publisher) *Finalizer {
    return &Finalizer{store: store, writer: writer, publish: publish}
}

// Confirm validates that every requested seat is held by the user,
// writes the booking in one durable transaction, and only then removes
// the holds and marks the seats confirmed.  If the durable write fails
// the holds are left untouched so the caller may retry within its
// remaining TTL.  The price total is opaque to this subsystem and is
// stored as given.
func (f *Finalizer) Confirm(ctx context.Context, showID uint64, seatIDs []string, userID uint64, totalCents uint32) (uint64, error) {
    seats := dedupe(seatIDs)
    if len(seats) == 0 {
        return 0, ErrNoSeats
    }

    if seat, ok := f.store.ValidateHeld(showID, userID, seats); !ok {
        return 0, &NotHeldError{Seat: seat}
    }

    rec := &repository.BookingRecord{
        UserID:           userID,
        ShowID:           showID,
        Status:           "CONFIRMED",
        TotalAmountCents: totalCents,
    }
    if err := f.writer.CreateBooking(ctx, rec, seats); err != nil {
        return 0, fmt.Errorf("create booking: %w", err)
    }

    // Durable write committed: promote the in-memory state.  The seats
    // become permanently unavailable for holding.
    f.store.MarkConfirmed(showID, seats)

    if f.publish != nil {
        ev := queue.BookingConfirmedEvent{
            BookingID:        rec.ID,
            UserID:           userID,
            ShowID:           showID,
            SeatLabels:       seats,
            TotalAmountCents: totalCents,
            ConfirmedAt:      time.Now().UTC().Format(time.RFC3339),
        }
        if err := f.publish(ctx, ev); err != nil {
            log.Printf("finalizer: publish booking=%d: %v", rec.ID, err)
        }
    }
    return rec.ID, nil
}

// dedupe drops duplicate seat ids while keeping the caller's order,
// then sorts for deterministic durable writes.
func dedupe(seatIDs []string) []string {
    seen := make(map[string]struct{}, len(seatIDs))
    out := make([]string, 0, len(seatIDs))
    for _, id := range seatIDs {
        if id == "" {
            continue
        }
        if _, ok := seen[id]; ok {
            continue
        }
        seen[id] = struct{}{}
        out = append(out, id)
    }
    sort.Strings(out)
    return out
}
