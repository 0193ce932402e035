package hold

import (
    "context"
    "sort"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/model"
)

// SnapshotSource produces full, point-in-time seat maps for a show by
// merging the hall's seat catalog, the in-memory holds, and the
// confirmed bookings from the durable store.  The confirmed set is
// loaded from the database once per show and kept current by the
// booking finalizer, so subsequent snapshots are served from memory.
//
// A durable-store failure is surfaced to the caller; it is never
// silently treated as "all seats available".
type SnapshotSource struct {
    store     *Store
    catalog   *Catalog
    confirmed ConfirmedSource
}

// NewSnapshotSource builds a snapshot source over the store and the
// durable-store accessors.
func NewSnapshotSource(store *Store, catalog *Catalog, confirmed ConfirmedSource) *SnapshotSource {
    return &SnapshotSource{store: store, catalog: catalog, confirmed: confirmed}
}

// Snapshot returns one status row per seat of the show, ordered by seat
// label.  Two successive calls with no intervening mutation return
// identical snapshots.
func (s *SnapshotSource) Snapshot(ctx context.Context, showID uint64) ([]model.SeatStatus, error) {
    labels, err := s.catalog.Labels(ctx, showID)
    if err != nil {
        return nil, err
    }

    confirmedSeats, seeded := s.store.ConfirmedSeats(showID)
    if !seeded {
        confirmedSeats, err = s.confirmed.ConfirmedSeatLabels(ctx, showID)
        if err != nil {
            return nil, err
        }
        s.store.SeedConfirmed(showID, confirmedSeats)
    }
    confirmed := make(map[string]struct{}, len(confirmedSeats))
    for _, l := range confirmedSeats {
        confirmed[l] = struct{}{}
    }

    held := make(map[string]model.SeatHold)
    for _, h := range s.store.HoldsForShow(showID) {
        held[h.Key.SeatID] = h
    }

    out := make([]model.SeatStatus, 0, len(labels))
    for _, label := range labels {
        st := model.SeatStatus{SeatID: label, State: model.SeatAvailable}
        if _, ok := confirmed[label]; ok {
            st.State = model.SeatConfirmed
        } else if h, ok := held[label]; ok {
            holder := h.UserID
            exp := h.ExpiresAt.UTC().Format(time.RFC3339)
            st.State = model.SeatHeld
            st.HolderID = &holder
            st.ExpiresAt = &exp
        }
        out = append(out, st)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
    return out, nil
}
