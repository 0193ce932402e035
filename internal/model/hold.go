package model

import "time"

// SeatState classifies a seat from the point of view of the live
// coordinator.  AVAILABLE and HELD are derived from the in-memory hold
// table; CONFIRMED is authoritative information that originates from a
// committed booking in the database.  A seat that is CONFIRMED never
// transitions back to HELD or AVAILABLE through this subsystem.
type SeatState string

const (
    SeatAvailable SeatState = "AVAILABLE" // no active hold, no confirmed booking
    SeatHeld      SeatState = "HELD"      // an unexpired hold exists
    SeatConfirmed SeatState = "CONFIRMED" // referenced by a committed booking
)

// SeatKey is the canonical identity of a seat within a showtime.  Show
// identifiers are numeric database keys; they are normalized from the
// transport representation (number or numeric string) at the protocol
// boundary.  Seat identifiers are opaque labels such as "A1" and are
// never empty.
type SeatKey struct {
    ShowID uint64 // shows.id of the showtime
    SeatID string // seat label within the hall
}

// SeatHold represents a temporary, exclusive claim on a seat by one
// session.  Holds live only in the hold store: they are created when a
// viewer selects a seat, refreshed on extension, and removed on release,
// expiry, disconnect reconciliation or booking confirmation.
//
// Fields:
//  Key        – seat identity the hold covers.
//  UserID     – authenticated user owning the hold.
//  ConnID     – websocket connection that created (or adopted) the hold.
//  AcquiredAt – when the hold was first taken.
//  ExpiresAt  – when the hold lapses unless extended; always strictly
//               after AcquiredAt and monotonically non-decreasing across
//               extensions.
type SeatHold struct {
    Key        SeatKey   // seat identity
    UserID     uint64    // holder user
    ConnID     string    // holder connection
    AcquiredAt time.Time // first acquisition time (UTC)
    ExpiresAt  time.Time // expiry deadline (UTC)
}

// Expired reports whether the hold's deadline has passed at the given
// instant.
func (h *SeatHold) Expired(now time.Time) bool {
    return !h.ExpiresAt.After(now)
}

// SeatStatus is one row of a seat map snapshot.  HolderID and ExpiresAt
// are only present for HELD seats.  Clients must treat every snapshot
// (and every delta) as the newest truth rather than diffing against
// assumed prior state.
type SeatStatus struct {
    SeatID    string    `json:"seatId"`              // seat label
    State     SeatState `json:"state"`               // AVAILABLE / HELD / CONFIRMED
    HolderID  *uint64   `json:"userId,omitempty"`    // holder for HELD seats
    ExpiresAt *string   `json:"expiresAt,omitempty"` // RFC3339 expiry for HELD seats
}
