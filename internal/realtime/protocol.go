// Package realtime contains the websocket-facing half of the seat-hold
// coordinator: the message protocol, per-connection sessions, the hub
// that tracks showtime groups and fans out events, the cancellable
// disconnect grace timers, and an optional Redis relay for multi
// instance deployments.
package realtime

import (
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/model"
)

// Inbound message types.
const (
    MsgJoinShowtime   = "join-showtime"
    MsgSelectSeat     = "select-seat"
    MsgDeselectSeat   = "deselect-seat"
    MsgClearAllSeats  = "clear-all-seats"
    MsgExtendSeatHold = "extend-seat-hold"
    MsgConfirmBooking = "confirm-booking"
    MsgGetSeatsState  = "get-seats-state"
    MsgGetStatistics  = "get-seat-statistics"
)

// Outbound event types.
const (
    EvtSeatsState       = "seats-state"
    EvtSeatSelected     = "seat-selected"
    EvtSeatDeselected   = "seat-deselected"
    EvtSeatConflict     = "seat-conflict"
    EvtSeatsCleared     = "seats-cleared"
    EvtSeatHoldExtended = "seat-hold-extended"
    EvtBookingConfirmed = "booking-confirmed"
    EvtSeatStatistics   = "seat-statistics"
    EvtError            = "error"
)

// Structured error codes.  Clients use the code to pick
// retry behavior: a conflict means someone else was faster, invalid
// input means the request itself was malformed, a persistence failure
// means the server side is unavailable.
const (
    CodeAuthentication = "AUTHENTICATION_ERROR"
    CodeInvalidInput   = "INVALID_INPUT"
    CodeSeatConflict   = "SEAT_CONFLICT"
    CodeNotHolder      = "NOT_HOLDER"
    CodePersistence    = "PERSISTENCE_FAILURE"
    CodeInternal       = "INTERNAL_ERROR"
)

// Conflict reasons carried by seat-conflict events.
const (
    ReasonAlreadyHeld   = "SEAT_ALREADY_HELD"
    ReasonAlreadyBooked = "SEAT_ALREADY_BOOKED"
    ReasonInvalidSeat   = "INVALID_SEAT"
    ReasonNotHeld       = "SEAT_NOT_HELD"
)

// Inbound is the envelope of every client message.  Identifier fields
// are raw JSON because loosely-typed clients send them as strings,
// numbers or worse; they are normalized (or rejected) before any of
// them reaches the hold store.
type Inbound struct {
    Type        string            `json:"type"`
    ShowtimeID  json.RawMessage   `json:"showtimeId,omitempty"`
    SeatID      json.RawMessage   `json:"seatId,omitempty"`
    SeatIDs     []json.RawMessage `json:"seatIds,omitempty"`
    TotalAmount uint32            `json:"totalAmount,omitempty"`
}

// Event is the envelope of every server-to-client message.  Only the
// fields relevant to the given type are populated.
type Event struct {
    Type       string              `json:"type"`
    ShowtimeID uint64              `json:"showtimeId,omitempty"`
    SeatID     string              `json:"seatId,omitempty"`
    UserID     uint64              `json:"userId,omitempty"`
    ExpiresAt  string              `json:"expiresAt,omitempty"`
    Reason     string              `json:"reason,omitempty"`
    Code       string              `json:"code,omitempty"`
    Message    string              `json:"message,omitempty"`
    BookingID  uint64              `json:"bookingId,omitempty"`
    Released   int                 `json:"released,omitempty"`
    Seats      []model.SeatStatus  `json:"seats,omitempty"`
    Statistics []ShowtimeStatistic `json:"statistics,omitempty"`
}

// ShowtimeStatistic summarizes live activity on one showtime.
type ShowtimeStatistic struct {
    ShowtimeID uint64 `json:"showtimeId"`
    Viewers    int    `json:"viewers"`
    HeldSeats  int    `json:"heldSeats"`
}

// ErrBadIdentifier is returned when an inbound identifier does not
// normalize cleanly.
var ErrBadIdentifier = errors.New("bad identifier")

// NormalizeShowID accepts a showtime identifier as a JSON number or a
// numeric string and returns the canonical uint64 form.  Anything else
// (null, objects, empty or non-numeric strings) is rejected.
func NormalizeShowID(raw json.RawMessage) (uint64, error) {
    if len(raw) == 0 {
        return 0, fmt.Errorf("%w: missing showtime id", ErrBadIdentifier)
    }
    var n uint64
    if err := json.Unmarshal(raw, &n); err == nil {
        if n == 0 {
            return 0, fmt.Errorf("%w: showtime id must be positive", ErrBadIdentifier)
        }
        return n, nil
    }
    var s string
    if err := json.Unmarshal(raw, &s); err == nil {
        n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
        if err != nil || n == 0 {
            return 0, fmt.Errorf("%w: showtime id %q is not numeric", ErrBadIdentifier, s)
        }
        return n, nil
    }
    return 0, fmt.Errorf("%w: showtime id has unsupported type", ErrBadIdentifier)
}

// NormalizeSeatID accepts a seat identifier as a JSON string and
// returns the trimmed label.  Empty strings and the literal markers
// produced by malformed client state ("undefined", "null") are
// rejected, as is any non-string value.
func NormalizeSeatID(raw json.RawMessage) (string, error) {
    if len(raw) == 0 {
        return "", fmt.Errorf("%w: missing seat id", ErrBadIdentifier)
    }
    var s string
    if err := json.Unmarshal(raw, &s); err != nil {
        return "", fmt.Errorf("%w: seat id has unsupported type", ErrBadIdentifier)
    }
    s = strings.TrimSpace(s)
    switch s {
    case "", "undefined", "null":
        return "", fmt.Errorf("%w: seat id %q", ErrBadIdentifier, s)
    }
    return s, nil
}

// snapshotEvent builds a full seats-state event.
func snapshotEvent(showID uint64, seats []model.SeatStatus) Event {
    return Event{Type: EvtSeatsState, ShowtimeID: showID, Seats: seats}
}

// errorEvent builds a structured error event.
func errorEvent(code, message string) Event {
    return Event{Type: EvtError, Code: code, Message: message}
}

// conflictEvent builds a targeted seat-conflict notice.
func conflictEvent(showID uint64, seatID, reason string) Event {
    return Event{Type: EvtSeatConflict, ShowtimeID: showID, SeatID: seatID, Reason: reason}
}

// formatExpiry renders a hold deadline for the wire.
func formatExpiry(t time.Time) string {
    return t.UTC().Format(time.RFC3339)
}
