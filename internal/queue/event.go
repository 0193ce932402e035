// Package queue defines message payloads exchanged over the message
// broker, together with the background consumer that processes them.
package queue

// BookingConfirmedEvent is published when the finalizer commits a
// booking.  It contains enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database.
type BookingConfirmedEvent struct {
    BookingID        uint64   `json:"booking_id"`
    UserID           uint64   `json:"user_id"`
    ShowID           uint64   `json:"show_id"`
    SeatLabels       []string `json:"seats"`
    TotalAmountCents uint32   `json:"total_amount_cents"`
    ConfirmedAt      string   `json:"confirmed_at"`
}
