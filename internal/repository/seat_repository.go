package repository // repository defines data access for seats

import (
    "context"      // context allows query cancellation and timeouts
    "database/sql" // sql provides DB primitives
)

// SeatRepo provides read access to the seat inventory.  The live
// coordinator treats a seat as an identifier with a lifecycle state;
// the only inventory question it asks is "which seat labels exist in
// this show's hall".  Labels concatenate row and number ("A1") and are
// the canonical seat identifiers on the wire.
type SeatRepo struct {
    db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
    return &SeatRepo{db: db}
}

// SeatLabels returns the labels of every active seat in the show's
// hall, ordered by row and number.  It returns ErrShowNotFound when the
// show does not exist, which the protocol layer reports as invalid
// input rather than an empty seat map.
func (r *SeatRepo) SeatLabels(ctx context.Context, showID uint64) ([]string, error) {
    const q = `SELECT CONCAT(s.row_label, s.seat_number)
               FROM seats s
               JOIN shows sh ON sh.hall_id = s.hall_id
               WHERE sh.id = ? AND s.is_active = 1
               ORDER BY s.row_label, s.seat_number`
    rows, err := r.db.QueryContext(ctx, q, showID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var labels []string
    for rows.Next() {
        var label string
        if err := rows.Scan(&label); err != nil {
            return nil, err
        }
        labels = append(labels, label)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    if len(labels) == 0 {
        // Distinguish "empty hall" from "no such show".
        var exists bool
        const check = `SELECT EXISTS(SELECT 1 FROM shows WHERE id = ?)`
        if err := r.db.QueryRowContext(ctx, check, showID).Scan(&exists); err != nil {
            return nil, err
        }
        if !exists {
            return nil, ErrShowNotFound
        }
    }
    return labels, nil
}
