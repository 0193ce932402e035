package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/go-sql-driver/mysql"
)

// BookingRepo provides access to confirmed bookings: the bookings table
// plus booking_seats linking each booking to the seats it covers.  A
// committed booking is the final authority on a seat; once a seat
// appears in one, the live coordinator treats it as permanently
// unavailable.  All timestamps are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingRecord mirrors the schema of the bookings table.
type BookingRecord struct {
    ID               uint64
    UserID           uint64
    ShowID           uint64
    Status           string
    TotalAmountCents uint32
}

// mysqlDuplicateEntry is the server error number for a unique key
// violation (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// ConfirmedSeatLabels returns the labels of every seat referenced by a
// confirmed booking for the show.  An empty result is valid (nothing
// booked yet).
func (r *BookingRepo) ConfirmedSeatLabels(ctx context.Context, showID uint64) ([]string, error) {
    const q = `SELECT CONCAT(s.row_label, s.seat_number)
               FROM booking_seats bs
               JOIN bookings b ON b.id = bs.booking_id
               JOIN seats s ON s.id = bs.seat_id
               WHERE b.show_id = ? AND b.status = 'CONFIRMED'`
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
    return labels, rows.Err()
}

// IsSeatConfirmed reports whether a confirmed booking already covers
// the seat label for this show.  The resolver calls this for seats that
// look free in memory, because a booking may have been committed by a
// process that never touched this instance's hold store.
func (r *BookingRepo) IsSeatConfirmed(ctx context.Context, showID uint64, seatLabel string) (bool, error) {
    const q = `SELECT EXISTS(
                 SELECT 1
                 FROM booking_seats bs
                 JOIN bookings b ON b.id = bs.booking_id
                 JOIN seats s ON s.id = bs.seat_id
                 WHERE b.show_id = ? AND b.status = 'CONFIRMED'
                   AND CONCAT(s.row_label, s.seat_number) = ?)`
    var exists bool
    if err := r.db.QueryRowContext(ctx, q, showID, seatLabel).Scan(&exists); err != nil {
        return false, err
    }
    return exists, nil
}

// CreateBooking inserts the booking row and one booking_seats row per
// seat label inside a single transaction.  Seat labels are resolved to
// seat ids against the show's hall within the same transaction; an
// unknown label aborts with ErrSeatUnknown.  A unique key violation on
// (show_id, seat_id) means a concurrent booking won the seat and
// surfaces as ErrConflict.  On success the generated booking ID is populated on the
// record.  Nothing is committed if any step fails.
func (r *BookingRepo) CreateBooking(ctx context.Context, rec *BookingRecord, seatLabels []string) error {
    if len(seatLabels) == 0 {
        return ErrSeatUnknown
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    seatIDs, err := resolveSeatIDsTx(ctx, tx, rec.ShowID, seatLabels)
    if err != nil {
        return err
    }

    const insBooking = `INSERT INTO bookings (user_id, show_id, status, total_amount_cents) VALUES (?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, insBooking, rec.UserID, rec.ShowID, rec.Status, rec.TotalAmountCents)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    rec.ID = uint64(id)

    query := `INSERT INTO booking_seats (booking_id, show_id, seat_id) VALUES `
    args := make([]interface{}, 0, len(seatIDs)*3)
    for i, sid := range seatIDs {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, rec.ID, rec.ShowID, sid)
    }
    if _, err := tx.ExecContext(ctx, query, args...); err != nil {
        var me *mysql.MySQLError
        if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
            return ErrConflict
        }
        return err
    }

    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// resolveSeatIDsTx maps seat labels to seat ids within the show's hall.
// Every label must resolve; a miss returns ErrSeatUnknown.
func resolveSeatIDsTx(ctx context.Context, tx *sql.Tx, showID uint64, seatLabels []string) ([]uint64, error) {
    query := `SELECT CONCAT(s.row_label, s.seat_number), s.id
              FROM seats s
              JOIN shows sh ON sh.hall_id = s.hall_id
              WHERE sh.id = ? AND CONCAT(s.row_label, s.seat_number) IN (`
    args := make([]interface{}, 0, len(seatLabels)+1)
    args = append(args, showID)
    for i, label := range seatLabels {
        if i > 0 {
            query += ","
        }
        query += "?"
        args = append(args, label)
    }
    query += ")"

    rows, err := tx.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    byLabel := make(map[string]uint64, len(seatLabels))
    for rows.Next() {
        var label string
        var id uint64
        if scanErr := rows.Scan(&label, &id); scanErr != nil {
            return nil, scanErr
        }
        byLabel[label] = id
    }
    // An iteration failure must surface as the driver error, not as a
    // missing label.
    if err := rows.Err(); err != nil {
        return nil, err
    }

    ids := make([]uint64, 0, len(seatLabels))
    for _, label := range seatLabels {
        id, ok := byLabel[label]
        if !ok {
            return nil, ErrSeatUnknown
        }
        ids = append(ids, id)
    }
    return ids, nil
}
