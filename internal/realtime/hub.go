package realtime

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/booking"
    "github.com/iliyamo/cinema-seat-live/internal/hold"
    "github.com/iliyamo/cinema-seat-live/internal/model"
    "github.com/iliyamo/cinema-seat-live/internal/repository"
)

// BookingService finalizes a set of held seats into a durable booking.
// Implemented by booking.Finalizer; a fake stands in for it in tests.
type BookingService interface {
    Confirm(ctx context.Context, showID uint64, seatIDs []string, userID uint64, totalCents uint32) (uint64, error)
}

// pendingKey identifies a scheduled grace-period release.  Keyed by
// (user, show) so that the same user rejoining the same showtime can
// cancel it deterministically.
type pendingKey struct {
    userID uint64
    showID uint64
}

// Hub is the explicitly constructed coordinator: it owns the session
// registry (showtime -> live sessions), performs broadcast fan-out,
// schedules and cancels the grace-period releases of disconnected
// sessions, and dispatches every inbound protocol message.  It is
// created once at startup and shut down with the process; there is no
// lazily initialized global.
//
// Scaling boundary: hold state is authoritative in this process only.
// The optional relay fans broadcast events out to sessions connected to
// other instances, but it does not share hold state; a horizontally
// scaled deployment needs a shared compare-and-set store instead.
type Hub struct {
    store     *hold.Store
    resolver  *hold.Resolver
    snapshots *hold.SnapshotSource
    booking   BookingService
    relay     *Relay // nil when Redis is not configured

    holdTTL time.Duration
    grace   time.Duration

    mu       sync.Mutex
    sessions map[string]*Session
    groups   map[uint64]map[string]*Session
    pending  map[pendingKey]*time.Timer
    closed   bool
}

// NewHub wires the coordinator together.  relay may be nil.
func NewHub(store *hold.Store, resolver *hold.Resolver, snapshots *hold.SnapshotSource, svc BookingService, relay *Relay, holdTTL, grace time.Duration) *Hub {
    if holdTTL <= 0 {
        holdTTL = 30 * time.Second
    }
    if grace <= 0 {
        grace = 3 * time.Second
    }
    h := &Hub{
        store:     store,
        resolver:  resolver,
        snapshots: snapshots,
        booking:   svc,
        relay:     relay,
        holdTTL:   holdTTL,
        grace:     grace,
        sessions:  make(map[string]*Session),
        groups:    make(map[uint64]map[string]*Session),
        pending:   make(map[pendingKey]*time.Timer),
    }
    if relay != nil {
        relay.deliver = h.deliverRemote
    }
    return h
}

// Register adds an authenticated session to the hub.  It returns false
// when the hub is shutting down; the caller must close the connection.
func (h *Hub) Register(s *Session) bool {
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.closed {
        return false
    }
    h.sessions[s.ID] = s
    return true
}

// Disconnect removes the session and schedules the delayed release of
// its holds.  The release is deliberately not immediate: a grace window
// tolerates reconnects and page reloads without losing an in-progress
// selection.  One timer is scheduled per show in which the dead
// connection still owns holds, whether or not that showtime was the
// joined one.  Rejoining a showtime as the same user cancels its timer
// (see Join); otherwise it fires and releases only the holds still
// bound to this dead connection.
func (h *Hub) Disconnect(s *Session) {
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    delete(h.sessions, s.ID)
    h.removeFromGroupLocked(s)
    connID := s.ID
    for _, showID := range h.store.ShowsForConn(s.UserID, connID) {
        key := pendingKey{userID: s.UserID, showID: showID}
        if t, ok := h.pending[key]; ok {
            // A newer disconnect supersedes the previous timer.
            t.Stop()
        }
        h.pending[key] = time.AfterFunc(h.grace, func() {
            h.releaseAfterGrace(key, connID)
        })
    }
    h.mu.Unlock()
}

// releaseAfterGrace fires when the grace window of a disconnected
// session elapsed without the user rejoining.
func (h *Hub) releaseAfterGrace(key pendingKey, connID string) {
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    delete(h.pending, key)
    h.mu.Unlock()

    released := h.store.ReleaseConn(key.userID, connID)
    for showID, seats := range released {
        log.Printf("hub: grace release user=%d conn=%s show=%d seats=%d", key.userID, connID, showID, len(seats))
        h.broadcastSeatsState(showID)
    }
}

// Join moves the session into the showtime's group, cancels a pending
// grace release for this (user, show), rebinds the user's existing
// holds to this connection, and replies with a full snapshot to the
// joining session alone.  The group membership is established before
// the snapshot is computed: a transition landing in between reaches the
// joiner as a delta, and the snapshot that follows already contains it.
func (h *Hub) Join(ctx context.Context, s *Session, showID uint64) {
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    h.removeFromGroupLocked(s)
    group := h.groups[showID]
    if group == nil {
        group = make(map[string]*Session)
        h.groups[showID] = group
    }
    group[s.ID] = s
    s.showID = showID
    key := pendingKey{userID: s.UserID, showID: showID}
    if t, ok := h.pending[key]; ok {
        t.Stop()
        delete(h.pending, key)
    }
    h.mu.Unlock()

    // Adopt any holds the user still owns on this showtime so the dead
    // connection's eventual release (if any survived, e.g. scheduled
    // for another showtime) no longer covers them.
    h.store.RebindConn(s.UserID, showID, s.ID)

    seats, err := h.snapshots.Snapshot(ctx, showID)
    if err != nil {
        s.Send(h.snapshotError(err))
        return
    }
    s.Send(snapshotEvent(showID, seats))
}

// Leave removes the session from its current group without touching its
// holds; switching showtimes must not prematurely release seats in the
// middle of a booking.
func (h *Hub) Leave(s *Session) {
    h.mu.Lock()
    h.removeFromGroupLocked(s)
    h.mu.Unlock()
}

func (h *Hub) removeFromGroupLocked(s *Session) {
    if s.showID == 0 {
        return
    }
    group := h.groups[s.showID]
    delete(group, s.ID)
    if len(group) == 0 {
        delete(h.groups, s.showID)
    }
    s.showID = 0
}

// Broadcast delivers an event to every session in the showtime's group.
// Enqueueing happens under the hub lock so that events reach each
// session's queue in the order their state transitions completed.
func (h *Hub) Broadcast(showID uint64, ev Event) {
    payload, err := json.Marshal(ev)
    if err != nil {
        log.Printf("hub: marshal %s event: %v", ev.Type, err)
        return
    }
    h.deliverLocal(showID, payload)
    if h.relay != nil {
        h.relay.Publish(showID, payload)
    }
}

// deliverLocal fans a pre-marshalled event out to local group members.
func (h *Hub) deliverLocal(showID uint64, payload []byte) {
    h.mu.Lock()
    defer h.mu.Unlock()
    for _, s := range h.groups[showID] {
        if !s.deliver(payload) {
            log.Printf("hub: session %s send queue full, dropping event", s.ID)
        }
    }
}

// deliverRemote handles events relayed from other instances.  They are
// delivered locally but never re-published.
func (h *Hub) deliverRemote(showID uint64, payload []byte) {
    h.deliverLocal(showID, payload)
}

// broadcastSeatsState pushes a fresh full snapshot to the showtime's
// group.  Used after sweeps, grace releases and clear-all, where the
// set of changed seats is plural and clients are simplest served the
// newest truth wholesale.
func (h *Hub) broadcastSeatsState(showID uint64) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    seats, err := h.snapshots.Snapshot(ctx, showID)
    if err != nil {
        log.Printf("hub: snapshot show=%d: %v", showID, err)
        return
    }
    h.Broadcast(showID, snapshotEvent(showID, seats))
}

// ReclaimBroadcast is the sweeper's callback: it announces the new seat
// map of a showtime whose expired holds were just reclaimed.
func (h *Hub) ReclaimBroadcast(showID uint64, seatIDs []string) {
    h.broadcastSeatsState(showID)
}

// HandleMessage dispatches one inbound frame from a session.  Every
// operation-level failure is answered only to the requesting session as
// a structured error; nothing here can crash the shared broadcaster or
// leak into other sessions' state.
func (h *Hub) HandleMessage(s *Session, raw []byte) {
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    h.mu.Unlock()

    var msg Inbound
    if err := json.Unmarshal(raw, &msg); err != nil {
        s.Send(errorEvent(CodeInvalidInput, "malformed message"))
        return
    }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    switch msg.Type {
    case MsgJoinShowtime:
        showID, err := NormalizeShowID(msg.ShowtimeID)
        if err != nil {
            s.Send(errorEvent(CodeInvalidInput, err.Error()))
            return
        }
        h.Join(ctx, s, showID)

    case MsgSelectSeat:
        h.handleSelect(ctx, s, msg)

    case MsgDeselectSeat:
        h.handleDeselect(s, msg)

    case MsgClearAllSeats:
        h.handleClearAll(s, msg)

    case MsgExtendSeatHold:
        h.handleExtend(s, msg)

    case MsgConfirmBooking:
        h.handleConfirm(ctx, s, msg)

    case MsgGetSeatsState:
        showID, err := NormalizeShowID(msg.ShowtimeID)
        if err != nil {
            s.Send(errorEvent(CodeInvalidInput, err.Error()))
            return
        }
        seats, err := h.snapshots.Snapshot(ctx, showID)
        if err != nil {
            s.Send(h.snapshotError(err))
            return
        }
        s.Send(snapshotEvent(showID, seats))

    case MsgGetStatistics:
        s.Send(h.statistics())

    default:
        s.Send(errorEvent(CodeInvalidInput, "unknown message type"))
    }
}

func (h *Hub) handleSelect(ctx context.Context, s *Session, msg Inbound) {
    key, ok := h.seatKey(s, msg)
    if !ok {
        return
    }
    hld, outcome, err := h.resolver.Acquire(ctx, key, s.UserID, s.ID, h.holdTTL)
    if err != nil {
        s.Send(errorEvent(CodePersistence, "seat availability could not be verified"))
        return
    }
    switch outcome {
    case hold.OutcomeAcquired:
        h.Broadcast(key.ShowID, Event{
            Type:       EvtSeatSelected,
            ShowtimeID: key.ShowID,
            SeatID:     key.SeatID,
            UserID:     s.UserID,
            ExpiresAt:  formatExpiry(hld.ExpiresAt),
        })
    case hold.OutcomeHeld:
        h.sendConflict(ctx, s, key, ReasonAlreadyHeld)
    case hold.OutcomeBooked:
        h.sendConflict(ctx, s, key, ReasonAlreadyBooked)
    case hold.OutcomeInvalidSeat:
        h.sendConflict(ctx, s, key, ReasonInvalidSeat)
    }
}

// sendConflict notifies the losing session alone: the conflict notice
// plus a fresh snapshot so its view converges.  Other sessions see no
// event because no state changed.
func (h *Hub) sendConflict(ctx context.Context, s *Session, key model.SeatKey, reason string) {
    s.Send(conflictEvent(key.ShowID, key.SeatID, reason))
    if seats, err := h.snapshots.Snapshot(ctx, key.ShowID); err == nil {
        s.Send(snapshotEvent(key.ShowID, seats))
    }
}

func (h *Hub) handleDeselect(s *Session, msg Inbound) {
    key, ok := h.seatKey(s, msg)
    if !ok {
        return
    }
    switch h.store.Release(key, s.UserID) {
    case hold.Released:
        h.Broadcast(key.ShowID, Event{
            Type:       EvtSeatDeselected,
            ShowtimeID: key.ShowID,
            SeatID:     key.SeatID,
            UserID:     s.UserID,
        })
    case hold.NotHolder:
        s.Send(errorEvent(CodeNotHolder, "seat is held by another user"))
    case hold.NotHeld:
        s.Send(errorEvent(CodeNotHolder, "seat is not held"))
    }
}

func (h *Hub) handleClearAll(s *Session, msg Inbound) {
    showID, err := NormalizeShowID(msg.ShowtimeID)
    if err != nil {
        s.Send(errorEvent(CodeInvalidInput, err.Error()))
        return
    }
    released := h.store.ReleaseUserShow(s.UserID, showID)
    s.Send(Event{Type: EvtSeatsCleared, ShowtimeID: showID, Released: len(released)})
    if len(released) > 0 {
        h.broadcastSeatsState(showID)
    }
}

func (h *Hub) handleExtend(s *Session, msg Inbound) {
    key, ok := h.seatKey(s, msg)
    if !ok {
        return
    }
    exp, res := h.store.Extend(key, s.UserID, h.holdTTL)
    switch res {
    case hold.Extended:
        h.Broadcast(key.ShowID, Event{
            Type:       EvtSeatHoldExtended,
            ShowtimeID: key.ShowID,
            SeatID:     key.SeatID,
            UserID:     s.UserID,
            ExpiresAt:  formatExpiry(exp),
        })
    case hold.ExtendNotHolder:
        s.Send(errorEvent(CodeNotHolder, "seat is held by another user"))
    case hold.ExtendNotHeld:
        s.Send(errorEvent(CodeNotHolder, "seat is not held"))
    }
}

func (h *Hub) handleConfirm(ctx context.Context, s *Session, msg Inbound) {
    showID, err := NormalizeShowID(msg.ShowtimeID)
    if err != nil {
        s.Send(errorEvent(CodeInvalidInput, err.Error()))
        return
    }
    if len(msg.SeatIDs) == 0 {
        s.Send(errorEvent(CodeInvalidInput, "seatIds is required"))
        return
    }
    seatIDs := make([]string, 0, len(msg.SeatIDs))
    for _, raw := range msg.SeatIDs {
        seatID, err := NormalizeSeatID(raw)
        if err != nil {
            s.Send(errorEvent(CodeInvalidInput, err.Error()))
            return
        }
        seatIDs = append(seatIDs, seatID)
    }

    bookingID, err := h.booking.Confirm(ctx, showID, seatIDs, s.UserID, msg.TotalAmount)
    if err != nil {
        var nh *booking.NotHeldError
        switch {
        case errors.As(err, &nh):
            // The offending seat may be held by someone else, already
            // booked, or simply unheld (never selected, or expired).
            reason := ReasonNotHeld
            switch state, cur := h.store.State(model.SeatKey{ShowID: showID, SeatID: nh.Seat}); state {
            case model.SeatConfirmed:
                reason = ReasonAlreadyBooked
            case model.SeatHeld:
                if cur.UserID != s.UserID {
                    reason = ReasonAlreadyHeld
                }
            }
            s.Send(Event{
                Type:       EvtSeatConflict,
                ShowtimeID: showID,
                SeatID:     nh.Seat,
                Reason:     reason,
                Code:       CodeNotHolder,
                Message:    err.Error(),
            })
        case errors.Is(err, booking.ErrNoSeats):
            s.Send(errorEvent(CodeInvalidInput, err.Error()))
        case errors.Is(err, repository.ErrConflict):
            // Another booking won one of the seats, e.g. on a second
            // instance that never saw our holds.
            s.Send(Event{
                Type:       EvtSeatConflict,
                ShowtimeID: showID,
                Reason:     ReasonAlreadyBooked,
                Code:       CodeSeatConflict,
                Message:    "a seat was already booked",
            })
        case errors.Is(err, repository.ErrSeatUnknown):
            s.Send(errorEvent(CodeInvalidInput, "unknown seat in booking request"))
        default:
            s.Send(errorEvent(CodePersistence, "booking could not be committed"))
        }
        return
    }

    s.Send(Event{Type: EvtBookingConfirmed, ShowtimeID: showID, BookingID: bookingID})
    h.broadcastSeatsState(showID)
}

// statistics summarizes live activity across all showtimes with at
// least one viewer or hold.
func (h *Hub) statistics() Event {
    holdStats := h.store.Stats()

    h.mu.Lock()
    shows := make(map[uint64]struct{}, len(h.groups)+len(holdStats))
    for showID := range h.groups {
        shows[showID] = struct{}{}
    }
    for showID := range holdStats {
        shows[showID] = struct{}{}
    }
    stats := make([]ShowtimeStatistic, 0, len(shows))
    for showID := range shows {
        stats = append(stats, ShowtimeStatistic{
            ShowtimeID: showID,
            Viewers:    len(h.groups[showID]),
            HeldSeats:  holdStats[showID],
        })
    }
    h.mu.Unlock()

    return Event{Type: EvtSeatStatistics, Statistics: stats}
}

// seatKey normalizes the (showtime, seat) pair of a message, answering
// the session with a structured error when it does not normalize.
func (h *Hub) seatKey(s *Session, msg Inbound) (model.SeatKey, bool) {
    showID, err := NormalizeShowID(msg.ShowtimeID)
    if err != nil {
        s.Send(errorEvent(CodeInvalidInput, err.Error()))
        return model.SeatKey{}, false
    }
    seatID, err := NormalizeSeatID(msg.SeatID)
    if err != nil {
        s.Send(errorEvent(CodeInvalidInput, err.Error()))
        return model.SeatKey{}, false
    }
    return model.SeatKey{ShowID: showID, SeatID: seatID}, true
}

// snapshotError maps a snapshot failure to the protocol taxonomy.
func (h *Hub) snapshotError(err error) Event {
    if errors.Is(err, repository.ErrShowNotFound) {
        return errorEvent(CodeInvalidInput, "show not found")
    }
    return errorEvent(CodePersistence, "seat map could not be loaded")
}

// Shutdown stops all pending release timers, detaches the relay and
// closes every session.  New registrations and messages are rejected
// afterwards.
func (h *Hub) Shutdown() {
    h.mu.Lock()
    if h.closed {
        h.mu.Unlock()
        return
    }
    h.closed = true
    for key, t := range h.pending {
        t.Stop()
        delete(h.pending, key)
    }
    sessions := make([]*Session, 0, len(h.sessions))
    for _, s := range h.sessions {
        sessions = append(sessions, s)
    }
    h.sessions = make(map[string]*Session)
    h.groups = make(map[uint64]map[string]*Session)
    h.mu.Unlock()

    if h.relay != nil {
        h.relay.Close()
    }
    for _, s := range sessions {
        if s.conn != nil {
            _ = s.conn.Close()
        }
    }
}
