package realtime

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "testing"
    "time"

    "github.com/iliyamo/cinema-seat-live/internal/booking"
    "github.com/iliyamo/cinema-seat-live/internal/hold"
    "github.com/iliyamo/cinema-seat-live/internal/model"
    "github.com/iliyamo/cinema-seat-live/internal/repository"
)

// stubCatalog serves a fixed hall layout.
type stubCatalog struct {
    labels map[uint64][]string
}

func (c *stubCatalog) SeatLabels(_ context.Context, showID uint64) ([]string, error) {
    labels, ok := c.labels[showID]
    if !ok {
        return nil, repository.ErrShowNotFound
    }
    return labels, nil
}

// stubConfirmed serves a fixed confirmed-booking set.  onLabels, when
// set, runs at the start of the seeding query so tests can interleave
// hold transitions with an in-flight snapshot.
type stubConfirmed struct {
    booked   map[string]bool
    onLabels func()
}

func (c *stubConfirmed) IsSeatConfirmed(_ context.Context, _ uint64, seatLabel string) (bool, error) {
    return c.booked[seatLabel], nil
}

func (c *stubConfirmed) ConfirmedSeatLabels(_ context.Context, _ uint64) ([]string, error) {
    if c.onLabels != nil {
        c.onLabels()
    }
    var out []string
    for label, ok := range c.booked {
        if ok {
            out = append(out, label)
        }
    }
    return out, nil
}

// stubWriter records durable booking writes.
type stubWriter struct {
    err    error
    nextID uint64
    writes int
    seats  []string
}

func (w *stubWriter) CreateBooking(_ context.Context, rec *repository.BookingRecord, seatLabels []string) error {
    if w.err != nil {
        return w.err
    }
    w.writes++
    w.nextID++
    rec.ID = w.nextID
    w.seats = seatLabels
    return nil
}

type hubFixture struct {
    hub    *Hub
    store  *hold.Store
    writer *stubWriter
    conf   *stubConfirmed
}

func newHubFixture(grace time.Duration) *hubFixture {
    cat := &stubCatalog{labels: map[uint64][]string{
        1: {"A1", "A2", "A3", "B1"},
        2: {"A1", "A2"},
    }}
    conf := &stubConfirmed{booked: map[string]bool{}}
    store := hold.NewStore()
    catalog := hold.NewCatalog(cat)
    resolver := hold.NewResolver(store, catalog, conf)
    snapshots := hold.NewSnapshotSource(store, catalog, conf)
    writer := &stubWriter{}
    fin := booking.NewFinalizer(store, writer, nil)
    return &hubFixture{
        hub:    NewHub(store, resolver, snapshots, fin, nil, 30*time.Second, grace),
        store:  store,
        writer: writer,
        conf:   conf,
    }
}

func newTestSession(userID uint64) *Session {
    return &Session{
        ID:     fmt.Sprintf("conn-%d-%d", userID, time.Now().UnixNano()),
        UserID: userID,
        send:   make(chan []byte, sendBuffer),
    }
}

// recvEvent pops the next queued event of a session.
func recvEvent(t *testing.T, s *Session) Event {
    t.Helper()
    select {
    case payload := <-s.send:
        var ev Event
        if err := json.Unmarshal(payload, &ev); err != nil {
            t.Fatalf("bad event payload %s: %v", payload, err)
        }
        return ev
    case <-time.After(2 * time.Second):
        t.Fatal("no event delivered")
        return Event{}
    }
}

// waitEvent drains the session's queue until an event of the given type
// arrives.
func waitEvent(t *testing.T, s *Session, typ string) Event {
    t.Helper()
    deadline := time.After(2 * time.Second)
    for {
        select {
        case payload := <-s.send:
            var ev Event
            if err := json.Unmarshal(payload, &ev); err != nil {
                t.Fatalf("bad event payload %s: %v", payload, err)
            }
            if ev.Type == typ {
                return ev
            }
        case <-deadline:
            t.Fatalf("no %s event delivered", typ)
        }
    }
}

func wantNoEvent(t *testing.T, s *Session) {
    t.Helper()
    select {
    case payload := <-s.send:
        t.Fatalf("unexpected event: %s", payload)
    default:
    }
}

func msg(format string, args ...any) []byte {
    return []byte(fmt.Sprintf(format, args...))
}

func join(t *testing.T, f *hubFixture, s *Session, showID uint64) {
    t.Helper()
    f.hub.HandleMessage(s, msg(`{"type":"join-showtime","showtimeId":%d}`, showID))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatsState {
        t.Fatalf("join reply = %s, want %s", ev.Type, EvtSeatsState)
    }
}

func TestJoinSendsSnapshotToJoinerOnly(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    a, b := newTestSession(10), newTestSession(11)
    f.hub.Register(a)
    f.hub.Register(b)

    join(t, f, a, 1)

    f.hub.HandleMessage(b, msg(`{"type":"join-showtime","showtimeId":1}`))
    ev := recvEvent(t, b)
    if ev.Type != EvtSeatsState || ev.ShowtimeID != 1 || len(ev.Seats) != 4 {
        t.Errorf("snapshot = %+v, want 4 seats of show 1", ev)
    }
    // The earlier member sees nothing when someone joins.
    wantNoEvent(t, a)
}

func TestJoinDeliversTransitionLandingDuringSnapshot(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    rival := newTestSession(11)
    joiner := newTestSession(10)
    f.hub.Register(rival)
    f.hub.Register(joiner)

    // A seat transition completes while the joiner's snapshot is being
    // computed.  The joiner is already a group member at that point, so
    // it gets the delta, followed by a snapshot that contains it.
    f.conf.onLabels = func() {
        f.store.Acquire(model.SeatKey{ShowID: 1, SeatID: "B1"}, 11, rival.ID, time.Minute)
        f.hub.Broadcast(1, Event{Type: EvtSeatSelected, ShowtimeID: 1, SeatID: "B1", UserID: 11})
    }

    f.hub.HandleMessage(joiner, msg(`{"type":"join-showtime","showtimeId":1}`))

    delta := recvEvent(t, joiner)
    if delta.Type != EvtSeatSelected || delta.SeatID != "B1" {
        t.Fatalf("first event = %+v, want the seat-selected delta", delta)
    }
    snap := recvEvent(t, joiner)
    if snap.Type != EvtSeatsState {
        t.Fatalf("second event = %s, want %s", snap.Type, EvtSeatsState)
    }
    for _, seat := range snap.Seats {
        if seat.SeatID == "B1" && seat.State != model.SeatHeld {
            t.Errorf("B1 = %s in the join snapshot, want HELD", seat.State)
        }
    }
}

func TestJoinUnknownShow(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)

    f.hub.HandleMessage(s, msg(`{"type":"join-showtime","showtimeId":99}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtError || ev.Code != CodeInvalidInput {
        t.Errorf("event = %+v, want INVALID_INPUT error", ev)
    }
}

func TestSelectBroadcastsToGroup(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    a, b := newTestSession(10), newTestSession(11)
    f.hub.Register(a)
    f.hub.Register(b)
    join(t, f, a, 1)
    join(t, f, b, 1)

    f.hub.HandleMessage(a, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))

    for _, s := range []*Session{a, b} {
        ev := recvEvent(t, s)
        if ev.Type != EvtSeatSelected || ev.SeatID != "A1" || ev.UserID != 10 {
            t.Errorf("session %s got %+v, want seat-selected A1 by 10", s.ID, ev)
        }
        if ev.ExpiresAt == "" {
            t.Errorf("seat-selected carries no expiry")
        }
    }
}

func TestSelectConflictIsTargeted(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    winner, loser := newTestSession(10), newTestSession(11)
    f.hub.Register(winner)
    f.hub.Register(loser)
    join(t, f, winner, 1)
    join(t, f, loser, 1)

    f.hub.HandleMessage(winner, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, winner) // seat-selected
    recvEvent(t, loser)  // seat-selected

    f.hub.HandleMessage(loser, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))

    ev := recvEvent(t, loser)
    if ev.Type != EvtSeatConflict || ev.SeatID != "A1" || ev.Reason != ReasonAlreadyHeld {
        t.Errorf("loser got %+v, want seat-conflict SEAT_ALREADY_HELD", ev)
    }
    // The conflict notice is followed by a corrective snapshot.
    snap := recvEvent(t, loser)
    if snap.Type != EvtSeatsState {
        t.Errorf("follow-up = %s, want %s", snap.Type, EvtSeatsState)
    }
    var held int
    for _, seat := range snap.Seats {
        if seat.State == model.SeatHeld {
            held++
            if seat.HolderID == nil || *seat.HolderID != 10 {
                t.Errorf("snapshot holder = %v, want 10", seat.HolderID)
            }
        }
    }
    if held != 1 {
        t.Errorf("snapshot shows %d held seats, want 1", held)
    }
    // The winner sees nothing: no state changed.
    wantNoEvent(t, winner)
}

func TestSelectInvalidSeat(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"Z99"}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatConflict || ev.Reason != ReasonInvalidSeat {
        t.Errorf("event = %+v, want seat-conflict INVALID_SEAT", ev)
    }
}

func TestSelectRejectsMalformedSeatID(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    for _, raw := range []string{`"undefined"`, `""`, `null`, `17`} {
        f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":%s}`, raw))
        ev := recvEvent(t, s)
        if ev.Type != EvtError || ev.Code != CodeInvalidInput {
            t.Errorf("seatId=%s: got %+v, want INVALID_INPUT error", raw, ev)
        }
    }
    if len(f.store.HoldsForShow(1)) != 0 {
        t.Errorf("malformed seat id produced a hold")
    }
}

func TestDeselectOwnershipErrors(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    holder, other := newTestSession(10), newTestSession(11)
    f.hub.Register(holder)
    f.hub.Register(other)
    join(t, f, holder, 1)
    join(t, f, other, 1)

    f.hub.HandleMessage(holder, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, holder)
    recvEvent(t, other)

    f.hub.HandleMessage(other, msg(`{"type":"deselect-seat","showtimeId":1,"seatId":"A1"}`))
    ev := recvEvent(t, other)
    if ev.Type != EvtError || ev.Code != CodeNotHolder {
        t.Errorf("foreign deselect got %+v, want NOT_HOLDER error", ev)
    }
    if state, _ := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"}); state != model.SeatHeld {
        t.Errorf("hold lost to foreign deselect: %v", state)
    }

    f.hub.HandleMessage(holder, msg(`{"type":"deselect-seat","showtimeId":1,"seatId":"A1"}`))
    ev = recvEvent(t, holder)
    if ev.Type != EvtSeatDeselected || ev.SeatID != "A1" {
        t.Errorf("owner deselect got %+v, want seat-deselected A1", ev)
    }
}

func TestClearAllSeats(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    for _, seat := range []string{"A1", "A2"} {
        f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":%q}`, seat))
        recvEvent(t, s)
    }

    f.hub.HandleMessage(s, msg(`{"type":"clear-all-seats","showtimeId":1}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatsCleared || ev.Released != 2 {
        t.Errorf("event = %+v, want seats-cleared released=2", ev)
    }
    snap := recvEvent(t, s)
    if snap.Type != EvtSeatsState {
        t.Errorf("follow-up = %s, want %s", snap.Type, EvtSeatsState)
    }
    for _, seat := range snap.Seats {
        if seat.State != model.SeatAvailable {
            t.Errorf("seat %s = %s after clear-all", seat.SeatID, seat.State)
        }
    }
}

func TestExtendBroadcasts(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    selected := recvEvent(t, s)

    f.hub.HandleMessage(s, msg(`{"type":"extend-seat-hold","showtimeId":1,"seatId":"A1"}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatHoldExtended || ev.SeatID != "A1" {
        t.Fatalf("event = %+v, want seat-hold-extended A1", ev)
    }
    if ev.ExpiresAt < selected.ExpiresAt {
        t.Errorf("extend moved expiry backwards: %s -> %s", selected.ExpiresAt, ev.ExpiresAt)
    }
}

func TestDisconnectReleasesAfterGrace(t *testing.T) {
    t.Parallel()
    f := newHubFixture(30 * time.Millisecond)
    gone, viewer := newTestSession(10), newTestSession(11)
    f.hub.Register(gone)
    f.hub.Register(viewer)
    join(t, f, gone, 1)
    join(t, f, viewer, 1)

    f.hub.HandleMessage(gone, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, gone)
    recvEvent(t, viewer)

    f.hub.Disconnect(gone)

    // The remaining viewer gets a fresh snapshot once the grace window
    // elapses and the orphaned hold is released.
    snap := waitEvent(t, viewer, EvtSeatsState)
    for _, seat := range snap.Seats {
        if seat.SeatID == "A1" && seat.State != model.SeatAvailable {
            t.Errorf("A1 = %s after grace release, want AVAILABLE", seat.State)
        }
    }
    if state, _ := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"}); state != model.SeatAvailable {
        t.Errorf("hold survived the grace window: %v", state)
    }
}

func TestReconnectWithinGraceKeepsSeats(t *testing.T) {
    t.Parallel()
    f := newHubFixture(50 * time.Millisecond)
    old := newTestSession(10)
    f.hub.Register(old)
    join(t, f, old, 1)

    f.hub.HandleMessage(old, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, old)

    f.hub.Disconnect(old)

    // Same user reconnects and rejoins before the timer fires.
    fresh := newTestSession(10)
    f.hub.Register(fresh)
    join(t, f, fresh, 1)

    time.Sleep(150 * time.Millisecond)

    state, h := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"})
    if state != model.SeatHeld || h.UserID != 10 {
        t.Fatalf("seat after reconnect = %v holder=%v, want HELD by 10", state, h)
    }
    if h.ConnID != fresh.ID {
        t.Errorf("hold still bound to the dead connection %s", h.ConnID)
    }

    // The hold still works: another seat can be added and the original
    // one still blocks other users.
    f.hub.HandleMessage(fresh, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A2"}`))
    ev := recvEvent(t, fresh)
    if ev.Type != EvtSeatSelected || ev.SeatID != "A2" {
        t.Errorf("post-reconnect select got %+v, want seat-selected A2", ev)
    }
}

// waitSeatAvailable polls until the seat frees up or the deadline hits.
func waitSeatAvailable(t *testing.T, st *hold.Store, key model.SeatKey) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for {
        if state, _ := st.State(key); state == model.SeatAvailable {
            return
        }
        if time.Now().After(deadline) {
            state, h := st.State(key)
            t.Fatalf("seat %v never released: state=%v hold=%v", key, state, h)
        }
        time.Sleep(10 * time.Millisecond)
    }
}

func TestDisconnectAfterLeaveStillReleasesHolds(t *testing.T) {
    t.Parallel()
    f := newHubFixture(30 * time.Millisecond)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)

    // Leaving the group drops the membership but not the holds; the
    // disconnect must still reclaim them after the grace window.
    f.hub.Leave(s)
    f.hub.Disconnect(s)

    waitSeatAvailable(t, f.store, model.SeatKey{ShowID: 1, SeatID: "A1"})
}

func TestDisconnectReleasesHoldsOnUnjoinedShows(t *testing.T) {
    t.Parallel()
    f := newHubFixture(30 * time.Millisecond)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    // Holds on the joined show and on a show the session never joined.
    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)
    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":2,"seatId":"A1"}`))

    if state, _ := f.store.State(model.SeatKey{ShowID: 2, SeatID: "A1"}); state != model.SeatHeld {
        t.Fatalf("show 2 hold not created: %v", state)
    }

    f.hub.Disconnect(s)

    waitSeatAvailable(t, f.store, model.SeatKey{ShowID: 1, SeatID: "A1"})
    waitSeatAvailable(t, f.store, model.SeatKey{ShowID: 2, SeatID: "A1"})
}

func TestConfirmBookingHappyPath(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    for _, seat := range []string{"A1", "A2"} {
        f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":%q}`, seat))
        recvEvent(t, s)
    }

    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1","A2"],"totalAmount":2400}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtBookingConfirmed || ev.BookingID == 0 {
        t.Fatalf("event = %+v, want booking-confirmed with id", ev)
    }
    snap := recvEvent(t, s)
    if snap.Type != EvtSeatsState {
        t.Fatalf("follow-up = %s, want %s", snap.Type, EvtSeatsState)
    }
    confirmed := 0
    for _, seat := range snap.Seats {
        if seat.State == model.SeatConfirmed {
            confirmed++
        }
    }
    if confirmed != 2 {
        t.Errorf("snapshot shows %d confirmed seats, want 2", confirmed)
    }
    if f.writer.writes != 1 || len(f.writer.seats) != 2 {
        t.Errorf("durable writes = %d seats = %v, want one write of both seats", f.writer.writes, f.writer.seats)
    }
}

func TestConfirmBookingAllOrNothing(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)

    // A2 is not held; the whole confirmation must be rejected, and the
    // reason reflects that the seat is simply unheld.
    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1","A2"],"totalAmount":2400}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatConflict || ev.SeatID != "A2" || ev.Code != CodeNotHolder || ev.Reason != ReasonNotHeld {
        t.Fatalf("event = %+v, want seat-conflict SEAT_NOT_HELD on A2", ev)
    }
    if f.writer.writes != 0 {
        t.Errorf("durable write happened despite rejection")
    }
    if state, _ := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"}); state != model.SeatHeld {
        t.Errorf("A1 lost its hold on a rejected confirmation: %v", state)
    }
}

func TestConfirmBookingConflictReasonTracksSeatState(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s, rival := newTestSession(10), newTestSession(11)
    f.hub.Register(s)
    f.hub.Register(rival)
    join(t, f, s, 1)
    join(t, f, rival, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)
    recvEvent(t, rival)
    f.hub.HandleMessage(rival, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A2"}`))
    recvEvent(t, s)
    recvEvent(t, rival)

    // A2 belongs to the rival: the conflict says so.
    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1","A2"],"totalAmount":2400}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatConflict || ev.SeatID != "A2" || ev.Reason != ReasonAlreadyHeld {
        t.Fatalf("event = %+v, want seat-conflict SEAT_ALREADY_HELD on A2", ev)
    }

    // A3 is covered by a committed booking: the conflict says that too.
    f.store.MarkConfirmed(1, []string{"A3"})
    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1","A3"],"totalAmount":2400}`))
    ev = recvEvent(t, s)
    if ev.Type != EvtSeatConflict || ev.SeatID != "A3" || ev.Reason != ReasonAlreadyBooked {
        t.Fatalf("event = %+v, want seat-conflict SEAT_ALREADY_BOOKED on A3", ev)
    }
    if state, _ := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"}); state != model.SeatHeld {
        t.Errorf("A1 lost its hold on rejected confirmations: %v", state)
    }
}

func TestConfirmBookingWriterFailureKeepsHolds(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    f.writer.err = errors.New("deadlock found")
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)

    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1"],"totalAmount":1200}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtError || ev.Code != CodePersistence {
        t.Fatalf("event = %+v, want PERSISTENCE_FAILURE error", ev)
    }
    if state, _ := f.store.State(model.SeatKey{ShowID: 1, SeatID: "A1"}); state != model.SeatHeld {
        t.Errorf("hold lost after failed durable write: %v", state)
    }
}

func TestConfirmBookingDuplicateKeyIsConflict(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    f.writer.err = repository.ErrConflict
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, s)

    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":["A1"],"totalAmount":1200}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtSeatConflict || ev.Reason != ReasonAlreadyBooked {
        t.Errorf("event = %+v, want seat-conflict SEAT_ALREADY_BOOKED", ev)
    }
}

func TestConfirmBookingRejectsEmptySeatList(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.HandleMessage(s, msg(`{"type":"confirm-booking","showtimeId":1,"seatIds":[]}`))
    ev := recvEvent(t, s)
    if ev.Type != EvtError || ev.Code != CodeInvalidInput {
        t.Errorf("event = %+v, want INVALID_INPUT error", ev)
    }
}

func TestStatistics(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    a, b := newTestSession(10), newTestSession(11)
    f.hub.Register(a)
    f.hub.Register(b)
    join(t, f, a, 1)
    join(t, f, b, 2)

    f.hub.HandleMessage(a, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    recvEvent(t, a)

    f.hub.HandleMessage(a, msg(`{"type":"get-seat-statistics"}`))
    ev := recvEvent(t, a)
    if ev.Type != EvtSeatStatistics || len(ev.Statistics) != 2 {
        t.Fatalf("event = %+v, want statistics for both shows", ev)
    }
    byShow := make(map[uint64]ShowtimeStatistic)
    for _, st := range ev.Statistics {
        byShow[st.ShowtimeID] = st
    }
    if st := byShow[1]; st.Viewers != 1 || st.HeldSeats != 1 {
        t.Errorf("show 1 stats = %+v, want 1 viewer 1 held", st)
    }
    if st := byShow[2]; st.Viewers != 1 || st.HeldSeats != 0 {
        t.Errorf("show 2 stats = %+v, want 1 viewer 0 held", st)
    }
}

func TestHandleMessageMalformed(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)

    f.hub.HandleMessage(s, []byte(`{not json`))
    ev := recvEvent(t, s)
    if ev.Type != EvtError || ev.Code != CodeInvalidInput {
        t.Errorf("malformed got %+v, want INVALID_INPUT error", ev)
    }

    f.hub.HandleMessage(s, msg(`{"type":"no-such-thing"}`))
    ev = recvEvent(t, s)
    if ev.Type != EvtError || ev.Code != CodeInvalidInput {
        t.Errorf("unknown type got %+v, want INVALID_INPUT error", ev)
    }
}

func TestGetSeatsStateSnapshot(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    a, b := newTestSession(10), newTestSession(11)
    f.hub.Register(a)
    f.hub.Register(b)
    join(t, f, a, 1)
    join(t, f, b, 1)

    f.hub.HandleMessage(a, msg(`{"type":"get-seats-state","showtimeId":1}`))
    ev := recvEvent(t, a)
    if ev.Type != EvtSeatsState || len(ev.Seats) != 4 {
        t.Errorf("event = %+v, want full snapshot", ev)
    }
    // On-demand snapshots are targeted.
    wantNoEvent(t, b)
}

func TestShutdownRejectsNewWork(t *testing.T) {
    t.Parallel()
    f := newHubFixture(time.Hour)
    s := newTestSession(10)
    f.hub.Register(s)
    join(t, f, s, 1)

    f.hub.Shutdown()

    if f.hub.Register(newTestSession(11)) {
        t.Errorf("Register accepted a session after shutdown")
    }
    f.hub.HandleMessage(s, msg(`{"type":"select-seat","showtimeId":1,"seatId":"A1"}`))
    wantNoEvent(t, s)
}
