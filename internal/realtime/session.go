package realtime

import (
    "encoding/json"
    "log"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/websocket"
)

const (
    // writeWait bounds a single write to the peer.
    writeWait = 10 * time.Second
    // pongWait bounds the silence we tolerate before dropping a peer.
    pongWait = 60 * time.Second
    // pingPeriod must be shorter than pongWait.
    pingPeriod = (pongWait * 9) / 10
    // maxMessageSize bounds inbound frames; seat operations are tiny.
    maxMessageSize = 4096
    // sendBuffer is the per-session outbound queue.  A session that
    // cannot drain it is considered dead and is disconnected.
    sendBuffer = 64
)

// Session is one authenticated websocket connection.  The identity
// (user id) was verified by the gateway before the session exists; the
// coordinator never sees credentials.  A session views at most one
// showtime at a time; the hub tracks which.
type Session struct {
    ID     string // connection identity (uuid)
    UserID uint64 // authenticated user identity

    conn *websocket.Conn
    send chan []byte

    // showID is the currently joined showtime (0 = none).  Guarded by
    // the hub's lock; only the hub reads or writes it.
    showID uint64
}

// NewSession wraps an upgraded websocket connection.
func NewSession(conn *websocket.Conn, userID uint64) *Session {
    return &Session{
        ID:     uuid.NewString(),
        UserID: userID,
        conn:   conn,
        send:   make(chan []byte, sendBuffer),
    }
}

// deliver enqueues a pre-marshalled event.  It never blocks: a full
// queue means the peer stopped reading, and the session is closed so
// the disconnect path can reclaim its holds.
func (s *Session) deliver(payload []byte) bool {
    select {
    case s.send <- payload:
        return true
    default:
        return false
    }
}

// Send marshals and enqueues an event for this session alone.
func (s *Session) Send(ev Event) {
    payload, err := json.Marshal(ev)
    if err != nil {
        log.Printf("session %s: marshal %s event: %v", s.ID, ev.Type, err)
        return
    }
    s.deliver(payload)
}

// readPump consumes inbound frames and hands them to the hub until the
// connection dies.  It runs on the handler goroutine; returning
// triggers disconnect reconciliation.
func (s *Session) readPump(h *Hub) {
    defer func() {
        h.Disconnect(s)
        _ = s.conn.Close()
    }()
    s.conn.SetReadLimit(maxMessageSize)
    _ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
    s.conn.SetPongHandler(func(string) error {
        return s.conn.SetReadDeadline(time.Now().Add(pongWait))
    })
    for {
        _, raw, err := s.conn.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
                log.Printf("session %s: read: %v", s.ID, err)
            }
            return
        }
        h.HandleMessage(s, raw)
    }
}

// writePump drains the send queue to the peer and keeps the connection
// alive with pings.  It owns all writes to the connection.
func (s *Session) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        _ = s.conn.Close()
    }()
    for {
        select {
        case payload, ok := <-s.send:
            _ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                _ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }
            if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
                return
            }
        case <-ticker.C:
            _ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}
