package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.  The pool is the
// coordinator's only durable-store handle: confirmed-seat lookups on
// the hot select path and booking commits run through it, so the pool
// is sized small; hold traffic itself never touches the database.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
    auth := user
    if pass != "" {
        auth = fmt.Sprintf("%s:%s", user, pass)
    }
    // parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
    dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, host, port, name)

    db, err := sql.Open("mysql", dsn)
    if err != nil {
        return nil, err
    }

    // Pool settings.  A dozen connections comfortably covers the
    // confirmed-seat re-checks plus booking transactions; idle
    // connections are recycled so a MySQL failover does not strand them.
    db.SetMaxOpenConns(12)
    db.SetMaxIdleConns(6)
    db.SetConnMaxLifetime(30 * time.Minute)
    db.SetConnMaxIdleTime(5 * time.Minute)

    // Ping with timeout so a wrong host fails startup fast instead of
    // hanging the boot sequence.
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return db, nil
}
