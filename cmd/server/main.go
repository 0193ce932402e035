package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"    // .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/cinema-seat-live/internal/booking"
	"github.com/iliyamo/cinema-seat-live/internal/config"
	"github.com/iliyamo/cinema-seat-live/internal/database"
	"github.com/iliyamo/cinema-seat-live/internal/handler"
	"github.com/iliyamo/cinema-seat-live/internal/hold"
	"github.com/iliyamo/cinema-seat-live/internal/queue"
	"github.com/iliyamo/cinema-seat-live/internal/realtime"
	"github.com/iliyamo/cinema-seat-live/internal/repository"
	"github.com/iliyamo/cinema-seat-live/internal/router"
	queue_publisher "github.com/iliyamo/cinema-seat-live/internal/service"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the coordinator runs single-instance
	// and broadcasts stay local.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; cross-instance relay disabled")
	}

	seatRepo := repository.NewSeatRepo(db)
	bookingRepo := repository.NewBookingRepo(db)

	store := hold.NewStore()
	catalog := hold.NewCatalog(seatRepo)
	resolver := hold.NewResolver(store, catalog, bookingRepo)
	snapshots := hold.NewSnapshotSource(store, catalog, bookingRepo)
	finalizer := booking.NewFinalizer(store, bookingRepo, queue_publisher.PublishBookingConfirmed)

	relay := realtime.NewRelay(rdb)
	hub := realtime.NewHub(store, resolver, snapshots, finalizer, relay, cfg.HoldTTL, cfg.DisconnectGrace)

	// Background lifecycle: everything below stops when ctx is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := hold.NewSweeper(store, cfg.SweepInterval, hub.ReclaimBroadcast)
	go sweeper.Run(ctx)
	go queue.StartBookingConsumer(ctx)
	if relay != nil {
		go relay.Run(ctx)
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterRealtime(e, realtime.NewWSHandler(hub), cfg.JWTSecret)
	router.RegisterSeats(e, handler.NewSeatsHandler(snapshots), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s hold_ttl=%s sweep=%s grace=%s)",
		addr, cfg.Env, cfg.HoldTTL, cfg.SweepInterval, cfg.DisconnectGrace)

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// Graceful shutdown: stop the sweeper and consumer, reject new
	// operations on the hub, then drain the HTTP server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	cancel()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
