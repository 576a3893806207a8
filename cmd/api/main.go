package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"retroboard/internal/app"
	"retroboard/internal/config"
	"retroboard/internal/store"
	"retroboard/internal/transport"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	persistence := store.NewPostgresStore(db)

	// The server-side transport publishes every persisted write; each
	// WebSocket client additionally gets its own subscription transport.
	var broadcaster store.Broadcaster
	var newTransport app.TransportFactory
	if strings.TrimSpace(cfg.RedisURL) != "" {
		serverTransport, err := transport.NewRedisTransport(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		if err := serverTransport.Connect(ctx); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer serverTransport.Close()
		broadcaster = serverTransport
		newTransport = func() (transport.Transport, error) {
			return transport.NewRedisTransport(cfg.RedisURL)
		}
	} else {
		log.Printf("No Redis configured, running without live sync")
	}

	sessionStore := store.NewSessionStore(persistence, broadcaster)
	service := app.New(cfg, sessionStore, persistence)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, newTransport)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Retroboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
