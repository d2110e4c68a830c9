package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctora-backend/internal/config"
	"proctora-backend/internal/database"
	"proctora-backend/internal/exam"
	"proctora-backend/internal/handlers"
	"proctora-backend/internal/middleware"
	"proctora-backend/internal/realtime"
	"proctora-backend/internal/repository"
	"proctora-backend/internal/router"
	"proctora-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Proctora Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Persistence Gateway ────
	gateway := repository.NewGateway(pool)

	// ──── Step 5: Start Audit Worker Pool ────
	auditQueue := worker.NewAuditQueue(redisClients.Queue)
	auditPool := worker.NewPool(redisClients.Queue, gateway.ActionLogs, cfg.AuditWorkers)
	auditPool.Start()
	log.Printf("✓ Audit worker pool started (%d goroutines)", cfg.AuditWorkers)

	// ──── Step 6: Wire Coordinator and Hub ────
	hub := realtime.NewHub(redisClients.PubSub, cfg.JWTSecret)
	cache := exam.NewCache(gateway)
	registry := exam.NewRegistry()
	coordinator := exam.NewCoordinator(cache, registry, gateway, hub, auditQueue)
	hub.Bind(realtime.NewDispatcher(coordinator))
	log.Println("✓ Session coordinator wired")

	// ──── Step 7: Start HTTP Server ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(coordinator, gateway.Messages, gateway.Incidents, gateway.ActionLogs)

	r := router.New(jwtAuth, sessionHandler, hub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		auditPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Proctora Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
