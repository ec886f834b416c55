package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"anonchat/internal/chat"
	"anonchat/internal/config"
	"anonchat/internal/handlers"
	"anonchat/internal/store"
	"anonchat/internal/websocket"
	"anonchat/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Room registry, broadcast hub, protocol coordinator
	roomStore := store.New(store.WithCapacity(cfg.Rooms.Capacity))
	hub := websocket.NewHub()
	coordinator := chat.NewCoordinator(roomStore, hub)

	// Background sweep of expired rooms; sessions still connected to a
	// swept room get told it is gone.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := store.NewSweeper(roomStore, cfg.Rooms.SweepInterval, coordinator.ExpireRoom)
	go sweeper.Run(ctx)

	// Handlers
	roomHandlers := handlers.NewRoomHandlers(roomStore, cfg.Server.ClientURL)
	wsHandlers := handlers.NewWebSocketHandlers(hub, coordinator)

	// Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", roomHandlers.Health)
	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", roomHandlers.CreateRoom)
		r.Get("/{roomID}", roomHandlers.GetRoom)
		r.Get("/{roomID}/exists", roomHandlers.RoomExists)
	})
	r.Get("/ws", wsHandlers.HandleWebSocket)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
		logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
