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

	"github.com/joho/godotenv"

	"github.com/aaliyacoding/progrify/internal/config"
	"github.com/aaliyacoding/progrify/internal/web"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg := config.Load()

	log.Printf("Starting pages server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Static Dir: %s", cfg.StaticDir)
	log.Printf("Token Upstream: %s", cfg.TokenUpstream)

	server := web.NewServer(cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start pages server: %v", err)
		}
	}()

	log.Printf("Pages server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down pages server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown pages server gracefully: %v", err)
	}

	log.Println("Pages server stopped")
}
