package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classboard/internal/app"
	"classboard/internal/config"
)

// Main entry point with signal management. Graceful shutdown on
// SIGINT/SIGTERM ensures session state and the realtime connection are
// released cleanly.
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// Separate run function enables testing and error handling.
func run() error {
	// STEP 1: Load configuration with precedence (.env > env > defaults)
	cfg := config.Load()

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 4: Start background session supervision
	if err := application.Start(ctx); err != nil {
		_ = application.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	// STEP 5: Wait for shutdown signal
	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	if err := application.Stop(); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
