package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/learnsync/internal/cli"
)

func main() {
	// Cancel the context on the first shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v\n", sig)
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
