package utils

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// HandleTerminationProcess ждёт SIGINT или SIGTERM, вызывает cleanup с контекстом,
// ограниченным timeout, и завершает процесс.
func HandleTerminationProcess(timeout time.Duration, cleanup func(ctx context.Context)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Printf("Received %s, shutting down\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			cleanup(ctx)
			close(done)
		}()

		select {
		case <-done:
			os.Exit(0)
		case <-ctx.Done():
			log.Printf("Shutdown didn't finish in %s\n", timeout)
			os.Exit(1)
		}
	}()
}
