package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"opentune/pkg/logging"
)

// withShutdownSignals cancels ctx on SIGINT or SIGTERM. Running git and
// engine commands are killed through the context.
func withShutdownSignals(ctx context.Context, logger *logging.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("Bootstrap", "Received %s, cancelling the run", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
