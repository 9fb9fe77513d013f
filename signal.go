package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. The first signal lets the director finish
// relocating the in-flight descriptor; the second is for when something hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		received := 0

		for {
			select {
			case <-parent.Done():
				cancel()
				return

			case sig := <-sigCh:
				received++

				if received > 1 {
					logger.Warn("received second signal, forcing exit",
						slog.String("signal", sig.String()),
					)
					os.Exit(1)
				}

				logger.Info("received signal, initiating graceful shutdown",
					slog.String("signal", sig.String()),
				)
				cancel()
			}
		}
	}()

	return ctx
}
