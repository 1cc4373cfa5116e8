package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// exit is replaced in tests.
var exit = os.Exit

// SetupSignalHandler returns a context that is cancelled on the first
// SIGINT or SIGTERM. A second signal exits the process with status 1.
// The returned stop function releases the signal handler.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, shutdownSignals...)

	stopped := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case <-stopped:
			return
		}

		select {
		case sig := <-sigChan:
			slog.Error("received second signal, exiting immediately", "signal", sig.String())
			exit(1)
		case <-stopped:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(stopped)
			cancel()
		})
	}
	return ctx, stop
}
