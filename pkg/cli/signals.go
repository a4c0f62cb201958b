package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler creates a context that is canceled on SIGINT or SIGTERM.
// A second signal exits the process without waiting for shutdown.
func SetupSignalHandler() context.Context {
	return setupSignalHandler(func() { os.Exit(1) })
}

func setupSignalHandler(forceExit func()) context.Context {
	ctx, cancel := context.WithCancelCause(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel(&SignalError{Signal: sig})

		sig = <-sigChan
		slog.Warn("received second signal, exiting immediately", "signal", sig.String())
		signal.Stop(sigChan)
		forceExit()
	}()

	return ctx
}

// SignalError is the cancellation cause of a signal-handler context.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return "received signal " + e.Signal.String()
}
