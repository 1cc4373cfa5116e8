package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler_NotCancelledInitially(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSetupSignalHandler_StopCancels(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	stop()
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Expected stop to cancel the context")
	}
}

func TestSetupSignalHandler_ParentCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Expected parent cancellation to propagate")
	}
}

func TestSetupSignalHandler_Signals(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping signal test in short mode")
	}

	exited := make(chan int, 1)
	exit = func(code int) { exited <- code }
	defer func() { exit = os.Exit }()

	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	p, _ := os.FindProcess(os.Getpid())
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Failed to signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Expected first signal to cancel the context")
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Failed to signal: %v", err)
	}

	select {
	case code := <-exited:
		if code != 1 {
			t.Errorf("Expected exit status 1, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected second signal to exit")
	}
}
