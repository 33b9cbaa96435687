package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/teslashibe/go-motionbridge/internal/log"
)

func TestNewTreeDefaults(t *testing.T) {
	tree := NewTree("test", log.Discard(), TreeConfig{})
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}

	custom := NewTree("test", log.Discard(), TreeConfig{FailureBackoff: time.Second})
	if custom.config.FailureBackoff != time.Second {
		t.Errorf("FailureBackoff = %v, want 1s", custom.config.FailureBackoff)
	}
}

func TestTreeStopsOnCancel(t *testing.T) {
	tree := NewTree("test", log.Discard(), TreeConfig{ShutdownTimeout: time.Second})

	var stopped atomic.Bool
	tree.AddBridgeService(NewService("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	}, log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
	if !stopped.Load() {
		t.Error("service was not stopped")
	}
}

func TestFinalServiceTerminatesTree(t *testing.T) {
	tree := NewTree("test", log.Discard(), TreeConfig{ShutdownTimeout: time.Second})

	var loopStopped atomic.Bool
	tree.AddPlayerService(NewService("loop", func(ctx context.Context) error {
		<-ctx.Done()
		loopStopped.Store(true)
		return nil
	}, log.Discard()))
	tree.AddPlayerService(NewFinalService("listener", func(context.Context) error {
		return errors.New("connection lost")
	}, log.Discard()))

	select {
	case err := <-tree.ServeBackground(context.Background()):
		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("Serve() = %v, want ErrTerminateSupervisorTree", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not terminate")
	}
	if !loopStopped.Load() {
		t.Error("sibling service was not stopped")
	}
}

func TestServiceRestartsOnFailure(t *testing.T) {
	tree := NewTree("test", log.Discard(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	var runs atomic.Int32
	tree.AddBridgeService(NewService("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	}, log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want 3", runs.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-errCh
}

func TestServiceString(t *testing.T) {
	svc := NewService("relay", func(context.Context) error { return nil }, log.Discard())
	if svc.String() != "relay" {
		t.Errorf("String() = %q", svc.String())
	}
}
