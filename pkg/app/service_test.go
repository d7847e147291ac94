package app

import (
	"testing"
	"time"
)

func TestNewService(t *testing.T) {
	svc, err := NewService(RunParams{ConfigPath: "/etc/agentmem/agentmem.yaml"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc == nil {
		t.Fatal("service is nil")
	}
}

func TestProgram_StopSurfacesRunError(t *testing.T) {
	p := &program{
		params: RunParams{ConfigPath: "/nonexistent/config.yaml"},
		stop:   make(chan struct{}),
		errCh:  make(chan error, 1),
	}

	if err := p.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The run loop exits immediately with a config load error; Stop
	// must hand it back to the service manager.
	done := make(chan error, 1)
	go func() { done <- p.Stop(nil) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected config load error from Stop")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
