package mcp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/flemzord/agentmem/internal/tenant"
	"github.com/flemzord/agentmem/pkg/memdb"
)

func TestRun_StopsOnClientDisconnect(t *testing.T) {
	t.Parallel()

	db, err := memdb.NewExact(3)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s := New(Options{Store: tenant.Memory(db), Logger: testLogger()})

	// An immediately-exhausted stdin is a client that connected and hung up.
	var out bytes.Buffer
	if err := s.Run(t.Context(), strings.NewReader(""), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	db, err := memdb.NewExact(3)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s := New(Options{Store: tenant.Memory(db)})
	if s.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}
