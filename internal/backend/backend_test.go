package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/benaskins/secretkit/internal/config"
	"github.com/benaskins/secretkit/vault"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Backend = backend
	return cfg
}

func TestOpenMemoryIsAudited(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	b, err := Open(cfg, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := b.Store.(*vault.AuditedStore); !ok {
		t.Errorf("expected audited store, got %T", b.Store)
	}
	if _, err := b.Store.CreateCollection(context.Background(), "Login", vault.DefaultAlias); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(cfg.AuditLog)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected an audit entry")
	}
}

func TestOpenWithoutAuditLog(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.AuditLog = ""
	b, err := Open(cfg, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Store.(*vault.MemoryStore); !ok {
		t.Errorf("expected bare memory store, got %T", b.Store)
	}
}

func TestOpenFileGeneratesIdentityOnce(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)

	b, err := Open(cfg, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.File == nil {
		t.Fatal("expected file store to be exposed")
	}
	ctx := context.Background()
	if _, err := b.Store.CreateCollection(ctx, "Login", vault.DefaultAlias); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	b.Close()

	identity, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		t.Fatalf("identity not written: %v", err)
	}

	b, err = Open(cfg, "test")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if _, err := b.Store.ResolveAlias(ctx, vault.DefaultAlias); err != nil {
		t.Errorf("expected collection to survive reopen: %v", err)
	}

	again, _ := os.ReadFile(cfg.IdentityFile)
	if string(again) != string(identity) {
		t.Error("identity should not be regenerated")
	}
}

func TestOpenRemoteIsNotAudited(t *testing.T) {
	cfg := testConfig(t, config.BackendRemote)
	b, err := Open(cfg, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Store.(*vault.RemoteStore); !ok {
		t.Errorf("expected remote store, got %T", b.Store)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "dbus")
	if _, err := Open(cfg, "test"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
