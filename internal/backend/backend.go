// Package backend opens the vault.Store a configuration selects.
package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"filippo.io/age"

	"github.com/benaskins/secretkit/internal/audit"
	"github.com/benaskins/secretkit/internal/config"
	"github.com/benaskins/secretkit/vault"
)

// Backend is an open store plus whatever must be closed with it.
type Backend struct {
	Store vault.Store
	// File is set for the file backend so callers can watch it.
	File *vault.FileStore

	auditLog *audit.Logger
}

// Open builds the store selected by cfg. Local stores are wrapped in an
// audit log attributed to actor; the remote store is audited by the daemon
// serving it.
func Open(cfg *config.Config, actor string) (*Backend, error) {
	b := &Backend{}
	logger := slog.With("component", "backend")

	switch cfg.Backend {
	case config.BackendMemory:
		b.Store = vault.NewMemoryStore()
	case config.BackendKeychain:
		store, err := vault.NewSystemStore()
		if err != nil {
			return nil, err
		}
		b.Store = store
	case config.BackendFile:
		identity, err := loadOrCreateIdentity(cfg.IdentityFile, logger)
		if err != nil {
			return nil, err
		}
		fileStore, err := vault.OpenFileStore(cfg.VaultPath, vault.WithIdentity(identity), vault.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.Store = fileStore
		b.File = fileStore
	case config.BackendRemote:
		var opts []vault.RemoteOption
		if cfg.RateLimit > 0 {
			opts = append(opts, vault.WithRateLimit(cfg.RateLimit, int(cfg.RateLimit)+1))
		}
		b.Store = vault.NewRemoteStore(cfg.SocketPath, opts...)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.AuditLog != "" {
		auditLog, err := audit.NewLogger(cfg.AuditLog)
		if err != nil {
			b.Store.Close()
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		b.auditLog = auditLog
		b.Store = vault.NewAuditedStore(b.Store, auditLog, actor)
	}
	logger.Debug("backend open", "backend", cfg.Backend, "actor", actor)
	return b, nil
}

// Close closes the store and the audit log.
func (b *Backend) Close() error {
	err := b.Store.Close()
	if b.auditLog != nil {
		if cerr := b.auditLog.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func loadOrCreateIdentity(path string, logger *slog.Logger) (*age.X25519Identity, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Info("generating vault identity", "path", path)
		return vault.GenerateIdentity(path)
	}
	return vault.LoadIdentity(path)
}
