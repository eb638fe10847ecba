package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"
)

const watchDebounce = 250 * time.Millisecond

// FileStore keeps a MemoryStore in sync with a snapshot file. With an
// identity configured the snapshot is age-encrypted to that identity.
type FileStore struct {
	mem      *MemoryStore
	path     string
	identity *age.X25519Identity
	logger   *slog.Logger

	// mu serializes mutations with their save so the file always reflects
	// a state the memory store actually held.
	mu         sync.Mutex
	lastDigest [32]byte
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithIdentity encrypts the vault file to identity.
func WithIdentity(identity *age.X25519Identity) FileOption {
	return func(s *FileStore) {
		s.identity = identity
	}
}

// WithLogger sets the logger used for reload diagnostics.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// OpenFileStore loads the vault at path, creating an empty one if the file
// does not exist yet.
func OpenFileStore(path string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{
		mem:    NewMemoryStore(),
		path:   path,
		logger: slog.With("component", "vault"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating vault dir: %w", err)
	}
	if _, err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the vault file path.
func (s *FileStore) Path() string { return s.path }

// reload reads the vault file into memory. It reports whether the contents
// changed since the last load or save.
func (s *FileStore) reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path)
	if err != nil {
		return false, err
	}
	defer unlock()
	return s.load()
}

// load replaces the memory store with the file's contents unless the file
// is the one last loaded or saved. Callers hold s.mu and the file lock.
func (s *FileStore) load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading vault: %w", err)
	}

	digest := blake3.Sum256(data)
	if digest == s.lastDigest {
		return false, nil
	}

	plain, err := s.open(data)
	if err != nil {
		return false, err
	}
	var snap snapshot
	if err := unmarshal(plain, &snap); err != nil {
		return false, fmt.Errorf("decoding vault %s: %w", s.path, err)
	}
	if snap.Version != snapshotVersion {
		return false, fmt.Errorf("vault %s: unsupported version %d", s.path, snap.Version)
	}
	s.mem.restore(snap)
	s.lastDigest = digest
	return true, nil
}

func (s *FileStore) open(data []byte) ([]byte, error) {
	if s.identity == nil {
		return data, nil
	}
	r, err := age.Decrypt(bytes.NewReader(data), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting vault: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted vault: %w", err)
	}
	return plain, nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	if s.identity == nil {
		return plain, nil
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypting vault: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing vault encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// save writes the memory store to the file. Callers hold s.mu and the
// file lock.
func (s *FileStore) save() error {
	plain, err := marshal(s.mem.snapshot())
	if err != nil {
		return fmt.Errorf("encoding vault: %w", err)
	}
	data, err := s.seal(plain)
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	s.lastDigest = blake3.Sum256(data)
	return nil
}

// mutate applies fn to the memory store and persists the result, rolling
// the memory store back if the save fails. The file lock is held from the
// reload through the rename, so writes from other processes sharing the
// file are picked up rather than overwritten.
func (s *FileStore) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.load(); err != nil {
		return err
	}

	before := s.mem.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := s.save(); err != nil {
		s.mem.restore(before)
		return fmt.Errorf("saving vault: %w", err)
	}
	return nil
}

func (s *FileStore) Collections(ctx context.Context) ([]CollectionRecord, error) {
	return s.mem.Collections(ctx)
}

func (s *FileStore) CreateCollection(ctx context.Context, label, alias string) (CollectionRecord, error) {
	var c CollectionRecord
	err := s.mutate(func() error {
		var err error
		c, err = s.mem.CreateCollection(ctx, label, alias)
		return err
	})
	return c, err
}

func (s *FileStore) DeleteCollection(ctx context.Context, id string) error {
	return s.mutate(func() error {
		return s.mem.DeleteCollection(ctx, id)
	})
}

func (s *FileStore) ResolveAlias(ctx context.Context, alias string) (CollectionRecord, error) {
	return s.mem.ResolveAlias(ctx, alias)
}

func (s *FileStore) SetLocked(ctx context.Context, id string, locked bool) error {
	return s.mutate(func() error {
		return s.mem.SetLocked(ctx, id, locked)
	})
}

func (s *FileStore) CreateItem(ctx context.Context, item ItemRecord, replace bool) (ItemRecord, error) {
	var created ItemRecord
	err := s.mutate(func() error {
		var err error
		created, err = s.mem.CreateItem(ctx, item, replace)
		return err
	})
	return created, err
}

func (s *FileStore) DeleteItem(ctx context.Context, collection, id string) error {
	return s.mutate(func() error {
		return s.mem.DeleteItem(ctx, collection, id)
	})
}

func (s *FileStore) Search(ctx context.Context, q Query) ([]ItemRecord, error) {
	return s.mem.Search(ctx, q)
}

func (s *FileStore) Close() error { return nil }

// Watch reloads the vault whenever another process replaces the file.
// It blocks until the context is cancelled.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Writes land via rename, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	s.logger.Info("watching vault for changes", "path", s.path)

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				changed, err := s.reload()
				if err != nil {
					s.logger.Error("vault reload failed", "path", s.path, "error", err)
					return
				}
				if changed {
					s.logger.Info("vault reloaded after external change", "path", s.path)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("vault watcher error", "error", err)
		}
	}
}

// LoadIdentity reads an age X25519 identity file.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing identity %s: %w", path, err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("identity %s: no X25519 identity found", path)
}

// GenerateIdentity creates a new identity file at path, refusing to
// overwrite an existing one.
func GenerateIdentity(path string) (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# created: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# public key: %s\n", identity.Recipient())
	fmt.Fprintf(&b, "%s\n", identity)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return identity, nil
}
