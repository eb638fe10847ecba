//go:build !darwin

package vault

// NewSystemStore returns a MemoryStore on non-darwin platforms.
// The macOS Keychain is not available outside of macOS; secrets are
// stored in memory only and will not persist across restarts. Use a
// FileStore for a persistent vault.
func NewSystemStore() (Store, error) {
	return NewMemoryStore(), nil
}
