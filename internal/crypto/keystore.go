package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keystoreService = "dqa360-backend"
	keystoreUser    = "encryption-key"
)

// loadOrCreateKey returns the 32-byte key held in the OS keychain, creating
// and storing a fresh one on first run. On Linux without a keyring daemon
// storage can fail; the key is still returned so the process works, it just
// regenerates on the next start. macOS and Windows always have a keychain,
// so a store failure there is a hard error.
func loadOrCreateKey() ([]byte, error) {
	stored, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && stored != "" {
		return []byte(stored), nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Printf("WARNING: Keystore read failed: %v", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, string(key)); err != nil {
		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
		log.Printf("WARNING: Failed to store key in keychain, it will be regenerated on next start: %v", err)
	}

	return key, nil
}

// ResetKey removes the stored key; encrypted profile passwords become
// unreadable after this.
func ResetKey() error {
	err := keyring.Delete(keystoreService, keystoreUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
