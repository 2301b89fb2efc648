// Package crypto encrypts connection profile passwords with AES-256-GCM.
// The key lives in the OS keychain; ENCRYPTION_KEY overrides it for
// development and CI.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

var encryptionKey []byte

// InitEncryption resolves the process-wide encryption key. ENCRYPTION_KEY
// wins when set (base64 preferred, any other string is hashed down to 32
// bytes); otherwise the key comes from the keychain, generated on first run.
func InitEncryption() error {
	if env := os.Getenv("ENCRYPTION_KEY"); env != "" {
		encryptionKey = deriveKey(env)
		return nil
	}

	key, err := loadOrCreateKey()
	if err != nil {
		return fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	encryptionKey = key
	return nil
}

// deriveKey turns arbitrary key material into exactly 32 bytes. A base64
// string decoding to 32 bytes is used as-is; everything else is SHA-256'd.
func deriveKey(material string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(material); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:]
}

// IsInitialized reports whether a key has been resolved
func IsInitialized() bool {
	return len(encryptionKey) > 0
}

func aead() (cipher.AEAD, error) {
	if len(encryptionKey) == 0 {
		return nil, errors.New("encryption not initialized")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-256-GCM and returns base64 text with the
// nonce prepended, suitable for a DB column.
func Encrypt(plaintext string) (string, error) {
	gcm, err := aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func Decrypt(encoded string) (string, error) {
	gcm, err := aead()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// EncryptPassword encrypts a DHIS2 instance password before it is stored in
// a connection profile
func EncryptPassword(password string) (string, error) {
	return Encrypt(password)
}

// DecryptPassword recovers a stored DHIS2 instance password
func DecryptPassword(encrypted string) (string, error) {
	return Decrypt(encrypted)
}
