package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	key := make([]byte, 32)
	rand.Read(key)
	os.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))
	if err := InitEncryption(); err != nil {
		panic("Failed to initialize encryption for tests: " + err.Error())
	}
	code := m.Run()
	os.Unsetenv("ENCRYPTION_KEY")
	os.Exit(code)
}

func TestEncryptDecrypt(t *testing.T) {
	t.Run("Should round trip plaintext", func(t *testing.T) {
		for _, plaintext := range []string{
			"my-secret-password",
			"",
			"p@ssw0rd!#$%^&*(){}[]|\\:;<>,.?/~`",
			strings.Repeat("x", 1<<20),
		} {
			encrypted, err := Encrypt(plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, encrypted)

			decrypted, err := Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		}
	})

	t.Run("Should produce distinct ciphertexts for the same plaintext", func(t *testing.T) {
		first, err := Encrypt("password123")
		require.NoError(t, err)
		second, err := Encrypt("password123")
		require.NoError(t, err)

		// the random nonce makes every sealing unique
		assert.NotEqual(t, first, second)
	})

	t.Run("Should reject garbage input", func(t *testing.T) {
		_, err := Decrypt("invalid-base64-data!!!")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode base64")

		_, err = Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ciphertext too short")
	})

	t.Run("Should reject a tampered ciphertext", func(t *testing.T) {
		encrypted, err := Encrypt("integrity matters")
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(encrypted)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff

		_, err = Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.Error(t, err)
	})
}

func TestPasswordHelpers(t *testing.T) {
	t.Run("Should round trip through the password aliases", func(t *testing.T) {
		encrypted, err := EncryptPassword("test-password")
		require.NoError(t, err)
		assert.NotEqual(t, "test-password", encrypted)

		decrypted, err := DecryptPassword(encrypted)
		require.NoError(t, err)
		assert.Equal(t, "test-password", decrypted)
	})
}

func TestKeyDerivation(t *testing.T) {
	t.Run("Should use a 32-byte base64 key as-is", func(t *testing.T) {
		raw := make([]byte, 32)
		rand.Read(raw)
		assert.Equal(t, raw, deriveKey(base64.StdEncoding.EncodeToString(raw)))
	})

	t.Run("Should hash any other material down to 32 bytes", func(t *testing.T) {
		assert.Len(t, deriveKey("test-encryption-key-raw-string"), 32)
		assert.Len(t, deriveKey(base64.StdEncoding.EncodeToString([]byte("too short"))), 32)
	})
}

func TestUninitialized(t *testing.T) {
	t.Run("Should refuse to work without a key", func(t *testing.T) {
		saved := encryptionKey
		encryptionKey = nil
		defer func() { encryptionKey = saved }()

		assert.False(t, IsInitialized())

		_, err := Encrypt("test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption not initialized")

		_, err = Decrypt("test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption not initialized")
	})
}
