package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar holds the at-rest encryption key for state
	// records. When unset, records are stored in the clear.
	EncryptionKeyEnvVar = "VAPORDECK_STATE_KEY"

	encryptedHeader = "# VAPORDECK_ENCRYPTED_STATE\n"
)

// encryptRecord seals a serialized record with AES-256-GCM when an
// encryption key is configured; otherwise it returns the content
// unchanged. Fingerprints are always computed over the plaintext, so
// encryption is invisible to optimistic concurrency.
func encryptRecord(content []byte) ([]byte, error) {
	key := encryptionKey()
	if key == nil {
		return content, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, content, nil)
	encoded := base64.StdEncoding.EncodeToString(sealed)
	return []byte(encryptedHeader + encoded + "\n"), nil
}

// decryptRecord opens an encrypted record, or returns the content
// unchanged when it carries no encryption header.
func decryptRecord(content []byte) ([]byte, error) {
	if !isEncrypted(content) {
		return content, nil
	}

	key := encryptionKey()
	if key == nil {
		return nil, fmt.Errorf("record is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	encoded := strings.TrimPrefix(string(content), encryptedHeader)
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode encrypted record: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted record is truncated")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt record (wrong key?): %w", err)
	}
	return plain, nil
}

func isEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}

// encryptionKey derives a 32-byte AES key from the environment, or nil
// when encryption is not configured. Shorter keys are zero-padded.
func encryptionKey() []byte {
	raw := os.Getenv(EncryptionKeyEnvVar)
	if raw == "" {
		return nil
	}
	key := make([]byte, 32)
	copy(key, raw)
	return key
}
