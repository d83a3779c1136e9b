// Package secret implements AES-GCM encryption for values persisted at rest,
// such as agent passwords. The encryption key is derived from the server's
// JWT secret (itself a bcrypt hash), so it becomes available the moment
// setup completes and never needs its own storage.
package secret

import (
    "crypto/aes"
    "crypto/cipher"
    "crypto/rand"
    "crypto/sha256"
    "encoding/base64"
    "errors"
    "fmt"
    "strings"
)

// encPrefix tags ciphertext so it can be told apart from legacy plaintext
// rows written before encryption was introduced.
const encPrefix = "enc:"

// DeriveKey turns the server's JWT secret into a 32-byte AES-256 key.
func DeriveKey(jwtSecret string) []byte {
    sum := sha256.Sum256([]byte(jwtSecret))
    return sum[:]
}

// Encrypt seals plaintext with AES-GCM under key, returning a base64 string
// prefixed with encPrefix. Each call uses a fresh random nonce, so repeated
// encryptions of the same plaintext never produce identical ciphertext.
func Encrypt(plaintext string, key []byte) (string, error) {
    block, err := aes.NewCipher(key)
    if err != nil {
        return "", fmt.Errorf("new cipher: %w", err)
    }
    gcm, err := cipher.NewGCM(block)
    if err != nil {
        return "", fmt.Errorf("new gcm: %w", err)
    }

    nonce := make([]byte, gcm.NonceSize())
    if _, err := rand.Read(nonce); err != nil {
        return "", fmt.Errorf("read nonce: %w", err)
    }

    sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
    return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. If value lacks the encryption prefix it is
// treated as legacy plaintext and returned unchanged.
func Decrypt(value string, key []byte) (string, error) {
    if !IsEncrypted(value) {
        return value, nil
    }

    raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
    if err != nil {
        return "", fmt.Errorf("decode ciphertext: %w", err)
    }

    block, err := aes.NewCipher(key)
    if err != nil {
        return "", fmt.Errorf("new cipher: %w", err)
    }
    gcm, err := cipher.NewGCM(block)
    if err != nil {
        return "", fmt.Errorf("new gcm: %w", err)
    }

    if len(raw) < gcm.NonceSize() {
        return "", errors.New("ciphertext too short")
    }
    nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

    plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
    if err != nil {
        return "", fmt.Errorf("decrypt: %w", err)
    }
    return string(plaintext), nil
}

// IsEncrypted reports whether value carries the encryption tag.
func IsEncrypted(value string) bool {
    return strings.HasPrefix(value, encPrefix)
}
