// Package crypto implements the envelope-encryption scheme used to store
// OAuth access and refresh tokens at rest, with key-rotation support.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	frameVersion = 1
	nonceSize    = 12
	keyIDBytes   = 8

	defaultRotationIntervalDays = 90
	defaultMaxHistoricalKeys    = 5
)

// KeyRotationConfig controls how aggressively keys are rotated and how
// many retired keys remain available for decrypting older ciphertext.
type KeyRotationConfig struct {
	RotationInterval  time.Duration
	MaxHistoricalKeys int
}

// DefaultKeyRotationConfig mirrors the envelope cipher's defaults: rotate
// every 90 days, keep 5 historical keys around for decryption.
func DefaultKeyRotationConfig() KeyRotationConfig {
	return KeyRotationConfig{
		RotationInterval:  defaultRotationIntervalDays * 24 * time.Hour,
		MaxHistoricalKeys: defaultMaxHistoricalKeys,
	}
}

// TokenCipher encrypts and decrypts OAuth tokens with AES-256-GCM,
// stamping each ciphertext with a key id so that rotating the active key
// never breaks decryption of previously-written data.
//
// Ciphertext layout (version 1): version(1) ‖ key_id_len(1) ‖ key_id ‖
// nonce(12) ‖ aead_ciphertext. A bare nonce‖ciphertext blob with no
// version byte (or a leading byte that isn't 1) is treated as the legacy,
// unlabeled format and is tried against every known key.
type TokenCipher struct {
	mu              sync.RWMutex
	currentAEAD     cipher.AEAD
	currentKeyID    string
	historicalAEADs *lru.Cache[string, cipher.AEAD]
	keyOrder        []string
	rotation        KeyRotationConfig
	lastRotation    time.Time
}

// NewTokenCipher builds a cipher from a raw 32-byte key, panicking if the
// key is the wrong size: this is a construction-time misconfiguration,
// not a runtime condition callers can recover from.
func NewTokenCipher(key []byte, rotation KeyRotationConfig) *TokenCipher {
	aead, err := newAEAD(key)
	if err != nil {
		panic(fmt.Sprintf("crypto: %v", err))
	}
	cache, err := lru.New[string, cipher.AEAD](max(rotation.MaxHistoricalKeys, 1))
	if err != nil {
		panic(fmt.Sprintf("crypto: historical key cache: %v", err))
	}
	return &TokenCipher{
		currentAEAD:     aead,
		currentKeyID:    keyID(key),
		historicalAEADs: cache,
		rotation:        rotation,
	}
}

// NewTokenCipherFromBase64 decodes a base64-encoded 32-byte key, as read
// from the OAUTH_ENCRYPTION_KEY configuration value. Panics on a
// malformed or wrong-length key, same as NewTokenCipher.
func NewTokenCipherFromBase64(keyBase64 string, rotation KeyRotationConfig) *TokenCipher {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		panic(fmt.Sprintf("crypto: invalid OAUTH_ENCRYPTION_KEY: %v", err))
	}
	return NewTokenCipher(key, rotation)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (256 bits), got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM mode: %w", err)
	}
	return aead, nil
}

func keyID(key []byte) string {
	sum := sha256.Sum256(key)
	return base64.StdEncoding.EncodeToString(sum[:keyIDBytes])
}

// GenerateKey returns a fresh random 32-byte key suitable for
// NewTokenCipher or rotation.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// GenerateKeyBase64 is GenerateKey, base64-encoded for dropping straight
// into OAUTH_ENCRYPTION_KEY.
func GenerateKeyBase64() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt encrypts plaintext with the current key, framing the result
// with a version byte and the current key's id so future rotations can
// still decrypt it.
func (c *TokenCipher) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	aead := c.currentAEAD
	keyID := c.currentKeyID
	c.mu.RUnlock()

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	keyIDBytes := []byte(keyID)
	out := make([]byte, 0, 2+len(keyIDBytes)+nonceSize+len(ciphertext))
	out = append(out, frameVersion)
	out = append(out, byte(len(keyIDBytes)))
	out = append(out, keyIDBytes...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// EncryptString is Encrypt for a string plaintext, the common case for
// OAuth tokens.
func (c *TokenCipher) EncryptString(plaintext string) ([]byte, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt reverses Encrypt. Data whose first byte is the version tag is
// decrypted with the key its frame names (current or historical); any
// other data is read as the unversioned legacy layout and tried against
// every known key.
func (c *TokenCipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("encrypted data is empty")
	}

	if data[0] == frameVersion {
		return c.decryptVersioned(data)
	}
	return c.decryptLegacy(data)
}

// DecryptString is Decrypt returning a string, for the common OAuth
// token case.
func (c *TokenCipher) DecryptString(data []byte) (string, error) {
	plaintext, err := c.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *TokenCipher) decryptVersioned(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("versioned encrypted data too short")
	}
	keyIDLen := int(data[1])
	if len(data) < 2+keyIDLen+nonceSize {
		return nil, fmt.Errorf("versioned encrypted data incomplete")
	}

	keyID := string(data[2 : 2+keyIDLen])
	rest := data[2+keyIDLen:]
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	c.mu.RLock()
	current := c.currentAEAD
	currentKeyID := c.currentKeyID
	c.mu.RUnlock()

	if keyID == currentKeyID {
		plaintext, err := current.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypting with current key: %w", err)
		}
		return plaintext, nil
	}

	c.mu.RLock()
	historical, ok := c.historicalAEADs.Peek(keyID)
	c.mu.RUnlock()
	if ok {
		plaintext, err := historical.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypting with historical key %s: %w", keyID, err)
		}
		return plaintext, nil
	}

	return nil, fmt.Errorf("no key found for key id %q", keyID)
}

func (c *TokenCipher) decryptLegacy(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, fmt.Errorf("legacy encrypted data too short to contain a nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	c.mu.RLock()
	defer c.mu.RUnlock()

	if plaintext, err := c.currentAEAD.Open(nil, nonce, ciphertext, nil); err == nil {
		return plaintext, nil
	}
	for _, id := range c.historicalAEADs.Keys() {
		aead, ok := c.historicalAEADs.Peek(id)
		if !ok {
			continue
		}
		if plaintext, err := aead.Open(nil, nonce, ciphertext, nil); err == nil {
			return plaintext, nil
		}
	}
	return nil, fmt.Errorf("legacy token decryption failed with all available keys")
}

// RotateKey retires the current key into the historical set and makes
// newKey the active encryption key. Historical keys beyond
// MaxHistoricalKeys are evicted oldest-first.
func (c *TokenCipher) RotateKey(newKey []byte) error {
	aead, err := newAEAD(newKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldKeyID := c.currentKeyID
	c.historicalAEADs.Add(oldKeyID, c.currentAEAD)
	c.keyOrder = append(c.keyOrder, oldKeyID)
	for len(c.keyOrder) > c.rotation.MaxHistoricalKeys {
		evict := c.keyOrder[0]
		c.keyOrder = c.keyOrder[1:]
		c.historicalAEADs.Remove(evict)
	}

	c.currentAEAD = aead
	c.currentKeyID = keyID(newKey)
	c.lastRotation = time.Now()
	return nil
}

// NeedsRotation reports whether RotationInterval has elapsed since the
// last rotation. It is always true before the first rotation.
func (c *TokenCipher) NeedsRotation() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRotation.IsZero() {
		return true
	}
	return time.Now().After(c.lastRotation.Add(c.rotation.RotationInterval))
}

// CurrentKeyID returns the id of the key currently used for encryption.
func (c *TokenCipher) CurrentKeyID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentKeyID
}

// HistoricalKeyCount returns the number of retired keys still held for
// decryption.
func (c *TokenCipher) HistoricalKeyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historicalAEADs.Len()
}

// ReEncrypt decrypts data with whatever key produced it and re-encrypts
// it with the current key, for migrating stored tokens after rotation.
func (c *TokenCipher) ReEncrypt(data []byte) ([]byte, error) {
	plaintext, err := c.Decrypt(data)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext)
}
