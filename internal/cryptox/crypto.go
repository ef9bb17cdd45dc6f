// Package cryptox bundles the primitives the anti-tampering core signs and
// encrypts with: argon2/HKDF key derivation, HMAC-SHA256 signatures,
// SHA-256 chain hashes and AES-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
)

// keySalt is fixed: every install derives the same keys from the same secret,
// which is what a shared client-side secret implies.
var keySalt = []byte("scrollkeeper/keys/v1")

var ErrShortCiphertext = errors.New("ciphertext too short")

// Keys holds the sub-keys derived from the configured shared secret.
type Keys struct {
	// MAC signs secure timestamps and time anchors.
	MAC []byte
	// Enc encrypts reading backups.
	Enc []byte
	// Token signs attestation tokens.
	Token []byte
}

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// DeriveKeys stretches secret with argon2id and expands independent
// sub-keys with HKDF-SHA256. The returned master key verifier lets callers
// detect a store opened with a different secret.
func DeriveKeys(secret []byte) (*Keys, []byte, error) {
	if len(secret) == 0 {
		return nil, nil, errors.New("empty secret")
	}
	master := DeriveMasterKey(secret, keySalt)
	defer wipe(master)

	keys := &Keys{}
	for _, sub := range []struct {
		info string
		dst  *[]byte
	}{
		{"mac", &keys.MAC},
		{"enc", &keys.Enc},
		{"token", &keys.Token},
	} {
		k := make([]byte, 32)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(sub.info)), k); err != nil {
			return nil, nil, fmt.Errorf("derive %s key: %w", sub.info, err)
		}
		*sub.dst = k
	}

	return keys, MakeVerifier(master), nil
}

// Wipe zeroes all sub-keys.
func (k *Keys) Wipe() {
	wipe(k.MAC)
	wipe(k.Enc)
	wipe(k.Token)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Sign returns the hex HMAC-SHA256 of parts joined with "|".
func Sign(key []byte, parts ...string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of parts. Malformed
// signatures verify as false.
func Verify(key []byte, signature string, parts ...string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.Join(parts, "|")))
	return hmac.Equal(got, mac.Sum(nil))
}

// Hash returns the hex SHA-256 of parts joined with "|".
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// EncryptEntry serializes the given entry to JSON and encrypts it using AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each encryption. The ciphertext and nonce are
// returned separately.
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptEntry decrypts ciphertext with AES-GCM and unmarshals the resulting
// JSON into v. key and nonce must match the ones used by EncryptEntry.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

// Seal is EncryptEntry packed into a single blob: nonce || ciphertext.
func Seal(entry any, key []byte) ([]byte, error) {
	ciphertext, nonce, err := EncryptEntry(entry, key)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// Open reverses Seal.
func Open(blob, key []byte, v any) error {
	if len(blob) < 12 {
		return ErrShortCiphertext
	}
	return DecryptEntry(blob[12:], blob[:12], key, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
