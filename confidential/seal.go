package confidential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
)

const sealInfo = "zk-kyc:seal:v1"

// SealKey is an X25519 key pair used to seal protected data at rest
type SealKey struct {
	private [32]byte
	Public  []byte
}

// NewSealKey generates a fresh sealing key
func NewSealKey() (*SealKey, error) {
	var k SealKey
	if _, err := io.ReadFull(rand.Reader, k.private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(k.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	k.Public = pub
	return &k, nil
}

// Seal encrypts plaintext to recipient. The output is
// ephemeralPublic(32) || nonce || ciphertext.
func Seal(recipient, plaintext []byte) ([]byte, error) {
	if len(recipient) != curve25519.PointSize {
		return nil, fmt.Errorf("%w: invalid X25519 public key length", models.ErrProtection)
	}
	eph, err := NewSealKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProtection, err)
	}
	gcm, err := sealCipher(eph.private[:], recipient)
	if err != nil {
		return nil, err
	}
	nonce, err := common.GenerateRandomBytes(gcm.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProtection, err)
	}

	out := make([]byte, 0, len(eph.Public)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, eph.Public...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, eph.Public), nil
}

// Open decrypts a Seal output addressed to k
func (k *SealKey) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < curve25519.PointSize {
		return nil, fmt.Errorf("%w: sealed data too short", models.ErrExecution)
	}
	peer := sealed[:curve25519.PointSize]
	gcm, err := sealCipher(k.private[:], peer)
	if err != nil {
		return nil, err
	}
	rest := sealed[curve25519.PointSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", models.ErrExecution)
	}
	nonce, ct := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: unseal: %v", models.ErrExecution, err)
	}
	return pt, nil
}

func sealCipher(private, peer []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(private, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement failed: %v", models.ErrProtection, err)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", models.ErrProtection, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
