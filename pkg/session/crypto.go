package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	keyBytes   = 32 // AES-256
	nonceBytes = 12 // GCM standard nonce size
)

// sealedSecret holds an AES-256-GCM encrypted client secret.
type sealedSecret struct {
	ciphertext []byte // includes GCM tag
	nonce      []byte
}

// newKey generates a random per-process sealing key. It never leaves memory.
func newKey() ([]byte, error) {
	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext with a fresh random nonce. The session id is bound
// as additional data so a sealed secret cannot be moved to another session.
func seal(key []byte, plaintext, ad []byte) (*sealedSecret, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &sealedSecret{
		ciphertext: gcm.Seal(nil, nonce, plaintext, ad),
		nonce:      nonce,
	}, nil
}

func open(key []byte, s *sealedSecret, ad []byte) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, s.nonce, s.ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong key or tampered data): %w", err)
	}
	return plaintext, nil
}
