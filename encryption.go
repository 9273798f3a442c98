package coingift

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
)

const (
	// secretKeyLen is the length of the redeem secret in bytes.
	secretKeyLen = 32

	// secretIVLen is the length of the nonce that is prepended to the
	// ciphertext. The nonce is not secret, but must be unique per
	// encryption.
	secretIVLen = 16
)

var (
	// ErrCiphertextInvalid is returned when an encrypted secret cannot be
	// decrypted. This covers truncated ciphertext, tampering and wrong
	// keys alike.
	ErrCiphertextInvalid = errors.New("encrypted secret invalid")
)

// PreimageEncryption is the result of splitting a payment preimage into a
// storable ciphertext and a caller-held decryption key. Only the
// ciphertext is ever persisted; whoever holds the key holds the gift.
type PreimageEncryption struct {
	// Key is the redeem secret that is handed to the caller.
	Key [secretKeyLen]byte

	// Encrypted is the nonce-prefixed ciphertext.
	Encrypted []byte
}

// EncryptPreimage encrypts a payment preimage under a fresh random
// 256-bit key with AES-GCM. The returned ciphertext carries the 16-byte
// nonce as a prefix so that it is fully self-contained. An authenticated
// mode is used so that tampered or mismatched ciphertext is detected at
// decrypt time rather than yielding garbage.
func EncryptPreimage(preimage lntypes.Preimage) (*PreimageEncryption,
	error) {

	var key [secretKeyLen]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}

	var nonce [secretIVLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	aead, err := newSecretCipher(key)
	if err != nil {
		return nil, err
	}

	encrypted := make([]byte, secretIVLen, secretIVLen+len(preimage)+
		aead.Overhead())
	copy(encrypted, nonce[:])
	encrypted = aead.Seal(encrypted, nonce[:], preimage[:], nil)

	return &PreimageEncryption{
		Key:       key,
		Encrypted: encrypted,
	}, nil
}

// DecryptPreimage reverses EncryptPreimage: the first 16 bytes of the
// stored blob are the nonce, the remainder is the ciphertext.
func DecryptPreimage(encrypted []byte, key [secretKeyLen]byte) (
	lntypes.Preimage, error) {

	if len(encrypted) <= secretIVLen {
		return lntypes.Preimage{}, ErrCiphertextInvalid
	}

	nonce, ciphertext := encrypted[:secretIVLen], encrypted[secretIVLen:]

	aead, err := newSecretCipher(key)
	if err != nil {
		return lntypes.Preimage{}, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return lntypes.Preimage{}, ErrCiphertextInvalid
	}

	preimage, err := lntypes.MakePreimage(plaintext)
	if err != nil {
		return lntypes.Preimage{}, fmt.Errorf("%w: %v",
			ErrCiphertextInvalid, err)
	}

	return preimage, nil
}

func newSecretCipher(key [secretKeyLen]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	return cipher.NewGCMWithNonceSize(block, secretIVLen)
}
