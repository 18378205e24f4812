package persistence

import (
	"bytes"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// codec mirrors the teacher's pkg/e2db gobCodec/encryptedGobCodec split: a
// plain passthrough and an authenticated-encryption variant selected by
// whether the operator configured a snapshot encryption key.
type codec interface {
	encode([]byte) ([]byte, error)
	decode([]byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) encode(b []byte) ([]byte, error) { return b, nil }
func (plainCodec) decode(b []byte) ([]byte, error) { return b, nil }

// secretboxCodec encrypts snapshots at rest with NaCl secretbox, keeping the
// teacher's "*[32]byte key" shape for the encryption key.
type secretboxCodec struct {
	key *[32]byte
}

func newSecretboxCodec(key [32]byte) *secretboxCodec {
	return &secretboxCodec{key: &key}
}

func (c *secretboxCodec) encode(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generating snapshot nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, c.key), nil
}

func (c *secretboxCodec) decode(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, errors.New("snapshot ciphertext shorter than nonce")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, c.key)
	if !ok {
		return nil, errors.New("snapshot decryption failed: wrong key or corrupt data")
	}
	return plaintext, nil
}

// Encrypted wraps an underlying Snapshotter, encrypting what it writes and
// decrypting what it reads, so bbolt or file backends can be made
// confidential without changing their own code.
type Encrypted struct {
	inner Snapshotter
	codec codec
}

// NewEncrypted wraps inner with secretbox encryption under key.
func NewEncrypted(inner Snapshotter, key [32]byte) *Encrypted {
	return &Encrypted{inner: inner, codec: newSecretboxCodec(key)}
}

func (e *Encrypted) Load() (io.ReadCloser, error) {
	r, err := e.inner.Load()
	if err != nil || r == nil {
		return r, err
	}
	defer r.Close()
	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading encrypted snapshot")
	}
	plaintext, err := e.codec.decode(ciphertext)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func (e *Encrypted) Save(r io.Reader) error {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "buffering snapshot for encryption")
	}
	ciphertext, err := e.codec.encode(plaintext)
	if err != nil {
		return err
	}
	return e.inner.Save(bytes.NewReader(ciphertext))
}
