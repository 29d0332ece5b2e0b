// Package hash derives stable hex keys from byte parts, e.g. idempotency keys of outbox records.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

type Hash struct {
	hash hash.Hash
}

func NewHash(hash hash.Hash) *Hash {
	return &Hash{
		hash: hash,
	}
}

// Key returns the hex digest of everything written so far.
func (h *Hash) Key() string {
	return hex.EncodeToString(h.hash.Sum(nil))
}

func (h *Hash) Write(args ...[]byte) error {
	for _, arg := range args {
		_, err := h.hash.Write(arg)
		if err != nil {
			return err
		}
	}

	return nil
}

// SHA256Key hashes parts in order. Callers separate variable length parts themselves.
func SHA256Key(parts ...[]byte) (string, error) {
	h := NewHash(sha256.New())
	if err := h.Write(parts...); err != nil {
		return "", err
	}

	return h.Key(), nil
}
