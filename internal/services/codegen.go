package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Characters for UID generation (excluding confusing chars: I, O, 0, 1)
const (
	UIDPrefix   = "NVP-"
	UIDLength   = 6
	uidAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewUID returns a random UID in format NVP-XXXXXX. Uniqueness is not
// guaranteed here; callers check the store and retry on collision.
// The 32-symbol alphabet divides 256 evenly, so byte modulo stays uniform.
func NewUID() (string, error) {
	buf := make([]byte, UIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate uid: %w", err)
	}
	out := make([]byte, UIDLength)
	for i, b := range buf {
		out[i] = uidAlphabet[int(b)%len(uidAlphabet)]
	}
	return UIDPrefix + string(out), nil
}

// NewPIN returns a random 6-digit PIN in [100000, 999999].
func NewPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
