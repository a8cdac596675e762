package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// PinHashCost is the bcrypt cost factor for PIN hashes. The PIN is a real
// credential (it unlocks activation on a new install), so it gets a slow
// hash even though it is only six digits.
const PinHashCost = 10

// HashPIN hashes a PIN using bcrypt with a per-call random salt.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), PinHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPIN verifies a PIN against its stored hash. A mismatch returns
// false, never an error.
func VerifyPIN(pin, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
