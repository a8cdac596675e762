package services

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUIDFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		uid, err := NewUID()
		require.NoError(t, err)

		assert.Len(t, uid, len(UIDPrefix)+UIDLength)
		assert.True(t, strings.HasPrefix(uid, UIDPrefix))

		// Only the unambiguous alphabet: no I, O, 0 or 1.
		for _, c := range uid[len(UIDPrefix):] {
			assert.Contains(t, uidAlphabet, string(c))
		}
	}
}

func TestNewPINRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		pin, err := NewPIN()
		require.NoError(t, err)
		require.Len(t, pin, 6)

		n, err := strconv.Atoi(pin)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}
