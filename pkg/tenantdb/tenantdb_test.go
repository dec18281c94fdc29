package tenantdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "hangardb_alice", DatabaseName("alice"))
	assert.Equal(t, "hangardb_bob_42", DatabaseName("bob_42"))
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, p, passwordLength)

	for _, r := range p {
		assert.True(t, strings.ContainsRune(passwordAlphabet, r), "unexpected rune %q", r)
	}

	// No single quote can ever appear, so the CREATE USER escaping rule is
	// only a belt-and-suspenders for externally supplied passwords.
	assert.NotContains(t, p, "'")
}

func TestGeneratePasswordUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p, err := GeneratePassword()
		require.NoError(t, err)
		require.False(t, seen[p], "duplicate password generated")
		seen[p] = true
	}
}
