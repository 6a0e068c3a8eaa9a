// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAffiliateCode(t *testing.T) {
	code, err := GenerateAffiliateCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	for _, r := range code {
		assert.True(t, (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			"unexpected character %q", r)
	}
}

func TestGenerateAffiliateCodeIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateAffiliateCode(8)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %q after %d draws", code, i)
		seen[code] = true
	}
}

func TestHashString(t *testing.T) {
	a := HashString("input")
	b := HashString("input")
	c := HashString("other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex-encoded sha256
}
