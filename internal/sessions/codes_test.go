package sessions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeLength(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	code, err = GenerateCode(10)
	require.NoError(t, err)
	assert.Len(t, code, 10)
}

func TestGenerateCodeDefaultsLength(t *testing.T) {
	code, err := GenerateCode(0)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	code, err = GenerateCode(-3)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestGenerateCodeUsesAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(8)
		require.NoError(t, err)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q in %q", r, code)
		}
	}
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(8)
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}
