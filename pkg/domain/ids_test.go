package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "covault/pkg/domain-errors"
)

// TestParsePrincipal_Invariants validates the parsing invariant:
// "principals must be non-empty, canonical identities".
func TestParsePrincipal_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePrincipal("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPrincipal))
	})

	t.Run("rejects whitespace only", func(t *testing.T) {
		_, err := ParsePrincipal("   \t")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPrincipal))
	})

	t.Run("rejects oversized identity", func(t *testing.T) {
		_, err := ParsePrincipal(strings.Repeat("a", MaxPrincipalLen+1))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPrincipal))
	})

	t.Run("canonicalizes case and whitespace", func(t *testing.T) {
		p, err := ParsePrincipal("  0xABCDef01  ")
		require.NoError(t, err)
		assert.Equal(t, Principal("0xabcdef01"), p)
	})

	t.Run("two spellings collapse to one identity", func(t *testing.T) {
		a, err := ParsePrincipal("0xAAAA")
		require.NoError(t, err)
		b, err := ParsePrincipal(" 0xaaaa")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestParseEntryIndex(t *testing.T) {
	t.Run("parses decimal index", func(t *testing.T) {
		i, err := ParseEntryIndex("42")
		require.NoError(t, err)
		assert.Equal(t, EntryIndex(42), i)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := ParseEntryIndex("-1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseEntryIndex("abc")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("round trips through String", func(t *testing.T) {
		i, err := ParseEntryIndex(EntryIndex(7).String())
		require.NoError(t, err)
		assert.Equal(t, EntryIndex(7), i)
	})
}
