package uid

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := New()
		require.Len(t, u, Length)
		require.True(t, Pattern.MatchString(u), "uid %q does not match pattern", u)

		// Prefix is the truncated md5 of the token itself
		token := u[PrefixLength:]
		sum := md5.Sum([]byte(token))
		require.Equal(t, hex.EncodeToString(sum[:])[:PrefixLength], u[:PrefixLength])
	}
}

func TestNewUnique(t *testing.T) {
	const n = 100_000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		u := New()
		if _, dup := seen[u]; dup {
			t.Fatalf("collision after %d uids: %s", i, u)
		}
		seen[u] = struct{}{}
	}
}

func TestTokenAlphabet(t *testing.T) {
	require.Len(t, Alphabet, 57)

	for i := 0; i < 100; i++ {
		token := New()[PrefixLength:]
		for _, c := range token {
			require.True(t, strings.ContainsRune(Alphabet, c),
				"token character %q outside alphabet", c)
		}
	}
}

// The hash prefix should vary highly across successive uids so that
// prefix-ordered media do not hot-partition on insertion order.
func TestPrefixSpread(t *testing.T) {
	first := make(map[byte]int)
	const n = 1600
	for i := 0; i < n; i++ {
		first[New()[0]]++
	}
	// 16 hex symbols; with 1600 draws each should appear at least once and
	// none should dominate.
	require.Len(t, first, 16)
	for c, count := range first {
		require.Less(t, count, n/4, "prefix byte %q dominates distribution", c)
	}
}

func TestValid(t *testing.T) {
	require.True(t, Valid(New()))
	require.False(t, Valid(""))
	require.False(t, Valid(strings.Repeat("g", Length)))          // bad hex prefix
	require.False(t, Valid("0123456789"+strings.Repeat("0", 22))) // 0 not in alphabet
}

func BenchmarkNew(b *testing.B) {
	for i := 0; i < b.N; i++ {
		New()
	}
}
