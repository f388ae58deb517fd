// Package uid generates content-addressing identifiers for stored blobs.
//
// A uid is 32 characters: a 22-character random token drawn from a 57-symbol
// alphabet, prefixed with the first 10 hex characters of the token's own MD5.
// The prefix exists solely to randomize the leading bytes of the key so blobs
// spread evenly across prefix-ordered storage media; collision resistance
// comes from the token's ~128 bits of entropy, not from the hash.
package uid

import (
	"crypto/md5"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Alphabet is the 57-symbol token alphabet: digits, upper and lower case
// letters with the visually ambiguous 0, 1, I, O and l removed.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const (
	// PrefixLength is the number of hex characters prepended to the token
	PrefixLength = 10
	// TokenLength is the number of alphabet characters in the random token
	TokenLength = 22
	// Length is the total uid length
	Length = PrefixLength + TokenLength
)

// Pattern matches well-formed uids.
var Pattern = regexp.MustCompile(`^[0-9a-f]{10}[2-9A-HJ-NP-Za-km-z]{22}$`)

// New returns a fresh uid. It never fails; exhausting the system entropy
// source is treated as unrecoverable and panics.
func New() string {
	token := randomToken()
	sum := md5.Sum(token)
	return hex.EncodeToString(sum[:])[:PrefixLength] + string(token)
}

// Valid reports whether s is a well-formed uid.
func Valid(s string) bool {
	return Pattern.MatchString(s)
}

// randomToken draws TokenLength symbols uniformly from Alphabet.
// Rejection sampling keeps the distribution uniform: only bytes below the
// largest multiple of len(Alphabet) are accepted.
func randomToken() []byte {
	const limit = byte(256 - 256%len(Alphabet)) // 228

	token := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength*2)
	for len(token) < TokenLength {
		if _, err := crand.Read(buf); err != nil {
			panic(fmt.Sprintf("uid: entropy source failed: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			token = append(token, Alphabet[int(b)%len(Alphabet)])
			if len(token) == TokenLength {
				break
			}
		}
	}
	return token
}
