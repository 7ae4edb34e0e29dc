package cache

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// NormalizeMessage lowercases, drops punctuation and collapses whitespace so
// "Open today?" and "open  today" fingerprint the same.
func NormalizeMessage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Fingerprint hashes the normalized message together with scope parts
// (restaurant, conversation scope). Parts are length-delimited so that
// ("ab","c") and ("a","bc") differ.
func Fingerprint(message string, scope ...string) string {
	h, _ := blake2b.New256(nil)
	for _, s := range scope {
		writePart(h, s)
	}
	writePart(h, NormalizeMessage(message))
	return hex.EncodeToString(h.Sum(nil))
}

type byteWriter interface{ Write(p []byte) (int, error) }

func writePart(w byteWriter, s string) {
	var n [4]byte
	l := len(s)
	n[0], n[1], n[2], n[3] = byte(l>>24), byte(l>>16), byte(l>>8), byte(l)
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(s))
}

// ResponseKey is the cache key for a generated reply.
func ResponseKey(restaurantID, fingerprint string) string {
	return "response:" + restaurantID + ":" + fingerprint
}
