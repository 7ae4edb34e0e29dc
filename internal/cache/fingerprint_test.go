package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessage(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Open TODAY?? ", "open today"},
		{"Can I book a table, for 4?", "can i book a table for 4"},
		{"tab\tand\nnewline", "tab and newline"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeMessage(tc.in), "input %q", tc.in)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Open today?", "r1", "cust-1")
	b := Fingerprint("open   today", "r1", "cust-1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("open today", "r1", "cust-2"))
	assert.NotEqual(t, a, Fingerprint("open today", "r2", "cust-1"))
	assert.NotEqual(t, Fingerprint("x", "ab", "c"), Fingerprint("x", "a", "bc"))
}

func TestResponseKey(t *testing.T) {
	assert.Equal(t, "response:r1:abc", ResponseKey("r1", "abc"))
}
