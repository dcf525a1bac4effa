// Package token mints opaque, high-entropy, URL-safe identifiers. A
// Token embeds no semantics of its own — no timestamp, no counter — and
// is bound to exactly one metadata record by its caller.
package token

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/fleetpx/ephimg/verr"
)

// Token is an opaque, URL-safe identifier with no embedded structure.
type Token string

// keyBytes is the number of random bytes read per mint, giving 256 bits
// of entropy — well above the 128-bit floor needed to make a token
// unguessable.
const keyBytes = 32

// Mint draws keyBytes of cryptographically strong randomness and returns
// it base64 raw-URL-encoded, so the result contains only
// [A-Za-z0-9_-], no padding, and needs no further URL-encoding.
//
// Mint fails with verr.ErrEntropy if the system's CSPRNG is unavailable;
// callers (the upload coordinator) must propagate the failure and abort
// the upload rather than minting a degraded token.
func Mint() (Token, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", verr.ErrEntropy(err)
	}
	return Token(base64.RawURLEncoding.EncodeToString(b)), nil
}

// String returns t as a plain string, for composing URLs and log fields.
func (t Token) String() string {
	return string(t)
}

// Empty reports whether t is empty or consists solely of whitespace —
// the syntactic check the access arbiter applies before touching any
// storage.
func (t Token) Empty() bool {
	for _, r := range string(t) {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return false
		}
	}
	return true
}
