// Package token generates unguessable opaque values. Each subsystem
// gets its own namespace prefix so a credential leaked from one can
// never be replayed against another.
package token

import (
	"crypto/rand"
	"encoding/base64"
)

type Namespace string

const (
	Verification Namespace = "lv"
	Session      Namespace = "ls"
	Arrival      Namespace = "la"
)

const entropyBytes = 32

// New returns a fresh URL-safe token of the form "<ns>_<random>".
func New(ns Namespace) string {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; refusing to
		// mint a guessable token is the only acceptable response.
		panic("token: crypto/rand unavailable: " + err.Error())
	}
	return string(ns) + "_" + base64.RawURLEncoding.EncodeToString(buf)
}

// Redact shortens a token for log output. Full values never hit logs.
func Redact(value string) string {
	if len(value) <= 8 {
		return "********"
	}
	return value[:8] + "…"
}
