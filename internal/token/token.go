// Package token issues the single-use nonces that bind a rendered
// confirmation prompt to its pending parameters.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	mrand "math/rand/v2"
	"time"

	"github.com/rs/xid"
)

// Source produces a fresh token. The salt is mixed into the digest and is
// usually the name of the confirmer requesting the token.
type Source func(salt string) string

// randRead is swapped in tests to exercise the fallback path.
var randRead = rand.Read

// Generate returns an unpredictable base-36 token ([0-9a-z]) that is safe to
// place in hidden form fields and URLs without escaping. It never fails.
func Generate(salt string) string {
	h := sha256.New()
	h.Write([]byte("confirm"))
	h.Write([]byte(salt))

	// xid packs machine id, pid, seconds and a process-wide counter.
	id := xid.New()
	h.Write(id.Bytes())

	var clock [8]byte
	binary.BigEndian.PutUint64(clock[:], uint64(time.Now().UnixNano()))
	h.Write(clock[:])

	var nonce [16]byte
	if _, err := randRead(nonce[:]); err != nil {
		binary.BigEndian.PutUint64(nonce[:8], mrand.Uint64())
		binary.BigEndian.PutUint64(nonce[8:], mrand.Uint64())
	}
	h.Write(nonce[:])

	return new(big.Int).SetBytes(h.Sum(nil)).Text(36)
}
