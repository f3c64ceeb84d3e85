// Package ids mints the ULID-based identifiers used for sessions and audit records.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// At returns an identifier whose time component is t. Identifiers minted within
// the same millisecond stay unique and ordered.
func At(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// WithPrefix returns At(t) prefixed with the given kind, e.g. "sess_01J...".
func WithPrefix(prefix string, t time.Time) string {
	if prefix == "" {
		return At(t)
	}
	return prefix + "_" + At(t)
}
