// Package ids mints the identifiers for every stored record:
// identities, roles, invites, audit events and patients. Ids are
// ULIDs, so they sort by creation time and are safe in URLs.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh id. Ids minted within the same millisecond
// remain strictly increasing.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Valid reports whether s has the shape of an id minted by New.
// Handlers use it to reject malformed path ids before touching the
// store.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
