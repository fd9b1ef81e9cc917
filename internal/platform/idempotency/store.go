// Package idempotency replays the stored response when a shop resubmits a form under the same
// Idempotency-Key, so a double-clicked submit cannot create a second customer or draft order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed submission stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle state of a key.
type State string

const (
	// StatePending marks a key whose submission is still being processed.
	StatePending State = "pending"
	// StateCompleted marks a key whose response has been stored.
	StateCompleted State = "completed"
)

// Outcome is the result of reserving a key.
type Outcome int

const (
	// OutcomeReserved means the caller owns the key and must Complete or Release it.
	OutcomeReserved Outcome = iota
	// OutcomeReplay means a stored response exists for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key.
	OutcomeInFlight
)

// ErrKeyReused is returned when a key is presented again with a different request body.
var ErrKeyReused = errors.New("idempotency: key already used for a different submission")

// Record is the persisted state of one key.
type Record struct {
	Fingerprint string
	State       State
	Status      int
	Header      http.Header
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists reservations and completed responses. Keys are already scoped to a shop.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	Complete(ctx context.Context, key, fingerprint string, record Record, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// documentID hashes the scoped key so it is a valid document id of fixed length.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func expired(record Record, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)
}

// replayableHeader drops hop-by-hop and per-response headers before a response is stored.
func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer",
			"x-request-id", "access-control-allow-origin", "vary":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
