package model

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a lexically sortable id used to correlate a gateway
// request with the executor's log line.
func NewRequestID() string {
	return newID(time.Now())
}

// NewSessionID identifies one panel session in the audit mirror.
func NewSessionID() string {
	return newID(time.Now())
}

func newID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ParseRequestTime extracts the creation time embedded in a request id.
func ParseRequestTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	return ulid.Time(u.Time()), nil
}
