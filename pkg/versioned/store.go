// Package versioned provides key/blob stores that record a last-modified
// timestamp per key. The timestamp is the only version a store exposes;
// readers compare it against what they last saw to detect staleness.
package versioned

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that cannot be stored safely.
var ErrInvalidKey = errors.New("invalid key")

// Store is a key to content mapping with per-key modification times in unix
// seconds. A missing key is reported through the ok result, never as an
// error; errors mean the backing medium failed.
//
// Timestamps strictly increase across writes to the same key, even when two
// writes land in the same second.
type Store interface {
	Get(key string) (content []byte, ok bool, err error)
	Set(key string, content []byte) error
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string) error
	Timestamp(key string) (ts int64, ok bool, err error)
	// Keys returns all keys in sorted order.
	Keys() ([]string, error)
	Snapshot() (map[string][]byte, error)
}

// ValidateKey rejects keys that would escape a store directory or collide
// with temporary files.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, "/\\\x00") {
		return ErrInvalidKey
	}
	return nil
}

// nextStamp returns the timestamp for a write at now given the key's
// previous stamp (0 when absent).
func nextStamp(now time.Time, prev int64) int64 {
	ts := now.Unix()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}
