// Package cache stores fetched post collections for a limited time.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

const (
	// KeyPrefix namespaces every key written by this package.
	KeyPrefix = "makereader_"

	// keyHashLen bounds the hex fingerprint appended to KeyPrefix.
	keyHashLen = 21

	DefaultTTL  = 10 * time.Minute
	DefaultSize = 256
)

// Store is an expiring key-value store. Expired entries are reported absent.
type Store interface {
	// Get returns the value for key and whether it was found and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key until ttl elapses. A ttl <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key derives the cache key for an endpoint URL.
func Key(endpoint string) string {
	sum := md5.Sum([]byte(endpoint))
	return KeyPrefix + hex.EncodeToString(sum[:])[:keyHashLen]
}
