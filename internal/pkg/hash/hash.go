package hash

import (
	"github.com/spaolacci/murmur3"
)

// Hash returns the hash value of data.
func Hash(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// KeyHash derives a fixed-width key from an arbitrary identity string,
// suitable for embedding in a cache key.
func KeyHash(s string) uint64 {
	return murmur3.Sum64([]byte(s))
}
