package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupguard/internal/biz"
	"groupguard/internal/conf"
	"groupguard/internal/pkg/hash"
	pkgredis "groupguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	fingerprintKeyPrefix = "groupguard:fp:"
	defaultTTL           = 24 * time.Hour
	storeTimeout         = 5 * time.Second
)

type fingerprintCache struct {
	cache pkgredis.Cache
	ttl   time.Duration
	log   *log.Helper
}

// NewFingerprintCache creates the TTL-bounded image fingerprint cache.
// A nil backend makes GetOrCompute always take the compute path.
func NewFingerprintCache(cache pkgredis.Cache, c *conf.Filter, logger log.Logger) biz.FingerprintCache {
	ttl := defaultTTL
	if c.HashCacheTTLHours > 0 {
		ttl = time.Duration(c.HashCacheTTLHours) * time.Hour
	}
	return &fingerprintCache{
		cache: cache,
		ttl:   ttl,
		log:   log.NewHelper(logger),
	}
}

// GetOrCompute implements biz.FingerprintCache. On a hit the cached
// fingerprint is returned immediately. On a miss compute runs
// synchronously, then the result is stored fire-and-forget: a store
// failure is logged and must never fail or delay the evaluation.
func (f *fingerprintCache) GetOrCompute(ctx context.Context, identity string, compute func(ctx context.Context) (string, error)) (string, error) {
	if f.cache == nil {
		return compute(ctx)
	}

	key := fingerprintKey(identity)
	cached, err := f.cache.GetString(ctx, key)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, pkgredis.Nil) {
		// A cache read failure is a miss, never an evaluation failure.
		f.log.Warnf("fingerprint cache read failed for %q: %v", identity, err)
	}

	fp, err := compute(ctx)
	if err != nil {
		return "", err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := f.cache.SetString(ctx, key, fp, f.ttl); err != nil {
			f.log.Warnf("fingerprint cache store failed for %q: %v", identity, err)
		}
	}()

	return fp, nil
}

// fingerprintKey derives a fixed-width redis key from an arbitrary image
// identity string.
func fingerprintKey(identity string) string {
	return fmt.Sprintf("%s%016x", fingerprintKeyPrefix, hash.KeyHash(identity))
}
