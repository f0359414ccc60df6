package data

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"groupguard/internal/conf"
	pkgredis "groupguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

// memCache is an in-memory pkgredis.Cache. Stores signal the stored
// channel so tests can wait for the asynchronous write-back.
type memCache struct {
	mu     sync.Mutex
	values map[string]string
	stored chan struct{}
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{
		values: make(map[string]string),
		stored: make(chan struct{}, 16),
	}
}

func (c *memCache) SetString(_ context.Context, key, value string, _ time.Duration) error {
	defer func() { c.stored <- struct{}{} }()
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
	return nil
}

func (c *memCache) GetString(_ context.Context, key string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok, nil
}

func (c *memCache) Del(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.values[k]; ok {
			delete(c.values, k)
			n++
		}
	}
	return n, nil
}

func (c *memCache) Expire(context.Context, string, int) (bool, error) { return true, nil }

func (c *memCache) waitStore(t *testing.T) {
	t.Helper()
	select {
	case <-c.stored:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the async cache store")
	}
}

func computeCounter(fp string, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return fp, nil
	}
}

func testFingerprintCache(backend pkgredis.Cache) *fingerprintCache {
	c := NewFingerprintCache(backend, &conf.Filter{}, log.NewStdLogger(io.Discard))
	return c.(*fingerprintCache)
}

func TestGetOrCompute_NilBackend(t *testing.T) {
	fc := testFingerprintCache(nil)
	calls := 0

	for i := 0; i < 2; i++ {
		fp, err := fc.GetOrCompute(context.Background(), "img-1", computeCounter("abc", &calls))
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if fp != "abc" {
			t.Errorf("fp = %q; want abc", fp)
		}
	}
	if calls != 2 {
		t.Errorf("without a backend every call computes; calls = %d", calls)
	}
}

func TestGetOrCompute_ComputeOnce(t *testing.T) {
	backend := newMemCache()
	fc := testFingerprintCache(backend)
	ctx := context.Background()
	calls := 0

	fp, err := fc.GetOrCompute(ctx, "img-1", computeCounter("abc", &calls))
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if fp != "abc" || calls != 1 {
		t.Fatalf("first call: fp=%q calls=%d; want abc, 1", fp, calls)
	}
	backend.waitStore(t)

	fp, err = fc.GetOrCompute(ctx, "img-1", computeCounter("abc", &calls))
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if fp != "abc" {
		t.Errorf("second call fp = %q; want abc", fp)
	}
	if calls != 1 {
		t.Errorf("second call must hit the cache; calls = %d", calls)
	}
}

func TestGetOrCompute_ReadFailureIsMiss(t *testing.T) {
	backend := newMemCache()
	backend.getErr = errors.New("connection refused")
	fc := testFingerprintCache(backend)
	calls := 0

	fp, err := fc.GetOrCompute(context.Background(), "img-1", computeCounter("abc", &calls))
	if err != nil {
		t.Fatalf("a cache read failure must not fail the evaluation: %v", err)
	}
	if fp != "abc" || calls != 1 {
		t.Errorf("fp=%q calls=%d; want abc, 1", fp, calls)
	}
	backend.waitStore(t)
}

func TestGetOrCompute_StoreFailureIgnored(t *testing.T) {
	backend := newMemCache()
	backend.setErr = errors.New("connection refused")
	fc := testFingerprintCache(backend)
	calls := 0

	fp, err := fc.GetOrCompute(context.Background(), "img-1", computeCounter("abc", &calls))
	if err != nil {
		t.Fatalf("a cache store failure must not fail the evaluation: %v", err)
	}
	if fp != "abc" {
		t.Errorf("fp = %q; want abc", fp)
	}
	backend.waitStore(t)
}

func TestGetOrCompute_ComputeFailureNotCached(t *testing.T) {
	backend := newMemCache()
	fc := testFingerprintCache(backend)
	computeErr := errors.New("decode failed")

	_, err := fc.GetOrCompute(context.Background(), "img-1", func(context.Context) (string, error) {
		return "", computeErr
	})
	if !errors.Is(err, computeErr) {
		t.Fatalf("expected the compute error to surface, got %v", err)
	}
	if ok, _ := backend.Exists(context.Background(), fingerprintKey("img-1")); ok {
		t.Error("a failed compute must not populate the cache")
	}
}

func TestFingerprintKey(t *testing.T) {
	k1 := fingerprintKey("img-1")
	k2 := fingerprintKey("img-2")
	if !strings.HasPrefix(k1, fingerprintKeyPrefix) {
		t.Errorf("key %q missing prefix %q", k1, fingerprintKeyPrefix)
	}
	if len(k1) != len(fingerprintKeyPrefix)+16 {
		t.Errorf("key width = %d; want fixed %d", len(k1), len(fingerprintKeyPrefix)+16)
	}
	if k1 == k2 {
		t.Error("distinct identities must derive distinct keys")
	}
	if k1 != fingerprintKey("img-1") {
		t.Error("key derivation must be deterministic")
	}
}
