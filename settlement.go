package zkpay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SettlementCache provides idempotency for settle operations by caching
// settlement responses per verifier approval and tracking in-flight
// submissions. An approved VerifierResult nonce is never acted on twice:
// retries after timeouts or network failures converge on the one cached
// submission.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]*SettleResult
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewSettlementCache creates a new settlement cache with the specified TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]*SettleResult),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// ApprovalKey creates a unique key from a verifier approval. The signature
// and nonce identify one approval session-wide, so the key deduplicates per
// approved result rather than per payment attempt.
func ApprovalKey(approval VerifierResult) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", approval.Signature, approval.Nonce))
	return hex.EncodeToString(sum[:])
}

// SettlementStatus represents the result of checking the cache.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight submission.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is currently settling this approval.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the key as in-flight if
// needed. Returns:
//   - StatusCached + result if a cached result exists
//   - StatusInFlight + wait channel if another request is processing
//   - StatusNotFound + done channel if this request should proceed (now marked in-flight)
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		// Expired - clean it up
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight submission to complete, respecting
// context cancellation. Returns the cached result if one was stored, or nil
// if the in-flight submission failed.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResult, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get retrieves a cached settlement result if it exists and hasn't expired.
func (c *SettlementCache) Get(key string) *SettleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches the result, removes the in-flight marker, and signals
// waiters.
func (c *SettlementCache) Complete(key string, result *SettleResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)
	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result, allowing the
// settlement to be retried.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *SettlementCache) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}

// IdempotentSettler wraps a Settler with a SettlementCache so the same
// verifier approval is only ever submitted once.
type IdempotentSettler struct {
	inner Settler
	cache *SettlementCache
}

// NewIdempotentSettler wraps inner with approval-keyed deduplication.
func NewIdempotentSettler(inner Settler, cache *SettlementCache) *IdempotentSettler {
	return &IdempotentSettler{inner: inner, cache: cache}
}

// Settle submits the payment at most once per approval. Concurrent calls for
// the same approval wait on the first submission's outcome.
func (s *IdempotentSettler) Settle(ctx context.Context, payment PaymentEnvelope, approval VerifierResult) (*SettleResult, error) {
	key := ApprovalKey(approval)

	status, cached, done := s.cache.CheckAndMark(key)
	switch status {
	case StatusCached:
		return cached, nil
	case StatusInFlight:
		result, err := s.cache.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, fmt.Errorf("concurrent settlement for nonce %d failed", approval.Nonce)
		}
		return result, nil
	}

	result, err := s.inner.Settle(ctx, payment, approval)
	if err != nil {
		s.cache.Fail(key, done)
		return nil, err
	}
	s.cache.Complete(key, result, done)
	return result, nil
}

var _ Settler = (*IdempotentSettler)(nil)
