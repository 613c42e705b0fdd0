package prover

import (
	"context"

	zkpay "github.com/zkpay-protocol/zkpay"
	"github.com/zkpay-protocol/zkpay/proofcache"
)

// CachingBridge consults a proof cache before invoking the wrapped bridge
// and populates it afterward. Denied envelopes are not cached: a DENIED
// decision carries no proof and is cheap to recompute, and callers usually
// want a fresh decision after fixing their inputs.
type CachingBridge struct {
	inner zkpay.ProverBridge
	store proofcache.Store
}

// NewCachingBridge wraps inner with cache lookups against store.
func NewCachingBridge(inner zkpay.ProverBridge, store proofcache.Store) *CachingBridge {
	return &CachingBridge{inner: inner, store: store}
}

// Run returns the cached envelope for identical (params, features) inputs,
// invoking the inner bridge only on a miss.
func (c *CachingBridge) Run(ctx context.Context, features zkpay.Features, params zkpay.PaymentParameters) (*zkpay.ZkProofEnvelope, error) {
	cached, err := c.store.Get(params, features)
	if err == nil && cached != nil {
		return cached, nil
	}

	envelope, err := c.RunFresh(ctx, features, params)
	if err != nil {
		return nil, err
	}
	if envelope.Decision == zkpay.DecisionAuthorized {
		// Cache write failures are not fatal: the proof itself is valid.
		_ = c.store.Put(params, features, envelope)
	}
	return envelope, nil
}

// RunFresh bypasses the cache for callers that opt out of caching. The
// result still populates the cache on the Run path only.
func (c *CachingBridge) RunFresh(ctx context.Context, features zkpay.Features, params zkpay.PaymentParameters) (*zkpay.ZkProofEnvelope, error) {
	return c.inner.Run(ctx, features, params)
}

var _ zkpay.ProverBridge = (*CachingBridge)(nil)
