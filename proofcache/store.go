// Package proofcache provides a content-addressed store for proof envelopes.
//
// Entries are keyed by a hash of the canonical JSON serialization of the
// payment parameters and feature vector that produced them, so identical
// inputs always resolve to the identical cached proof. A separate named
// namespace holds pre-seeded scenario fixtures that can be loaded without
// recomputing the hash key.
package proofcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// Store is a key→envelope mapping with idempotent writes. Get returns
// (nil, nil) on a miss. Implementations must tolerate concurrent readers and
// writers; last-write-wins on key collision is acceptable because
// content-addressed keys make a collision mean "identical inputs".
//
// No eviction policy is implemented. Proof counts are scenario-bounded here;
// a production deployment needs an explicit retention policy before the
// growth assumption breaks.
type Store interface {
	Get(params zkpay.PaymentParameters, features zkpay.Features) (*zkpay.ZkProofEnvelope, error)
	Put(params zkpay.PaymentParameters, features zkpay.Features, envelope *zkpay.ZkProofEnvelope) error

	GetNamed(name string) (*zkpay.ZkProofEnvelope, error)
	PutNamed(name string, envelope *zkpay.ZkProofEnvelope) error
}

// Key derives the content address for a (parameters, features) pair: the
// SHA-256 of the RFC 8785 canonicalization of their JSON form. Canonical
// field ordering is what makes the key deterministic across writers.
func Key(params zkpay.PaymentParameters, features zkpay.Features) (string, error) {
	doc := struct {
		Params   zkpay.PaymentParameters `json:"params"`
		Features zkpay.Features          `json:"features"`
	}{params, features}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal cache key input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache key input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[string][]byte
	byName map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:  make(map[string][]byte),
		byName: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(params zkpay.PaymentParameters, features zkpay.Features) (*zkpay.ZkProofEnvelope, error) {
	key, err := Key(params, features)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	blob, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeEnvelope(blob)
}

func (s *MemoryStore) Put(params zkpay.PaymentParameters, features zkpay.Features, envelope *zkpay.ZkProofEnvelope) error {
	key, err := Key(params, features)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.byKey[key] = blob
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetNamed(name string) (*zkpay.ZkProofEnvelope, error) {
	s.mu.RLock()
	blob, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeEnvelope(blob)
}

func (s *MemoryStore) PutNamed(name string, envelope *zkpay.ZkProofEnvelope) error {
	blob, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.byName[name] = blob
	s.mu.Unlock()
	return nil
}

func decodeEnvelope(blob []byte) (*zkpay.ZkProofEnvelope, error) {
	var envelope zkpay.ZkProofEnvelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, fmt.Errorf("decode cached envelope: %w", err)
	}
	return &envelope, nil
}

var _ Store = (*MemoryStore)(nil)
