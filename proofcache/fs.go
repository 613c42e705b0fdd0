package proofcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// Scenario names become filenames; restrict them accordingly.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FSStore is a filesystem-backed Store. Hash-keyed entries live directly
// under the root directory, named scenario seeds under named/.
type FSStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFSStore creates the cache directories if needed and returns a store
// rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "named"), 0o755); err != nil {
		return nil, fmt.Errorf("create proof cache dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Get(params zkpay.PaymentParameters, features zkpay.Features) (*zkpay.ZkProofEnvelope, error) {
	key, err := Key(params, features)
	if err != nil {
		return nil, err
	}
	return s.read(filepath.Join(s.dir, key+".json"))
}

func (s *FSStore) Put(params zkpay.PaymentParameters, features zkpay.Features, envelope *zkpay.ZkProofEnvelope) error {
	key, err := Key(params, features)
	if err != nil {
		return err
	}
	return s.write(filepath.Join(s.dir, key+".json"), envelope)
}

func (s *FSStore) GetNamed(name string) (*zkpay.ZkProofEnvelope, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid scenario name %q", name)
	}
	return s.read(filepath.Join(s.dir, "named", name+".json"))
}

func (s *FSStore) PutNamed(name string, envelope *zkpay.ZkProofEnvelope) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid scenario name %q", name)
	}
	return s.write(filepath.Join(s.dir, "named", name+".json"), envelope)
}

func (s *FSStore) read(path string) (*zkpay.ZkProofEnvelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached proof: %w", err)
	}
	return decodeEnvelope(blob)
}

func (s *FSStore) write(path string, envelope *zkpay.ZkProofEnvelope) error {
	blob, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write-then-rename keeps concurrent readers from observing a torn file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("write cached proof: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cached proof: %w", err)
	}
	return nil
}

var _ Store = (*FSStore)(nil)
