// Package verifier bridges to the external proof verification service.
//
// The service is consumed as an opaque HTTP endpoint: POST /verify with the
// proof, the program IO, a transaction description, and the model hash, and
// it answers with an approval, a signature, and a monotonically increasing
// nonce. SNARK verification happens entirely on the service's side.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// DefaultTimeout bounds one verification call. SNARK verification is not
// instantaneous; minutes, not seconds.
const DefaultTimeout = 5 * time.Minute

// Config configures the HTTP verifier client.
type Config struct {
	// URL is the base URL of the verifier service. Required.
	URL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to DefaultTimeout).
	Timeout time.Duration

	// Logger defaults to a disabled logger.
	Logger zerolog.Logger
}

// Client communicates with the remote verifier over HTTP. It performs no
// retries; the pipeline decides what to do with each failure class.
//
// The client tracks the highest approved nonce it has seen and refuses an
// approval whose nonce does not advance it, so a replayed approval never
// reaches the pipeline.
type Client struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	lastNonce uint64
}

// New creates a verifier client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        cfg.URL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// verifyRequest is the verifier service's wire shape.
type verifyRequest struct {
	Proof     string              `json:"proof"`
	ProgramIO string              `json:"program_io"`
	Tx        zkpay.TxDescription `json:"tx"`
	ModelHash string              `json:"model_hash"`
}

// Verify submits the envelope and transaction description to the verifier.
//
// A transport or timeout failure returns an error wrapping
// zkpay.ErrVerifierUnreachable, distinct from a reachable verifier that
// declines (a result with Approved=false and the verifier's reason).
func (c *Client) Verify(ctx context.Context, envelope *zkpay.ZkProofEnvelope, tx zkpay.TxDescription, modelHash string) (*zkpay.VerifierResult, error) {
	body, err := json.Marshal(verifyRequest{
		Proof:     envelope.Proof,
		ProgramIO: envelope.ProgramIO,
		Tx:        tx,
		ModelHash: modelHash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", zkpay.ErrVerifierUnreachable, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %s", zkpay.ErrVerifierUnreachable, err)
	}

	var result zkpay.VerifierResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, fmt.Errorf("%w: unexpected response (%d): %s", zkpay.ErrVerifierUnreachable, resp.StatusCode, string(responseBody))
	}
	c.logger.Info().
		Bool("approved", result.Approved).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("verifier responded")

	if result.Approved {
		if err := c.advanceNonce(result.Nonce); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// advanceNonce enforces per-session nonce monotonicity on approvals.
func (c *Client) advanceNonce(nonce uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if nonce <= c.lastNonce {
		return fmt.Errorf("%w: nonce %d does not advance %d", zkpay.ErrNonceReplayed, nonce, c.lastNonce)
	}
	c.lastNonce = nonce
	return nil
}

var _ zkpay.VerifierBridge = (*Client)(nil)
