// Package prover bridges to the external zkML proving process.
//
// The process is opaque: it receives the JSON feature vector as its argument
// and prints, as the last line of stdout, a JSON object with the proof, the
// program IO, the model's decision, and the model hash. Diagnostic lines
// before the final JSON are tolerated. The binding attached to the returned
// envelope is always computed here, never trusted from the process.
package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// DefaultTimeout bounds one proving run. Proof generation is expensive;
// minutes, not seconds.
const DefaultTimeout = 10 * time.Minute

// outputSchema describes the shape the process must print as its final line.
const outputSchema = `{
	"type": "object",
	"required": ["proof", "program_io", "decision", "model_hash"],
	"properties": {
		"proof": {"type": "string"},
		"program_io": {"type": "string"},
		"decision": {"type": "string", "enum": ["AUTHORIZED", "DENIED"]},
		"model_hash": {"type": "string"}
	}
}`

var outputSchemaLoader = gojsonschema.NewStringLoader(outputSchema)

// rawOutput is the prover process's wire shape.
type rawOutput struct {
	Proof     string `json:"proof"`
	ProgramIO string `json:"program_io"`
	Decision  string `json:"decision"`
	ModelHash string `json:"model_hash"`
}

// Config configures a ProcessBridge.
type Config struct {
	// Command is the prover binary. Required.
	Command string
	// Args are prepended before the JSON feature argument.
	Args []string
	// Timeout bounds one run. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to a disabled logger.
	Logger zerolog.Logger
}

// ProcessBridge invokes the external proving process.
type ProcessBridge struct {
	command string
	args    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a bridge for the configured prover binary.
func New(cfg Config) *ProcessBridge {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &ProcessBridge{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Run invokes the prover synchronously and attaches a freshly computed
// binding to its output. Fails with an error wrapping zkpay.ErrProverFailure
// when the process exits non-zero, times out, or its final line does not
// parse as the expected JSON shape.
func (b *ProcessBridge) Run(ctx context.Context, features zkpay.Features, params zkpay.PaymentParameters) (*zkpay.ZkProofEnvelope, error) {
	if err := features.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", zkpay.ErrProverFailure, err)
	}

	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal features: %s", zkpay.ErrProverFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	b.logger.Info().Str("command", b.command).Msg("invoking prover")

	cmd := exec.CommandContext(ctx, b.command, append(append([]string{}, b.args...), string(payload))...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timed out after %s", zkpay.ErrProverFailure, b.timeout)
		}
		return nil, fmt.Errorf("%w: process failed: %s (stderr: %s)", zkpay.ErrProverFailure, err, strings.TrimSpace(stderr.String()))
	}

	raw, err := parseFinalLine(stdout)
	if err != nil {
		return nil, err
	}
	b.logger.Info().Str("decision", raw.Decision).Dur("elapsed", time.Since(start)).Msg("prover finished")

	proofBytes, err := hex.DecodeString(raw.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: proof is not valid hex: %s", zkpay.ErrProverFailure, err)
	}

	return &zkpay.ZkProofEnvelope{
		Proof:     raw.Proof,
		ProgramIO: raw.ProgramIO,
		Decision:  zkpay.Decision(raw.Decision),
		ModelHash: raw.ModelHash,
		Binding:   zkpay.NewBinding(params, zkpay.ProofHash(proofBytes)),
	}, nil
}

// Result pairs an envelope with the error that produced it, for async runs.
type Result struct {
	Envelope *zkpay.ZkProofEnvelope
	Err      error
}

// RunAsync invokes the prover without blocking the caller. The returned
// channel receives exactly one Result. Cancel the context to abort the run.
func (b *ProcessBridge) RunAsync(ctx context.Context, features zkpay.Features, params zkpay.PaymentParameters) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		envelope, err := b.Run(ctx, features, params)
		out <- Result{Envelope: envelope, Err: err}
	}()
	return out
}

// parseFinalLine extracts and validates the last non-empty stdout line.
func parseFinalLine(stdout []byte) (*rawOutput, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[len(lines)-1]) == "" {
		return nil, fmt.Errorf("%w: empty output", zkpay.ErrProverFailure)
	}
	final := strings.TrimSpace(lines[len(lines)-1])

	validation, err := gojsonschema.Validate(outputSchemaLoader, gojsonschema.NewStringLoader(final))
	if err != nil {
		return nil, fmt.Errorf("%w: final output line is not JSON: %s", zkpay.ErrProverFailure, err)
	}
	if !validation.Valid() {
		details := make([]string, 0, len(validation.Errors()))
		for _, desc := range validation.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("%w: unexpected output shape: %s", zkpay.ErrProverFailure, strings.Join(details, "; "))
	}

	var raw rawOutput
	if err := json.Unmarshal([]byte(final), &raw); err != nil {
		return nil, fmt.Errorf("%w: decode output: %s", zkpay.ErrProverFailure, err)
	}
	return &raw, nil
}

var _ zkpay.ProverBridge = (*ProcessBridge)(nil)
