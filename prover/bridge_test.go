package prover

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	zkpay "github.com/zkpay-protocol/zkpay"
	"github.com/zkpay-protocol/zkpay/proofcache"
)

func testFeatures() zkpay.Features {
	return zkpay.Features{Budget: 10, Trust: 5, Amount: 2, Category: 1, Velocity: 1, Day: 3, Time: 1}
}

func testParams() zkpay.PaymentParameters {
	return zkpay.PaymentParameters{Amount: "100", PayTo: "0xServer", ChainID: 9745, Token: "0xUSDT0"}
}

// scriptBridge builds a bridge that runs a shell snippet instead of a real
// prover. The feature JSON argument lands in $0 and is ignored.
func scriptBridge(script string, timeout time.Duration) *ProcessBridge {
	return New(Config{Command: "sh", Args: []string{"-c", script}, Timeout: timeout})
}

const authorizedLine = `{"proof":"deadbeef","program_io":"{\"output\":[128,0]}","decision":"AUTHORIZED","model_hash":"abc123"}`

func TestProcessBridgeParsesFinalLine(t *testing.T) {
	script := `
echo "loading model"
echo "proving..."
echo '` + authorizedLine + `'
`
	envelope, err := scriptBridge(script, time.Minute).Run(context.Background(), testFeatures(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope.Proof != "deadbeef" {
		t.Errorf("expected proof deadbeef, got %s", envelope.Proof)
	}
	if envelope.Decision != zkpay.DecisionAuthorized {
		t.Errorf("expected AUTHORIZED, got %s", envelope.Decision)
	}
	if envelope.ModelHash != "abc123" {
		t.Errorf("expected model hash abc123, got %s", envelope.ModelHash)
	}
}

func TestProcessBridgeAttachesComputedBinding(t *testing.T) {
	envelope, err := scriptBridge("echo '"+authorizedLine+"'", time.Minute).Run(context.Background(), testFeatures(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := zkpay.NewBinding(testParams(), zkpay.ProofHash([]byte{0xde, 0xad, 0xbe, 0xef}))
	if envelope.Binding != want {
		t.Errorf("binding mismatch:\n got %+v\nwant %+v", envelope.Binding, want)
	}
}

func TestProcessBridgeFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"non-zero exit", `echo "fatal: circuit mismatch" >&2; exit 3`},
		{"empty output", `true`},
		{"final line not JSON", `echo "proving..."; echo "done"`},
		{"missing required field", `echo '{"proof":"deadbeef","decision":"AUTHORIZED","model_hash":"abc123"}'`},
		{"unknown decision", `echo '{"proof":"deadbeef","program_io":"{}","decision":"MAYBE","model_hash":"abc123"}'`},
		{"proof not hex", `echo '{"proof":"zzzz","program_io":"{}","decision":"AUTHORIZED","model_hash":"abc123"}'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scriptBridge(tt.script, time.Minute).Run(context.Background(), testFeatures(), testParams())
			if !errors.Is(err, zkpay.ErrProverFailure) {
				t.Errorf("expected ErrProverFailure, got %v", err)
			}
		})
	}
}

func TestProcessBridgeTimeout(t *testing.T) {
	_, err := scriptBridge(`sleep 5`, 100*time.Millisecond).Run(context.Background(), testFeatures(), testParams())
	if !errors.Is(err, zkpay.ErrProverFailure) {
		t.Fatalf("expected ErrProverFailure, got %v", err)
	}
}

func TestProcessBridgeRejectsOutOfRangeFeatures(t *testing.T) {
	features := testFeatures()
	features.Budget = 99
	// A failing command proves the rejection happened before invocation:
	// a process failure would word the error differently.
	_, err := scriptBridge(`exit 1`, time.Minute).Run(context.Background(), features, testParams())
	if !errors.Is(err, zkpay.ErrProverFailure) {
		t.Fatalf("expected ErrProverFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "budget") {
		t.Errorf("expected the range violation in the error, got %v", err)
	}
}

func TestProcessBridgeRunAsync(t *testing.T) {
	results := scriptBridge("echo '"+authorizedLine+"'", time.Minute).RunAsync(context.Background(), testFeatures(), testParams())
	select {
	case result := <-results:
		if result.Err != nil {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if result.Envelope.Proof != "deadbeef" {
			t.Errorf("expected proof deadbeef, got %s", result.Envelope.Proof)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("async run never delivered a result")
	}
}

// countingBridge records invocations and returns a canned envelope.
type countingBridge struct {
	calls    int
	decision zkpay.Decision
	err      error
}

func (c *countingBridge) Run(ctx context.Context, features zkpay.Features, params zkpay.PaymentParameters) (*zkpay.ZkProofEnvelope, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &zkpay.ZkProofEnvelope{
		Proof:     "deadbeef",
		ProgramIO: "{}",
		Decision:  c.decision,
		ModelHash: "abc123",
		Binding:   zkpay.NewBinding(params, zkpay.ProofHash([]byte{0xde, 0xad, 0xbe, 0xef})),
	}, nil
}

func TestCachingBridgeHitsCacheOnRepeat(t *testing.T) {
	inner := &countingBridge{decision: zkpay.DecisionAuthorized}
	bridge := NewCachingBridge(inner, proofcache.NewMemoryStore())

	first, err := bridge.Run(context.Background(), testFeatures(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := bridge.Run(context.Background(), testFeatures(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected one prover invocation, got %d", inner.calls)
	}
	if first.Proof != second.Proof || first.Binding != second.Binding {
		t.Error("cached envelope differs from the fresh one")
	}
}

func TestCachingBridgeDistinctInputsMiss(t *testing.T) {
	inner := &countingBridge{decision: zkpay.DecisionAuthorized}
	bridge := NewCachingBridge(inner, proofcache.NewMemoryStore())

	if _, err := bridge.Run(context.Background(), testFeatures(), testParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := testParams()
	params.Amount = "250"
	if _, err := bridge.Run(context.Background(), testFeatures(), params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected two prover invocations, got %d", inner.calls)
	}
}

func TestCachingBridgeDoesNotCacheDenied(t *testing.T) {
	inner := &countingBridge{decision: zkpay.DecisionDenied}
	bridge := NewCachingBridge(inner, proofcache.NewMemoryStore())

	for i := 0; i < 2; i++ {
		if _, err := bridge.Run(context.Background(), testFeatures(), testParams()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("denied envelopes must not be cached, got %d invocations", inner.calls)
	}
}

func TestCachingBridgeRunFreshBypassesCache(t *testing.T) {
	inner := &countingBridge{decision: zkpay.DecisionAuthorized}
	store := proofcache.NewMemoryStore()
	bridge := NewCachingBridge(inner, store)

	if _, err := bridge.Run(context.Background(), testFeatures(), testParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bridge.RunFresh(context.Background(), testFeatures(), testParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("RunFresh must always invoke the prover, got %d invocations", inner.calls)
	}
}
