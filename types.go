package zkpay

import (
	"encoding/hex"
	"fmt"
	"time"
)

// PaymentParameters identifies what is being paid for a single request.
// Amount and ChainID use the decimal string / integer forms that also appear
// in the binding preimage, so the same values round-trip through hashing.
type PaymentParameters struct {
	Amount  string `json:"amount"` // smallest token unit, decimal string
	PayTo   string `json:"payTo"`
	ChainID int64  `json:"chainId"`
	Token   string `json:"token"`
}

// ProofBinding commits a proof to a specific set of payment parameters.
// The binding hash is a public integrity check: any party holding the same
// four parameters and the proof bytes can recompute it without secret
// material.
type ProofBinding struct {
	Amount      string `json:"amount"`
	PayTo       string `json:"payTo"`
	ChainID     int64  `json:"chainId"`
	Token       string `json:"token"`
	BindingHash string `json:"bindingHash"`
}

// Decision is the ML policy outcome claimed by the prover.
type Decision string

const (
	DecisionAuthorized Decision = "AUTHORIZED"
	DecisionDenied     Decision = "DENIED"
)

// ZkProofEnvelope is the prover's output plus the binding attached by the
// bridge. Immutable once produced; a DENIED decision carries no proof bytes.
type ZkProofEnvelope struct {
	Proof     string       `json:"proof"`     // hex-encoded serialized proof
	ProgramIO string       `json:"programIo"` // JSON-serialized program IO
	Decision  Decision     `json:"decision"`
	ModelHash string       `json:"modelHash"`
	Binding   ProofBinding `json:"binding"`
}

// ProofBytes decodes the hex-encoded proof payload.
func (e *ZkProofEnvelope) ProofBytes() ([]byte, error) {
	b, err := hex.DecodeString(e.Proof)
	if err != nil {
		return nil, fmt.Errorf("invalid proof hex: %w", err)
	}
	return b, nil
}

// SettlementAuthorization is the optional structured payload a payer signs
// for deferred settlement.
type SettlementAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter,omitempty"`
	ValidBefore int64  `json:"validBefore,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

// PaymentEnvelope is the caller's claim of what it is paying, independent of
// what the proof claims. Divergence between the two is what the binding gate
// detects.
type PaymentEnvelope struct {
	Signature     string                   `json:"signature"`
	Authorization *SettlementAuthorization `json:"authorization,omitempty"`
	Amount        string                   `json:"amount"`
	PayTo         string                   `json:"payTo"`
	ChainID       int64                    `json:"chainId"`
	Token         string                   `json:"token"`
	From          string                   `json:"from,omitempty"`
}

// Parameters extracts the payment parameters the payer claims to be paying.
func (p PaymentEnvelope) Parameters() PaymentParameters {
	return PaymentParameters{
		Amount:  p.Amount,
		PayTo:   p.PayTo,
		ChainID: p.ChainID,
		Token:   p.Token,
	}
}

// TxDescription is the transaction summary sent to the external verifier.
type TxDescription struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

// VerifierResult is the external verifier's decision. Nonce is monotonically
// increasing per verifier session; an approved result must never be acted on
// twice for the same nonce.
type VerifierResult struct {
	Approved  bool   `json:"approved"`
	Signature string `json:"signature,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SettleResult is the outcome of submitting an accepted payment for
// settlement.
type SettleResult struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Transaction string `json:"transaction"`
	ChainID     int64  `json:"chainId"`
}

// Features is the input vector for the authorization model. Ranges match the
// model's vocabulary; Validate rejects values the model was never trained on.
type Features struct {
	Budget   int `json:"budget"`
	Trust    int `json:"trust"`
	Amount   int `json:"amount"`
	Category int `json:"category"`
	Velocity int `json:"velocity"`
	Day      int `json:"day"`
	Time     int `json:"time"`
}

// Validate checks every feature against its vocabulary range.
func (f Features) Validate() error {
	checks := []struct {
		name string
		val  int
		max  int
	}{
		{"budget", f.Budget, 15},
		{"trust", f.Trust, 7},
		{"amount", f.Amount, 15},
		{"category", f.Category, 3},
		{"velocity", f.Velocity, 7},
		{"day", f.Day, 7},
		{"time", f.Time, 3},
	}
	for _, c := range checks {
		if c.val < 0 || c.val > c.max {
			return fmt.Errorf("feature %q value %d out of range (0..=%d)", c.name, c.val, c.max)
		}
	}
	return nil
}

// PaymentRequirements is the payment-required descriptor returned on first
// contact, before any payment artifact is attached.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	PayTo             string                 `json:"payTo"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// EventStatus classifies a lifecycle event.
type EventStatus string

const (
	EventInfo    EventStatus = "info"
	EventPending EventStatus = "pending"
	EventSuccess EventStatus = "success"
	EventFailure EventStatus = "failure"
)

// Lifecycle step identifiers, one per pipeline gate plus terminal steps.
const (
	StepPaymentRequired = "payment_required"
	StepProofCheck      = "proof_check"
	StepStructureCheck  = "structure_check"
	StepBindingCheck    = "binding_check"
	StepVerifierCheck   = "verifier_check"
	StepSettlement      = "settlement"
	StepComplete        = "complete"
)

// LifecycleEvent is a single progress event observed during pipeline
// execution. Events are delivered live to connected observers only; there is
// no durable log and no replay.
type LifecycleEvent struct {
	Step        string                 `json:"step"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Actor       string                 `json:"actor"`
	Status      EventStatus            `json:"status"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
