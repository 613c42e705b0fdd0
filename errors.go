package zkpay

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodePaymentRequired     = "payment_required" // first-contact response, not a failure
	ErrCodeMissingProof        = "missing_proof"
	ErrCodeMalformedPayment    = "malformed_payment"
	ErrCodeBindingMismatch     = "binding_mismatch"
	ErrCodeVerifierRejected    = "verifier_rejected"
	ErrCodeVerifierUnreachable = "verifier_unreachable"
	ErrCodeProverFailure       = "prover_failure"
	ErrCodeSettlementFailed    = "settlement_failed"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Sentinels for errors.Is checks across package boundaries.
var (
	// ErrVerifierUnreachable marks transport-level verifier failures. The
	// pipeline treats it as a rejection (fail-closed), never a bypass.
	ErrVerifierUnreachable = errors.New("verifier unreachable")

	// ErrProverFailure marks prover process crashes, timeouts, and
	// unparsable output.
	ErrProverFailure = errors.New("prover failure")

	// ErrNonceReplayed marks a verifier approval whose nonce does not
	// advance the session counter.
	ErrNonceReplayed = errors.New("verifier nonce replayed")
)

// BindingMismatchError reports the first field on which a proof binding and
// the observed payment parameters diverge. The message names the field and
// both values; it is the attacker-facing audit trail.
type BindingMismatchError struct {
	Field        string
	ProofValue   string
	PaymentValue string
}

func (e *BindingMismatchError) Error() string {
	switch e.Field {
	case "amount":
		return fmt.Sprintf("Amount mismatch: proof bound to %s, payment requests %s", e.ProofValue, e.PaymentValue)
	case "payTo":
		return fmt.Sprintf("Recipient mismatch: proof bound to %s, payment pays %s", e.ProofValue, e.PaymentValue)
	case "chainId":
		return fmt.Sprintf("Chain ID mismatch: proof bound to %s, payment targets %s", e.ProofValue, e.PaymentValue)
	case "token":
		return fmt.Sprintf("Token mismatch: proof bound to %s, payment uses %s", e.ProofValue, e.PaymentValue)
	case "bindingHash":
		return fmt.Sprintf("Binding hash mismatch: recomputed %s, proof claims %s", e.PaymentValue, e.ProofValue)
	default:
		return fmt.Sprintf("Binding mismatch on %s: proof %s, payment %s", e.Field, e.ProofValue, e.PaymentValue)
	}
}
