package zkpay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ProofHash returns the lowercase hex SHA-256 of the raw proof bytes.
func ProofHash(proofBytes []byte) string {
	sum := sha256.Sum256(proofBytes)
	return hex.EncodeToString(sum[:])
}

// bindingPreimage builds the bit-exact preimage
// "{amount}|{payTo}|{chainId}|{token}|{proofHash}" with decimal integers and
// lowercase-hex addresses. Interoperating implementations must hash the same
// bytes.
func bindingPreimage(params PaymentParameters, proofHash string) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s",
		params.Amount,
		strings.ToLower(params.PayTo),
		params.ChainID,
		strings.ToLower(params.Token),
		strings.ToLower(proofHash),
	)
}

// NewBinding binds a proof hash to payment parameters. Pure and
// deterministic: the same parameters and proof hash always produce the same
// binding.
func NewBinding(params PaymentParameters, proofHash string) ProofBinding {
	sum := sha256.Sum256([]byte(bindingPreimage(params, proofHash)))
	return ProofBinding{
		Amount:      params.Amount,
		PayTo:       params.PayTo,
		ChainID:     params.ChainID,
		Token:       params.Token,
		BindingHash: hex.EncodeToString(sum[:]),
	}
}

// BindingCheck is the outcome of verifying a binding against observed
// payment parameters.
type BindingCheck struct {
	Valid  bool
	Reason string
}

// VerifyBinding checks a binding against the parameters actually observed in
// the payment, then recomputes the hash over those parameters and the given
// proof hash.
//
// Field checks run first and short-circuit on the first divergence, naming
// the mismatched field and both values. The final hash recomputation catches
// a binding whose fields were forged to look consistent but whose hash was
// never recomputed by an honest prover.
func VerifyBinding(b ProofBinding, observed PaymentParameters, proofHash string) BindingCheck {
	if !amountsEqual(b.Amount, observed.Amount) {
		return mismatch("amount", b.Amount, observed.Amount)
	}
	if !strings.EqualFold(b.PayTo, observed.PayTo) {
		return mismatch("payTo", b.PayTo, observed.PayTo)
	}
	if b.ChainID != observed.ChainID {
		return mismatch("chainId", fmt.Sprintf("%d", b.ChainID), fmt.Sprintf("%d", observed.ChainID))
	}
	if !strings.EqualFold(b.Token, observed.Token) {
		return mismatch("token", b.Token, observed.Token)
	}

	recomputed := NewBinding(observed, proofHash)
	if recomputed.BindingHash != b.BindingHash {
		return mismatch("bindingHash", b.BindingHash, recomputed.BindingHash)
	}

	return BindingCheck{Valid: true}
}

func mismatch(field, proofValue, paymentValue string) BindingCheck {
	err := &BindingMismatchError{Field: field, ProofValue: proofValue, PaymentValue: paymentValue}
	return BindingCheck{Valid: false, Reason: err.Error()}
}

// amountsEqual compares two decimal amount strings numerically, so "0100"
// and "100" agree. Unparsable values fall back to exact string comparison.
func amountsEqual(a, b string) bool {
	ai, aok := new(big.Int).SetString(a, 10)
	bi, bok := new(big.Int).SetString(b, 10)
	if !aok || !bok {
		return a == b
	}
	return ai.Cmp(bi) == 0
}
