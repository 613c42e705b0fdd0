package http

import (
	"encoding/base64"
	"encoding/json"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// HeaderPaymentResponse carries the settlement outcome back to the payer on
// an accepted request.
const HeaderPaymentResponse = "X-Payment-Response"

// PaymentRequiredResponse is the 402 body: the error plus the descriptors of
// the payments that would be accepted.
type PaymentRequiredResponse struct {
	Error   string                      `json:"error"`
	Accepts []zkpay.PaymentRequirements `json:"accepts"`
}

// RejectionResponse is the body of a rejected request, carrying the gate's
// specific field-level reason. Vague rejections are a defect: the party that
// submitted the mismatched request gets told exactly what diverged.
type RejectionResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewPaymentRequiredResponse builds the first-contact 402 body.
func NewPaymentRequiredResponse(requirements zkpay.PaymentRequirements) PaymentRequiredResponse {
	return PaymentRequiredResponse{
		Error:   "payment and proof of authorization required",
		Accepts: []zkpay.PaymentRequirements{requirements},
	}
}

// EncodeSettlementHeader encodes a settlement result for
// X-Payment-Response.
func EncodeSettlementHeader(result *zkpay.SettleResult) (string, error) {
	blob, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}
