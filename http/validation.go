// Package http provides the HTTP wire surface for proof-gated payments:
// header codecs for the payment and proof artifacts and the payment-required
// response shape.
package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// Header names for the two request artifacts.
const (
	HeaderPayment = "X-Payment"
	HeaderProof   = "X-ZK-Proof"
)

// Base64 regex pattern - requires at least one character
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// DecodePaymentHeader validates and decodes an X-Payment header: base64
// format, JSON structure, and the minimum required fields. Returns a
// descriptive error naming the first problem found.
func DecodePaymentHeader(header string) (*zkpay.PaymentEnvelope, error) {
	decoded, err := decodeHeader(header, "payment")
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}
	for _, field := range []string{"signature", "amount", "payTo", "chainId", "token"} {
		if _, exists := raw[field]; !exists {
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}
	if _, ok := raw["chainId"].(float64); !ok {
		return nil, fmt.Errorf("invalid field type: chainId must be a number")
	}
	for _, field := range []string{"signature", "amount", "payTo", "token"} {
		if _, ok := raw[field].(string); !ok {
			return nil, fmt.Errorf("invalid field type: %s must be a string", field)
		}
	}

	var envelope zkpay.PaymentEnvelope
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse payment envelope: %v", err)
	}
	return &envelope, nil
}

// DecodeProofHeader validates and decodes an X-ZK-Proof header.
func DecodeProofHeader(header string) (*zkpay.ZkProofEnvelope, error) {
	decoded, err := decodeHeader(header, "proof")
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, fmt.Errorf("invalid proof header format: not valid JSON - %v", err)
	}
	for _, field := range []string{"proof", "decision", "modelHash", "binding"} {
		if _, exists := raw[field]; !exists {
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}
	if _, ok := raw["binding"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid field type: binding must be an object")
	}

	var envelope zkpay.ZkProofEnvelope
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse proof envelope: %v", err)
	}
	return &envelope, nil
}

// EncodePaymentHeader encodes a payment envelope for the X-Payment header.
func EncodePaymentHeader(envelope *zkpay.PaymentEnvelope) (string, error) {
	return encodeHeader(envelope)
}

// EncodeProofHeader encodes a proof envelope for the X-ZK-Proof header.
func EncodeProofHeader(envelope *zkpay.ZkProofEnvelope) (string, error) {
	return encodeHeader(envelope)
}

func decodeHeader(header, kind string) ([]byte, error) {
	if header == "" {
		return nil, fmt.Errorf("%s header is empty", kind)
	}
	if !base64Regex.MatchString(header) {
		return nil, fmt.Errorf("invalid %s header format: not valid base64", kind)
	}
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("invalid %s header format: base64 decoding failed - %v", kind, err)
	}
	return decoded, nil
}

func encodeHeader(v interface{}) (string, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}
