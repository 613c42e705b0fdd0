package http

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zkpay "github.com/zkpay-protocol/zkpay"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecodePaymentHeaderValid(t *testing.T) {
	header := b64(`{"signature":"0xsig","amount":"100","payTo":"0xServer","chainId":9745,"token":"0xUSDT0","from":"0xPayer"}`)
	envelope, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "100", envelope.Amount)
	assert.Equal(t, "0xServer", envelope.PayTo)
	assert.Equal(t, int64(9745), envelope.ChainID)
	assert.Equal(t, "0xPayer", envelope.From)
}

func TestDecodePaymentHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr string
	}{
		{"empty header", "", "payment header is empty"},
		{"not base64", "not base64!!", "not valid base64"},
		{"not JSON", b64("hello"), "not valid JSON"},
		{"missing signature", b64(`{"amount":"100","payTo":"0xServer","chainId":9745,"token":"0xUSDT0"}`), "missing required field: signature"},
		{"missing amount", b64(`{"signature":"0xsig","payTo":"0xServer","chainId":9745,"token":"0xUSDT0"}`), "missing required field: amount"},
		{"missing token", b64(`{"signature":"0xsig","amount":"100","payTo":"0xServer","chainId":9745}`), "missing required field: token"},
		{"chainId not a number", b64(`{"signature":"0xsig","amount":"100","payTo":"0xServer","chainId":"9745","token":"0xUSDT0"}`), "chainId must be a number"},
		{"amount not a string", b64(`{"signature":"0xsig","amount":100,"payTo":"0xServer","chainId":9745,"token":"0xUSDT0"}`), "amount must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePaymentHeader(tt.header)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeProofHeaderValid(t *testing.T) {
	header := b64(`{"proof":"deadbeef","programIo":"{}","decision":"AUTHORIZED","modelHash":"abc123","binding":{"amount":"100","payTo":"0xServer","chainId":9745,"token":"0xUSDT0","bindingHash":"ff"}}`)
	envelope, err := DecodeProofHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", envelope.Proof)
	assert.Equal(t, zkpay.DecisionAuthorized, envelope.Decision)
	assert.Equal(t, "100", envelope.Binding.Amount)
	assert.Equal(t, "ff", envelope.Binding.BindingHash)
}

func TestDecodeProofHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr string
	}{
		{"empty header", "", "proof header is empty"},
		{"not base64", "%%%", "not valid base64"},
		{"missing proof", b64(`{"decision":"AUTHORIZED","modelHash":"abc123","binding":{}}`), "missing required field: proof"},
		{"missing binding", b64(`{"proof":"deadbeef","decision":"AUTHORIZED","modelHash":"abc123"}`), "missing required field: binding"},
		{"binding not an object", b64(`{"proof":"deadbeef","decision":"AUTHORIZED","modelHash":"abc123","binding":"ff"}`), "binding must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeProofHeader(tt.header)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEncodeDecodePaymentHeader(t *testing.T) {
	envelope := &zkpay.PaymentEnvelope{
		Signature: "0xsig",
		Amount:    "100",
		PayTo:     "0xServer",
		ChainID:   9745,
		Token:     "0xUSDT0",
	}
	header, err := EncodePaymentHeader(envelope)
	require.NoError(t, err)
	decoded, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, envelope, decoded)
}

func TestEncodeDecodeProofHeader(t *testing.T) {
	params := zkpay.PaymentParameters{Amount: "100", PayTo: "0xServer", ChainID: 9745, Token: "0xUSDT0"}
	envelope := &zkpay.ZkProofEnvelope{
		Proof:     "deadbeef",
		ProgramIO: `{"output":[128,0]}`,
		Decision:  zkpay.DecisionAuthorized,
		ModelHash: "abc123",
		Binding:   zkpay.NewBinding(params, zkpay.ProofHash([]byte{0xde, 0xad, 0xbe, 0xef})),
	}
	header, err := EncodeProofHeader(envelope)
	require.NoError(t, err)
	decoded, err := DecodeProofHeader(header)
	require.NoError(t, err)
	assert.Equal(t, envelope, decoded)
}

func TestNewPaymentRequiredResponse(t *testing.T) {
	requirements := zkpay.PaymentRequirements{
		Scheme:            "exact",
		Network:           "eip155:9745",
		MaxAmountRequired: "100",
		Resource:          "/premium",
		PayTo:             "0xServer",
		Asset:             "0xUSDT0",
	}
	resp := NewPaymentRequiredResponse(requirements)
	require.Len(t, resp.Accepts, 1)
	assert.Equal(t, requirements, resp.Accepts[0])
	assert.NotEmpty(t, resp.Error)
}

func TestEncodeSettlementHeader(t *testing.T) {
	result := &zkpay.SettleResult{Success: true, Transaction: "0xdeadbeef", ChainID: 9745}
	header, err := EncodeSettlementHeader(result)
	require.NoError(t, err)
	blob, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	var decoded zkpay.SettleResult
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, *result, decoded)
}
