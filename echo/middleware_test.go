package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	zkpay "github.com/zkpay-protocol/zkpay"
	zkhttp "github.com/zkpay-protocol/zkpay/http"
	"github.com/zkpay-protocol/zkpay/scenarios"
)

type approveAll struct {
	nonce uint64
}

func (v *approveAll) Verify(ctx context.Context, envelope *zkpay.ZkProofEnvelope, tx zkpay.TxDescription, modelHash string) (*zkpay.VerifierResult, error) {
	v.nonce++
	return &zkpay.VerifierResult{Approved: true, Signature: "0xsig", Nonce: v.nonce, Timestamp: 1700000000}, nil
}

func testServer(t *testing.T) *echo.Echo {
	t.Helper()
	pipeline := zkpay.NewPipeline(scenarios.BoundParams(), &approveAll{})
	e := echo.New()
	e.GET("/premium", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"content": "premium"})
	}, ProofGatedPayment(pipeline))
	return e
}

func perform(e *echo.Echo, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRespondsPaymentRequired(t *testing.T) {
	rec := perform(testServer(t), nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var body zkhttp.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("undecodable 402 body: %v", err)
	}
	if len(body.Accepts) != 1 || body.Accepts[0].PayTo != scenarios.ServerAddress {
		t.Errorf("unexpected descriptor: %+v", body.Accepts)
	}
}

func TestMiddlewareGatesOnBinding(t *testing.T) {
	server := testServer(t)
	for _, fixture := range scenarios.Catalog() {
		t.Run(fixture.Name, func(t *testing.T) {
			paymentHeader, err := zkhttp.EncodePaymentHeader(scenarios.Payment(fixture))
			if err != nil {
				t.Fatalf("encode payment: %v", err)
			}
			proofHeader, err := zkhttp.EncodeProofHeader(scenarios.Envelope(fixture))
			if err != nil {
				t.Fatalf("encode proof: %v", err)
			}
			rec := perform(server, map[string]string{
				zkhttp.HeaderPayment: paymentHeader,
				zkhttp.HeaderProof:   proofHeader,
			})
			want := http.StatusForbidden
			if fixture.ExpectAccept {
				want = http.StatusOK
			}
			if rec.Code != want {
				t.Fatalf("expected %d, got %d (%s)", want, rec.Code, rec.Body.String())
			}
		})
	}
}
