// Package gin adapts the verification pipeline to gin handlers: a payment
// middleware gating protected routes and an SSE stream bridging lifecycle
// events to observers.
package gin

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	zkpay "github.com/zkpay-protocol/zkpay"
	zkhttp "github.com/zkpay-protocol/zkpay/http"
)

// ProofGatedPayment gates the wrapped handlers on the pipeline's decision.
//
// Requests without an X-Payment header receive the 402 payment-required
// descriptor. Requests with payment and proof attached run the full gate
// sequence; only an accepted result reaches the protected handler. Malformed
// headers are rejected before the pipeline runs.
func ProofGatedPayment(pipeline *zkpay.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := zkpay.Request{Resource: c.Request.URL.Path}

		if header := c.GetHeader(zkhttp.HeaderPayment); header != "" {
			payment, err := zkhttp.DecodePaymentHeader(header)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, zkhttp.RejectionResponse{
					Error: err.Error(),
					Code:  zkpay.ErrCodeMalformedPayment,
				})
				return
			}
			req.Payment = payment
		}
		if header := c.GetHeader(zkhttp.HeaderProof); header != "" {
			proof, err := zkhttp.DecodeProofHeader(header)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, zkhttp.RejectionResponse{
					Error: err.Error(),
					Code:  zkpay.ErrCodeMissingProof,
				})
				return
			}
			req.Proof = proof
		}

		result := pipeline.Run(c.Request.Context(), req)
		switch result.Status {
		case zkpay.ResultPaymentRequired:
			c.AbortWithStatusJSON(result.HTTPStatus, zkhttp.NewPaymentRequiredResponse(*result.Requirements))
		case zkpay.ResultRejected:
			c.AbortWithStatusJSON(result.HTTPStatus, zkhttp.RejectionResponse{
				Error: result.Reason,
				Code:  result.Code,
			})
		default:
			if result.Settlement != nil {
				if header, err := zkhttp.EncodeSettlementHeader(result.Settlement); err == nil {
					c.Header(zkhttp.HeaderPaymentResponse, header)
				}
			}
			c.Next()
		}
	}
}

// EventStream serves lifecycle events as a server-push stream, one event per
// SSE message. Subscribers only observe events published while connected.
func EventStream(bus *zkpay.EventBus) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := bus.Subscribe()
		defer sub.Close()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					return false
				}
				c.SSEvent("lifecycle", event)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
