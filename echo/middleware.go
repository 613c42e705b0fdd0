// Package echo adapts the verification pipeline to echo middleware.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	zkpay "github.com/zkpay-protocol/zkpay"
	zkhttp "github.com/zkpay-protocol/zkpay/http"
)

// ProofGatedPayment gates the wrapped handlers on the pipeline's decision,
// mirroring the gin adapter for echo-based resource servers.
func ProofGatedPayment(pipeline *zkpay.Pipeline) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := zkpay.Request{Resource: c.Request().URL.Path}

			if header := c.Request().Header.Get(zkhttp.HeaderPayment); header != "" {
				payment, err := zkhttp.DecodePaymentHeader(header)
				if err != nil {
					return c.JSON(http.StatusBadRequest, zkhttp.RejectionResponse{
						Error: err.Error(),
						Code:  zkpay.ErrCodeMalformedPayment,
					})
				}
				req.Payment = payment
			}
			if header := c.Request().Header.Get(zkhttp.HeaderProof); header != "" {
				proof, err := zkhttp.DecodeProofHeader(header)
				if err != nil {
					return c.JSON(http.StatusBadRequest, zkhttp.RejectionResponse{
						Error: err.Error(),
						Code:  zkpay.ErrCodeMissingProof,
					})
				}
				req.Proof = proof
			}

			result := pipeline.Run(c.Request().Context(), req)
			switch result.Status {
			case zkpay.ResultPaymentRequired:
				return c.JSON(result.HTTPStatus, zkhttp.NewPaymentRequiredResponse(*result.Requirements))
			case zkpay.ResultRejected:
				return c.JSON(result.HTTPStatus, zkhttp.RejectionResponse{
					Error: result.Reason,
					Code:  result.Code,
				})
			default:
				if result.Settlement != nil {
					if header, err := zkhttp.EncodeSettlementHeader(result.Settlement); err == nil {
						c.Response().Header().Set(zkhttp.HeaderPaymentResponse, header)
					}
				}
				return next(c)
			}
		}
	}
}
