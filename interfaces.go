package zkpay

import "context"

// ProverBridge produces a proof envelope for a feature vector, bound to the
// payment parameters it was generated for. Implementations wrap the external
// proving process; test doubles implement it directly.
type ProverBridge interface {
	Run(ctx context.Context, features Features, params PaymentParameters) (*ZkProofEnvelope, error)
}

// VerifierBridge checks a proof envelope against a transaction description
// with the external verification service.
//
// A reachable verifier that declines returns (result with Approved=false,
// nil). An error wrapping ErrVerifierUnreachable means the verifier could not
// be consulted at all; the pipeline decides what to do with each class.
type VerifierBridge interface {
	Verify(ctx context.Context, envelope *ZkProofEnvelope, tx TxDescription, modelHash string) (*VerifierResult, error)
}

// Settler submits an accepted payment for settlement and returns the
// transaction outcome. Settlement mechanics (signing, chain submission) are
// external to this module.
type Settler interface {
	Settle(ctx context.Context, payment PaymentEnvelope, approval VerifierResult) (*SettleResult, error)
}
