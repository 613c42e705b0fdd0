// Package scenarios carries the declarative fixtures that exercise the
// verification pipeline deterministically: one legitimate parameter set and
// tampered variants where exactly one field diverges from what the proof was
// bound to.
package scenarios

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	zkpay "github.com/zkpay-protocol/zkpay"
	"github.com/zkpay-protocol/zkpay/proofcache"
)

// Demo addresses and pricing shared by the fixtures.
const (
	ServerAddress = "0xServer"
	DeadAddress   = "0x000000000000000000000000000000000000dEaD"
	TokenUSDT0    = "0xUSDT0"
	ChainID       = 9745
	PriceAmount   = "100"
	TamperAmount  = "10000000"
)

// DemoFeatures is a feature vector the authorization model approves.
var DemoFeatures = zkpay.Features{
	Budget:   10,
	Trust:    5,
	Amount:   2,
	Category: 1,
	Velocity: 1,
	Day:      3,
	Time:     1,
}

// Fixture describes one named scenario: the parameters a proof was bound to
// and the parameters actually submitted as payment.
type Fixture struct {
	Name         string
	Features     zkpay.Features
	Bound        zkpay.PaymentParameters
	Submitted    zkpay.PaymentParameters
	ExpectAccept bool
	// ExpectReason is a fragment the rejection reason must contain.
	ExpectReason string
}

// BoundParams is the legitimate parameter set every fixture's proof is bound
// to.
func BoundParams() zkpay.PaymentParameters {
	return zkpay.PaymentParameters{
		Amount:  PriceAmount,
		PayTo:   ServerAddress,
		ChainID: ChainID,
		Token:   TokenUSDT0,
	}
}

// Catalog returns the named fixtures. The tampered fixtures each diverge in
// exactly one field, so the rejection reason is fully predictable.
func Catalog() []Fixture {
	bound := BoundParams()

	amountTampered := bound
	amountTampered.Amount = TamperAmount

	recipientTampered := bound
	recipientTampered.PayTo = DeadAddress

	return []Fixture{
		{
			Name:         "normal",
			Features:     DemoFeatures,
			Bound:        bound,
			Submitted:    bound,
			ExpectAccept: true,
		},
		{
			Name:         "amount-tamper",
			Features:     DemoFeatures,
			Bound:        bound,
			Submitted:    amountTampered,
			ExpectReason: fmt.Sprintf("Amount mismatch: proof bound to %s, payment requests %s", PriceAmount, TamperAmount),
		},
		{
			Name:         "recipient-tamper",
			Features:     DemoFeatures,
			Bound:        bound,
			Submitted:    recipientTampered,
			ExpectReason: "Recipient mismatch",
		},
	}
}

// Envelope builds a deterministic proof envelope for a fixture. The proof
// bytes are synthetic but stable per fixture name, so cache keys, bindings
// and hashes reproduce across runs.
func Envelope(f Fixture) *zkpay.ZkProofEnvelope {
	proofSeed := sha256.Sum256([]byte("proof:" + f.Name))
	modelSeed := sha256.Sum256([]byte("authorization.onnx"))

	proofHex := hex.EncodeToString(proofSeed[:])
	proofBytes, _ := hex.DecodeString(proofHex)

	return &zkpay.ZkProofEnvelope{
		Proof:     proofHex,
		ProgramIO: `{"output":[128,0]}`,
		Decision:  zkpay.DecisionAuthorized,
		ModelHash: hex.EncodeToString(modelSeed[:]),
		Binding:   zkpay.NewBinding(f.Bound, zkpay.ProofHash(proofBytes)),
	}
}

// Payment builds the payment envelope a fixture submits, claiming the
// fixture's submitted parameters.
func Payment(f Fixture) *zkpay.PaymentEnvelope {
	sigSeed := sha256.Sum256([]byte("sig:" + f.Name))
	return &zkpay.PaymentEnvelope{
		Signature: "0x" + hex.EncodeToString(sigSeed[:]),
		Amount:    f.Submitted.Amount,
		PayTo:     f.Submitted.PayTo,
		ChainID:   f.Submitted.ChainID,
		Token:     f.Submitted.Token,
		From:      "0xPayer",
	}
}

// Seed pre-populates a proof cache with every fixture's envelope under its
// scenario name, so deterministic runs can load proofs without invoking the
// prover.
func Seed(store proofcache.Store) error {
	for _, fixture := range Catalog() {
		if err := store.PutNamed(fixture.Name, Envelope(fixture)); err != nil {
			return fmt.Errorf("seed scenario %q: %w", fixture.Name, err)
		}
	}
	return nil
}
