package zkpay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State names one position in the verification state machine.
type State string

const (
	StateAwaitingPayment   State = "awaiting_payment"
	StateAwaitingProof     State = "awaiting_proof"
	StateCheckingStructure State = "checking_structure"
	StateCheckingBinding   State = "checking_binding"
	StateCheckingVerifier  State = "checking_verifier"
	StateSettling          State = "settling"
	StateAccepted          State = "accepted"
	StateRejected          State = "rejected"
)

// ResultStatus is the pipeline's final decision class.
type ResultStatus string

const (
	// ResultPaymentRequired is the protocol's normal first round-trip, not
	// a failure: the caller has not attached a payment yet.
	ResultPaymentRequired ResultStatus = "payment_required"
	ResultAccepted        ResultStatus = "accepted"
	ResultRejected        ResultStatus = "rejected"
)

// Request is one inbound attempt to access the protected resource.
type Request struct {
	Resource string
	Payment  *PaymentEnvelope
	Proof    *ZkProofEnvelope
}

// Result is the pipeline's terminal outcome for one request.
type Result struct {
	Status     ResultStatus
	State      State
	Code       string
	Reason     string
	HTTPStatus int
	RequestID  string

	// Requirements is populated on the payment-required path.
	Requirements *PaymentRequirements
	// Approval is the verifier's result when the verifier gate ran.
	Approval *VerifierResult
	// Settlement is populated when the settling state ran.
	Settlement *SettleResult
}

// Accepted reports whether the protected resource may be released.
func (r Result) Accepted() bool {
	return r.Status == ResultAccepted
}

// Pipeline is the gated verification state machine. Gates run strictly
// sequentially per request and fail fast; the binding gate always runs before
// the verifier is contacted, so cheaply falsifiable requests never pay the
// cost of remote verification.
//
// A Pipeline is safely re-entrant: concurrent Run calls share only the
// injected event bus and collaborators, which tolerate concurrent use.
type Pipeline struct {
	expected  PaymentParameters
	scheme    string
	verifier  VerifierBridge
	settler   Settler
	bus       *EventBus
	logger    zerolog.Logger
	modelHash string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSettler injects the settlement collaborator used in the Settling state.
// Without one, accepted requests skip settlement.
func WithSettler(s Settler) PipelineOption {
	return func(p *Pipeline) { p.settler = s }
}

// WithEventBus injects the bus lifecycle events are published to.
func WithEventBus(bus *EventBus) PipelineOption {
	return func(p *Pipeline) { p.bus = bus }
}

// WithLogger injects a structured logger. Defaults to a disabled logger.
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithModelHash pins the model hash forwarded to the verifier. Without it the
// envelope's claimed model hash is forwarded and the verifier enforces the
// match.
func WithModelHash(hash string) PipelineOption {
	return func(p *Pipeline) { p.modelHash = hash }
}

// WithScheme sets the payment scheme advertised in the payment-required
// descriptor. Defaults to "exact".
func WithScheme(scheme string) PipelineOption {
	return func(p *Pipeline) { p.scheme = scheme }
}

// NewPipeline creates a pipeline that prices requests at the given payment
// parameters and gates acceptance on the given verifier.
func NewPipeline(expected PaymentParameters, verifier VerifierBridge, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		expected: expected,
		scheme:   "exact",
		verifier: verifier,
		bus:      NewEventBus(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bus returns the event bus lifecycle events are published to.
func (p *Pipeline) Bus() *EventBus {
	return p.bus
}

// Requirements builds the payment-required descriptor for a resource.
func (p *Pipeline) Requirements(resource string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            p.scheme,
		Network:           fmt.Sprintf("eip155:%d", p.expected.ChainID),
		MaxAmountRequired: p.expected.Amount,
		Resource:          resource,
		PayTo:             p.expected.PayTo,
		Asset:             p.expected.Token,
		Extra:             map[string]interface{}{"zkmlRequired": true},
	}
}

type runConfig struct {
	deferCompletion bool
}

// RunOption configures a single pipeline run.
type RunOption func(*runConfig)

// WithDeferredCompletion suppresses the pipeline's terminal lifecycle event.
// Orchestrators that drive settlement and completion reporting themselves use
// this to avoid duplicate or contradictory events for the same transaction.
func WithDeferredCompletion() RunOption {
	return func(c *runConfig) { c.deferCompletion = true }
}

// Run drives one request through the gates. The returned Result is terminal:
// retries, if any, belong to the caller.
func (p *Pipeline) Run(ctx context.Context, req Request, opts ...RunOption) Result {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	requestID := uuid.NewString()
	log := p.logger.With().Str("requestId", requestID).Str("resource", req.Resource).Logger()

	// Gate 1: AwaitingPayment. No payment artifact is the protocol's normal
	// first round-trip, not a failure.
	if req.Payment == nil {
		reqs := p.Requirements(req.Resource)
		p.emit(requestID, LifecycleEvent{
			Step:        StepPaymentRequired,
			Title:       "Payment required",
			Description: fmt.Sprintf("Resource requires %s of %s paid to %s", reqs.MaxAmountRequired, reqs.Asset, reqs.PayTo),
			Actor:       "gateway",
			Status:      EventInfo,
		})
		log.Info().Msg("no payment attached, responding with requirements")
		return Result{
			Status:       ResultPaymentRequired,
			State:        StateAwaitingPayment,
			Code:         ErrCodePaymentRequired,
			Reason:       "payment required",
			HTTPStatus:   http.StatusPaymentRequired,
			RequestID:    requestID,
			Requirements: &reqs,
		}
	}

	// Gate 2: AwaitingProof. Payment without proof is never sufficient.
	if req.Proof == nil || req.Proof.Proof == "" || req.Proof.Decision != DecisionAuthorized {
		reason := "payment attached without a zk proof of policy authorization"
		if req.Proof != nil {
			reason = "attached proof carries no authorization"
		}
		return p.reject(requestID, cfg, StateAwaitingProof, ErrCodeMissingProof, reason, http.StatusPaymentRequired, StepProofCheck, log)
	}
	p.emit(requestID, LifecycleEvent{
		Step:        StepProofCheck,
		Title:       "Proof attached",
		Description: "Payment and proof artifacts present",
		Actor:       "gateway",
		Status:      EventSuccess,
	})

	// Gate 3: CheckingStructure.
	if err := validatePaymentStructure(req.Payment); err != nil {
		return p.reject(requestID, cfg, StateCheckingStructure, ErrCodeMalformedPayment, err.Error(), http.StatusBadRequest, StepStructureCheck, log)
	}
	p.emit(requestID, LifecycleEvent{
		Step:        StepStructureCheck,
		Title:       "Payment structure valid",
		Description: "Payment envelope carries signature, amount and recipient",
		Actor:       "gateway",
		Status:      EventSuccess,
	})

	// Gate 4: CheckingBinding. Verified against the payment's claimed
	// parameters, not the proof's own embedded ones: the point is to catch
	// divergence between what was proved and what is being paid.
	proofBytes, err := req.Proof.ProofBytes()
	if err != nil {
		return p.reject(requestID, cfg, StateCheckingBinding, ErrCodeBindingMismatch, err.Error(), http.StatusForbidden, StepBindingCheck, log)
	}
	check := VerifyBinding(req.Proof.Binding, req.Payment.Parameters(), ProofHash(proofBytes))
	if !check.Valid {
		return p.reject(requestID, cfg, StateCheckingBinding, ErrCodeBindingMismatch, check.Reason, http.StatusForbidden, StepBindingCheck, log)
	}
	p.emit(requestID, LifecycleEvent{
		Step:        StepBindingCheck,
		Title:       "Binding verified",
		Description: "Proof is bound to the exact payment being made",
		Actor:       "gateway",
		Status:      EventSuccess,
		Details:     map[string]interface{}{"bindingHash": req.Proof.Binding.BindingHash},
	})

	// Gate 5: CheckingVerifier.
	p.emit(requestID, LifecycleEvent{
		Step:        StepVerifierCheck,
		Title:       "Verifying proof",
		Description: "Submitting proof to the external verifier",
		Actor:       "verifier",
		Status:      EventPending,
	})
	modelHash := p.modelHash
	if modelHash == "" {
		modelHash = req.Proof.ModelHash
	}
	tx := TxDescription{To: req.Payment.PayTo, Amount: req.Payment.Amount, Token: req.Payment.Token}
	approval, err := p.verifier.Verify(ctx, req.Proof, tx, modelHash)
	if err != nil {
		// Fail-closed: an unreachable verifier rejects the request; an
		// unverified proof is never allowed through.
		code := ErrCodeVerifierUnreachable
		status := http.StatusServiceUnavailable
		if !errors.Is(err, ErrVerifierUnreachable) {
			code = ErrCodeVerifierRejected
			status = http.StatusForbidden
		}
		log.Warn().Err(err).Msg("verifier call failed, rejecting")
		return p.reject(requestID, cfg, StateCheckingVerifier, code, err.Error(), status, StepVerifierCheck, log)
	}
	if !approval.Approved {
		res := p.reject(requestID, cfg, StateCheckingVerifier, ErrCodeVerifierRejected, approval.Reason, http.StatusForbidden, StepVerifierCheck, log)
		res.Approval = approval
		return res
	}
	p.emit(requestID, LifecycleEvent{
		Step:        StepVerifierCheck,
		Title:       "Proof verified",
		Description: "External verifier approved the proof",
		Actor:       "verifier",
		Status:      EventSuccess,
		Details:     map[string]interface{}{"nonce": approval.Nonce},
	})

	result := Result{
		Status:     ResultAccepted,
		State:      StateAccepted,
		HTTPStatus: http.StatusOK,
		RequestID:  requestID,
		Approval:   approval,
	}

	// Settling: only reachable after the verifier gate. Settlement failure
	// is reported but does not revoke the acceptance decision already made.
	if p.settler != nil {
		p.emit(requestID, LifecycleEvent{
			Step:        StepSettlement,
			Title:       "Settling payment",
			Description: "Submitting the approved payment for settlement",
			Actor:       "settlement",
			Status:      EventPending,
		})
		settlement, settleErr := p.settler.Settle(ctx, *req.Payment, *approval)
		switch {
		case settleErr != nil:
			log.Error().Err(settleErr).Msg("settlement failed after acceptance")
			result.Settlement = &SettleResult{Success: false, ErrorReason: settleErr.Error(), ChainID: req.Payment.ChainID}
			p.emit(requestID, LifecycleEvent{
				Step:        StepSettlement,
				Title:       "Settlement failed",
				Description: settleErr.Error(),
				Actor:       "settlement",
				Status:      EventFailure,
			})
		default:
			result.Settlement = settlement
			status := EventSuccess
			desc := fmt.Sprintf("Settled in transaction %s", settlement.Transaction)
			if !settlement.Success {
				status = EventFailure
				desc = settlement.ErrorReason
			}
			p.emit(requestID, LifecycleEvent{
				Step:        StepSettlement,
				Title:       "Settlement submitted",
				Description: desc,
				Actor:       "settlement",
				Status:      status,
				Details:     map[string]interface{}{"transaction": settlement.Transaction},
			})
		}
	}

	if !cfg.deferCompletion {
		p.emit(requestID, LifecycleEvent{
			Step:        StepComplete,
			Title:       "Request accepted",
			Description: "Proof-gated payment verified, releasing resource",
			Actor:       "gateway",
			Status:      EventSuccess,
		})
	}
	log.Info().Uint64("nonce", approval.Nonce).Msg("request accepted")
	return result
}

// reject terminates the run at the given gate with a specific reason.
func (p *Pipeline) reject(requestID string, cfg runConfig, state State, code, reason string, httpStatus int, step string, log zerolog.Logger) Result {
	p.emit(requestID, LifecycleEvent{
		Step:        step,
		Title:       "Gate failed",
		Description: reason,
		Actor:       "gateway",
		Status:      EventFailure,
		Details:     map[string]interface{}{"code": code},
	})
	if !cfg.deferCompletion {
		p.emit(requestID, LifecycleEvent{
			Step:        StepComplete,
			Title:       "Request rejected",
			Description: reason,
			Actor:       "gateway",
			Status:      EventFailure,
		})
	}
	log.Info().Str("code", code).Str("reason", reason).Msg("request rejected")
	return Result{
		Status:     ResultRejected,
		State:      state,
		Code:       code,
		Reason:     reason,
		HTTPStatus: httpStatus,
		RequestID:  requestID,
	}
}

func (p *Pipeline) emit(requestID string, event LifecycleEvent) {
	if p.bus == nil {
		return
	}
	if event.Details == nil {
		event.Details = map[string]interface{}{}
	}
	event.Details["requestId"] = requestID
	event.Timestamp = time.Now()
	p.bus.Publish(event)
}

// validatePaymentStructure checks the minimum fields a payment artifact must
// carry before any cryptographic work happens.
func validatePaymentStructure(payment *PaymentEnvelope) error {
	if payment.Signature == "" {
		return fmt.Errorf("payment signature is required")
	}
	if payment.Amount == "" {
		return fmt.Errorf("payment amount is required")
	}
	if payment.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}
