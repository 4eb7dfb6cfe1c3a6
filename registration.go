package accounts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Step is a registration step
type Step int

const (
	StepTypeSelection     Step = 1
	StepAccountDetails    Step = 2
	StepEmailVerification Step = 3
	StepComplete          Step = 4
)

// DefaultMaxCodeAttempts is the number of rejected codes allowed per sent code
const DefaultMaxCodeAttempts = 5

func (s Step) String() string {
	switch s {
	case StepTypeSelection:
		return "type_selection"
	case StepAccountDetails:
		return "account_details"
	case StepEmailVerification:
		return "email_verification"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s Step) Terminal() bool {
	return s == StepComplete
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	FlowID string
	From   Step
	To     Step
	Type   UserType
	Email  string
}

// TransitionHook is executed before or after a step change.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after the step changed.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler handles errors surfaced by transition hooks. Returning a
// non nil error from a before hook aborts the transition.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// FlowOption customizes a registration flow.
type FlowOption func(*RegistrationFlow)

// WithFlowID sets the flow identifier, a random uuid otherwise.
func WithFlowID(id string) FlowOption {
	return func(f *RegistrationFlow) {
		if id != "" {
			f.id = id
		}
	}
}

// WithFlowClock injects a custom clock (useful for tests).
func WithFlowClock(clock func() time.Time) FlowOption {
	return func(f *RegistrationFlow) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithFlowActivitySink sets the ActivitySink used to publish registration events.
func WithFlowActivitySink(sink ActivitySink) FlowOption {
	return func(f *RegistrationFlow) {
		f.activitySink = normalizeActivitySink(sink)
	}
}

// WithFlowLogger overrides the logger.
func WithFlowLogger(logger Logger) FlowOption {
	return func(f *RegistrationFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowMetrics sets the metrics collector.
func WithFlowMetrics(m *Metrics) FlowOption {
	return func(f *RegistrationFlow) {
		f.metrics = m
	}
}

// WithMaxCodeAttempts overrides DefaultMaxCodeAttempts.
func WithMaxCodeAttempts(n int) FlowOption {
	return func(f *RegistrationFlow) {
		if n > 0 {
			f.maxCodeAttempts = n
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the step changes.
func WithBeforeTransitionHook(h TransitionHook) FlowOption {
	return func(f *RegistrationFlow) {
		if h != nil {
			f.beforeHooks = append(f.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the step changed.
func WithAfterTransitionHook(h TransitionHook) FlowOption {
	return func(f *RegistrationFlow) {
		if h != nil {
			f.afterHooks = append(f.afterHooks, h)
		}
	}
}

// WithFlowHookErrorHandler overrides how hook failures are propagated.
func WithFlowHookErrorHandler(handler HookErrorHandler) FlowOption {
	return func(f *RegistrationFlow) {
		if handler != nil {
			f.hookErrorHandler = handler
		}
	}
}

// RegistrationFlow drives one user through the registration steps. Every
// action holds the flow lock, flows never share mutable state.
type RegistrationFlow struct {
	mu sync.Mutex

	id          string
	step        Step
	draft       RegistrationDraft
	pending     *PendingIdentity
	pendingName string
	pendingPass string
	verified    *VerifiedIdentity
	active      bool
	reconciled  bool
	user        *User
	attempts    int
	createdAt   time.Time
	touchedAt   time.Time
	transitions map[Step]map[Step]struct{}

	bridge           IdentityBridge
	reconciler       Reconciler
	maxCodeAttempts  int
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	metrics          *Metrics
	beforeHooks      []TransitionHook
	afterHooks       []TransitionHook
	hookErrorHandler HookErrorHandler
}

// FlowState is the public view of a flow, it never carries credentials.
type FlowState struct {
	ID                    string             `json:"flow_id"`
	Step                  Step               `json:"step"`
	StepName              string             `json:"step_name"`
	Type                  UserType           `json:"type"`
	FullName              string             `json:"fullName,omitempty"`
	Email                 string             `json:"email,omitempty"`
	VerificationStatus    VerificationStatus `json:"verificationStatus,omitempty"`
	AttemptsLeft          int                `json:"attemptsLeft"`
	SessionActive         bool               `json:"sessionActive"`
	ReconciliationPending bool               `json:"reconciliationPending"`
	User                  *User              `json:"user,omitempty"`
}

// NewRegistrationFlow returns a flow at the type selection step.
func NewRegistrationFlow(bridge IdentityBridge, reconciler Reconciler, opts ...FlowOption) *RegistrationFlow {
	f := &RegistrationFlow{
		id:    uuid.NewString(),
		step:  StepTypeSelection,
		draft: NewRegistrationDraft(),
		transitions: map[Step]map[Step]struct{}{
			StepTypeSelection: {
				StepAccountDetails: {},
			},
			StepAccountDetails: {
				StepTypeSelection:     {},
				StepEmailVerification: {},
			},
			StepEmailVerification: {
				StepAccountDetails: {},
				StepComplete:       {},
			},
		},
		bridge:          bridge,
		reconciler:      reconciler,
		maxCodeAttempts: DefaultMaxCodeAttempts,
		now:             time.Now,
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return err
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.createdAt = f.now()
	f.touchedAt = f.createdAt
	return f
}

// ID returns the flow identifier.
func (f *RegistrationFlow) ID() string {
	return f.id
}

// Step returns the current step.
func (f *RegistrationFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// User returns the bound local user, nil until reconciliation succeeded.
func (f *RegistrationFlow) User() *User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// Verified returns the verified identity once the code was accepted.
func (f *RegistrationFlow) Verified() *VerifiedIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified
}

// TouchedAt returns the time of the last action on the flow.
func (f *RegistrationFlow) TouchedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchedAt
}

// State returns a snapshot of the flow.
func (f *RegistrationFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := FlowState{
		ID:                    f.id,
		Step:                  f.step,
		StepName:              f.step.String(),
		Type:                  f.draft.Type,
		FullName:              f.draft.FullName,
		Email:                 f.draft.Email,
		AttemptsLeft:          f.maxCodeAttempts - f.attempts,
		SessionActive:         f.active,
		ReconciliationPending: f.step == StepComplete && !f.reconciled,
		User:                  f.user,
	}
	if f.pending != nil {
		state.VerificationStatus = f.pending.VerificationStatus
	}
	return state
}

// SelectType stores the account type and moves to the account details step.
func (f *RegistrationFlow) SelectType(ctx context.Context, t UserType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if err := f.guardStep(StepTypeSelection, "select_type"); err != nil {
		return err
	}

	f.draft.Type = t
	if err := f.draft.ValidateStep(StepTypeSelection); err != nil {
		return err
	}

	return f.transition(ctx, StepAccountDetails)
}

// SubmitAccountDetails validates the details, creates the pending identity,
// sends the verification code and moves to the verification step.
func (f *RegistrationFlow) SubmitAccountDetails(ctx context.Context, details AccountDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if err := f.guardStep(StepAccountDetails, "submit_details"); err != nil {
		return err
	}

	details.Apply(&f.draft)
	if err := f.draft.ValidateStep(StepAccountDetails); err != nil {
		return err
	}

	if f.pending != nil && strings.EqualFold(f.pending.Email, f.draft.Email) {
		if err := unchangedDetails(f.draft, f.pendingName, f.pendingPass); err != nil {
			return err
		}
		return f.transition(ctx, StepEmailVerification)
	}

	// a different email supersedes the previous identity
	f.pending = nil
	f.verified = nil
	f.attempts = 0

	first, last := SplitFullName(f.draft.FullName)
	pending, err := f.bridge.CreatePendingIdentity(ctx, f.draft.Email, f.draft.Password, first, last)
	f.metrics.IncProviderCall("create_identity", err)
	if err != nil {
		f.logger.Warn("create pending identity failed", "flow", f.id, "error", err)
		return providerError(err)
	}
	if pending.VerificationStatus == "" {
		pending.VerificationStatus = VerificationUnverified
	}
	f.pending = pending
	f.pendingName = f.draft.FullName
	f.pendingPass = f.draft.Password

	recordActivity(ctx, f.activitySink, f.logger, f.now, ActivityEvent{
		EventType:  ActivityEventIdentityCreated,
		Actor:      f.actor(),
		FlowID:     f.id,
		ExternalID: pending.ExternalID,
	})

	sendErr := f.sendCode(ctx)
	if err := f.transition(ctx, StepEmailVerification); err != nil {
		return err
	}
	return sendErr
}

// SubmitCode verifies the code, activates the session and reconciles the
// local user. Only activation is retried when a previous call verified the
// code but could not activate the session.
func (f *RegistrationFlow) SubmitCode(ctx context.Context, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if err := f.guardStep(StepEmailVerification, "submit_code"); err != nil {
		return err
	}

	if f.verified == nil {
		f.draft.OTP = otp
		if err := f.draft.ValidateStep(StepEmailVerification); err != nil {
			return err
		}

		if f.attempts >= f.maxCodeAttempts {
			return NewError(ErrTooManyCodeAttempts, map[string]any{
				"flow_id":  f.id,
				"attempts": f.attempts,
			})
		}

		verified, err := f.bridge.VerifyCode(ctx, f.pending, f.draft.OTP)
		f.metrics.IncProviderCall("verify_code", err)
		if err != nil {
			if HasTextCode(err, TextCodeInvalidCode) {
				f.attempts++
				recordActivity(ctx, f.activitySink, f.logger, f.now, ActivityEvent{
					EventType:  ActivityEventCodeRejected,
					Actor:      f.actor(),
					FlowID:     f.id,
					ExternalID: f.pending.ExternalID,
					Metadata:   map[string]any{"attempts": f.attempts},
				})
			}
			return providerError(err)
		}

		f.verified = verified
		f.pending.VerificationStatus = VerificationVerified
		f.draft.OTP = ""
	}

	if err := f.bridge.ActivateSession(ctx, f.verified.SessionID); err != nil {
		f.metrics.IncProviderCall("activate_session", err)
		f.logger.Warn("session activation failed", "flow", f.id, "error", err)
		return providerError(err)
	}
	f.metrics.IncProviderCall("activate_session", nil)
	f.active = true

	if err := f.transition(ctx, StepComplete); err != nil {
		return err
	}

	recordActivity(ctx, f.activitySink, f.logger, f.now, ActivityEvent{
		EventType:  ActivityEventRegistrationCompleted,
		Actor:      f.actor(),
		FlowID:     f.id,
		ExternalID: f.verified.ExternalID,
	})

	return f.reconcile(ctx)
}

// ResendCode sends a new verification code and resets the attempt counter.
func (f *RegistrationFlow) ResendCode(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if err := f.guardStep(StepEmailVerification, "resend_code"); err != nil {
		return err
	}

	if f.verified != nil {
		return NewError(ErrInvalidStepTransition, map[string]any{
			"flow_id": f.id,
			"reason":  "code already verified",
		})
	}

	if err := f.sendCode(ctx); err != nil {
		return err
	}
	f.attempts = 0
	return nil
}

// Back returns to the previous step keeping the draft and the pending identity.
func (f *RegistrationFlow) Back(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.step != StepAccountDetails && f.step != StepEmailVerification {
		return NewError(ErrInvalidStepTransition, map[string]any{
			"flow_id": f.id,
			"from":    f.step.String(),
			"action":  "back",
		})
	}
	return f.transition(ctx, f.step-1)
}

// RetryReconciliation runs reconciliation again for a complete flow that has
// no bound user.
func (f *RegistrationFlow) RetryReconciliation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch()

	if f.step != StepComplete || f.reconciled {
		return NewError(ErrInvalidStepTransition, map[string]any{
			"flow_id": f.id,
			"from":    f.step.String(),
			"action":  "retry_reconciliation",
		})
	}
	return f.reconcile(ctx)
}

func (f *RegistrationFlow) sendCode(ctx context.Context) error {
	err := f.bridge.SendVerificationCode(ctx, f.pending)
	f.metrics.IncProviderCall("send_code", err)
	if err != nil {
		f.logger.Warn("verification code delivery failed", "flow", f.id, "error", err)
		return WrapError(ErrCodeDeliveryFailed, err, map[string]any{"flow_id": f.id})
	}

	f.pending.VerificationStatus = VerificationPending
	recordActivity(ctx, f.activitySink, f.logger, f.now, ActivityEvent{
		EventType:  ActivityEventCodeSent,
		Actor:      f.actor(),
		FlowID:     f.id,
		ExternalID: f.pending.ExternalID,
	})
	return nil
}

func (f *RegistrationFlow) reconcile(ctx context.Context) error {
	email := f.verified.Email
	if email == "" {
		email = f.draft.Email
	}

	user, err := f.reconciler.Execute(ctx, ReconcileUserMessage{
		FullName:    f.draft.FullName,
		ExternalID:  f.verified.ExternalID,
		AccountType: f.draft.Type,
		Email:       email,
	})
	if err != nil && !HasTextCode(err, TextCodeUserAlreadyExists) {
		f.logger.Error("reconciliation failed", "flow", f.id, "external_id", f.verified.ExternalID, "error", err)
		return WrapError(ErrReconciliationPending, err, map[string]any{
			"flow_id":     f.id,
			"external_id": f.verified.ExternalID,
		})
	}

	f.reconciled = true
	f.user = user
	return nil
}

func (f *RegistrationFlow) guardStep(expected Step, action string) error {
	if f.step == expected {
		return nil
	}
	return NewError(ErrInvalidStepTransition, map[string]any{
		"flow_id":  f.id,
		"from":     f.step.String(),
		"expected": expected.String(),
		"action":   action,
	})
}

func (f *RegistrationFlow) transition(ctx context.Context, to Step) error {
	from := f.step
	if !f.canTransition(from, to) {
		return NewError(ErrInvalidStepTransition, map[string]any{
			"flow_id": f.id,
			"from":    from.String(),
			"to":      to.String(),
		})
	}

	if to == StepEmailVerification && f.pending == nil {
		return NewError(ErrInvalidStepTransition, map[string]any{
			"flow_id": f.id,
			"from":    from.String(),
			"to":      to.String(),
			"reason":  "no pending identity",
		})
	}

	tc := TransitionContext{
		FlowID: f.id,
		From:   from,
		To:     to,
		Type:   f.draft.Type,
		Email:  f.draft.Email,
	}

	if err := f.runHooks(ctx, f.beforeHooks, tc, HookPhaseBefore); err != nil {
		return err
	}

	f.step = to
	f.metrics.IncStepTransition(from, to)

	recordActivity(ctx, f.activitySink, f.logger, f.now, ActivityEvent{
		EventType: ActivityEventStepChanged,
		Actor:     f.actor(),
		FlowID:    f.id,
		FromStep:  from,
		ToStep:    to,
	})

	if err := f.runHooks(ctx, f.afterHooks, tc, HookPhaseAfter); err != nil {
		f.logger.Warn("after transition hook failed", "flow", f.id, "error", err)
	}

	return nil
}

func (f *RegistrationFlow) runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			if f.hookErrorHandler == nil {
				return err
			}
			return f.hookErrorHandler(ctx, phase, err, tc)
		}
	}
	return nil
}

func (f *RegistrationFlow) canTransition(from, to Step) bool {
	if allowed, ok := f.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (f *RegistrationFlow) touch() {
	f.touchedAt = f.now()
}

func (f *RegistrationFlow) actor() ActorRef {
	return ActorRef{ID: f.id, Type: "registration_flow"}
}

// providerError keeps go-errors values and maps anything else to
// ProviderUnavailable.
func providerError(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return WrapError(ErrProviderUnavailable, err)
}
