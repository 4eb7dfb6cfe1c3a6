// Package kratos implements the identity bridge on top of the Ory Kratos
// native self-service API: password registration, code verification and
// session lookup.
package kratos

import (
	"context"
	"errors"
	"net/http"

	accounts "github.com/goliatone/go-accounts"
	client "github.com/ory/kratos-client-go"
	"github.com/sony/gobreaker"
)

const (
	opCreateIdentity  = "create_identity"
	opSendCode        = "send_code"
	opVerifyCode      = "verify_code"
	opActivateSession = "activate_session"
)

// Bridge implements accounts.IdentityBridge against Kratos.
type Bridge struct {
	api     *client.APIClient
	traits  TraitsFunc
	breaker *gobreaker.CircuitBreaker
	logger  accounts.Logger
}

// Option customizes the bridge
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger accounts.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(b *Bridge) {
		if cb != nil {
			b.breaker = cb
		}
	}
}

// NewBreaker returns the default breaker: it opens after five consecutive
// provider failures and lets a trial request through after thirty seconds. Domain
// rejections such as a duplicate email do not count as failures.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     defaultBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return !breakerFailure(err)
		},
	})
}

// New returns a bridge for cfg.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	conf := client.NewConfiguration()
	conf.Servers = client.ServerConfigurations{{URL: cfg.PublicURL}}
	conf.HTTPClient = cfg.HTTPClient
	conf.AddDefaultHeader("Accept", "application/json")

	b := &Bridge{
		api:     client.NewAPIClient(conf),
		traits:  cfg.Traits,
		breaker: NewBreaker(cfg.BreakerName),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

var _ accounts.IdentityBridge = (*Bridge)(nil)

// CreatePendingIdentity runs a native registration flow with the password
// method. The session token Kratos returns, if any, becomes the
// CreatedSessionID.
func (b *Bridge) CreatePendingIdentity(ctx context.Context, email, password, firstName, lastName string) (*accounts.PendingIdentity, error) {
	var reg *client.SuccessfulNativeRegistration

	err := b.call(ctx, opCreateIdentity, func() (*http.Response, error) {
		flow, resp, err := b.api.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
		if err != nil {
			return resp, err
		}

		body := client.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(
			&client.UpdateRegistrationFlowWithPasswordMethod{
				Method:   "password",
				Password: password,
				Traits:   b.traits(email, firstName, lastName),
			},
		)

		reg, resp, err = b.api.FrontendAPI.UpdateRegistrationFlow(ctx).
			Flow(flow.Id).
			UpdateRegistrationFlowBody(body).
			Execute()
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	identity := reg.GetIdentity()
	b.logger.Info("kratos identity created", "external_id", identity.Id)

	return &accounts.PendingIdentity{
		ExternalID:         identity.Id,
		Email:              email,
		VerificationStatus: accounts.VerificationUnverified,
		CreatedSessionID:   reg.GetSessionToken(),
	}, nil
}

// SendVerificationCode submits the email to the verification flow, which
// makes Kratos send a code. An expired flow is replaced once.
func (b *Bridge) SendVerificationCode(ctx context.Context, pending *accounts.PendingIdentity) error {
	if pending == nil {
		return accounts.NewError(accounts.ErrProviderUnavailable, map[string]any{"reason": "missing identity"})
	}

	err := b.sendCode(ctx, pending)
	if accounts.HasTextCode(err, accounts.TextCodeCodeExpired) {
		b.logger.Debug("kratos verification flow expired, starting a new one", "external_id", pending.ExternalID)
		pending.FlowID = ""
		err = b.sendCode(ctx, pending)
	}

	if err != nil {
		if !accounts.IsProviderUnavailable(err) {
			err = accounts.WrapError(accounts.ErrProviderUnavailable, err, map[string]any{"operation": opSendCode})
		}
		return err
	}

	pending.VerificationStatus = accounts.VerificationPending
	return nil
}

func (b *Bridge) sendCode(ctx context.Context, pending *accounts.PendingIdentity) error {
	return b.call(ctx, opSendCode, func() (*http.Response, error) {
		if pending.FlowID == "" {
			flow, resp, err := b.api.FrontendAPI.CreateNativeVerificationFlow(ctx).Execute()
			if err != nil {
				return resp, err
			}
			pending.FlowID = flow.Id
		}

		body := client.UpdateVerificationFlowWithCodeMethodAsUpdateVerificationFlowBody(
			&client.UpdateVerificationFlowWithCodeMethod{
				Method: "code",
				Email:  client.PtrString(pending.Email),
			},
		)

		flow, resp, err := b.api.FrontendAPI.UpdateVerificationFlow(ctx).
			Flow(pending.FlowID).
			UpdateVerificationFlowBody(body).
			Execute()
		if err != nil {
			return resp, err
		}
		return resp, flowError(opSendCode, flow)
	})
}

// VerifyCode submits code to the verification flow of pending.
func (b *Bridge) VerifyCode(ctx context.Context, pending *accounts.PendingIdentity, code string) (*accounts.VerifiedIdentity, error) {
	if pending == nil || pending.FlowID == "" {
		return nil, accounts.NewError(accounts.ErrInvalidCode, map[string]any{"reason": "no code was sent"})
	}

	err := b.call(ctx, opVerifyCode, func() (*http.Response, error) {
		body := client.UpdateVerificationFlowWithCodeMethodAsUpdateVerificationFlowBody(
			&client.UpdateVerificationFlowWithCodeMethod{
				Method: "code",
				Code:   client.PtrString(code),
			},
		)

		flow, resp, err := b.api.FrontendAPI.UpdateVerificationFlow(ctx).
			Flow(pending.FlowID).
			UpdateVerificationFlowBody(body).
			Execute()
		if err != nil {
			return resp, err
		}
		return resp, flowError(opVerifyCode, flow)
	})
	if err != nil {
		return nil, err
	}

	pending.VerificationStatus = accounts.VerificationVerified

	return &accounts.VerifiedIdentity{
		ExternalID: pending.ExternalID,
		Email:      pending.Email,
		SessionID:  pending.CreatedSessionID,
	}, nil
}

// ActivateSession checks the session token is live. Deployments that do
// not issue a session on registration have nothing to activate.
func (b *Bridge) ActivateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		b.logger.Debug("kratos registration issued no session, skipping activation")
		return nil
	}

	var session *client.Session
	err := b.call(ctx, opActivateSession, func() (*http.Response, error) {
		var resp *http.Response
		var err error
		session, resp, err = b.api.FrontendAPI.ToSession(ctx).XSessionToken(sessionID).Execute()
		return resp, err
	})
	if err != nil {
		return err
	}

	if !session.GetActive() {
		return accounts.NewError(accounts.ErrProviderUnavailable, map[string]any{
			"operation":  opActivateSession,
			"reason":     "session inactive",
			"session_id": session.Id,
		})
	}
	return nil
}

// call runs fn through the circuit breaker and maps its failure.
func (b *Bridge) call(ctx context.Context, op string, fn func() (*http.Response, error)) error {
	if err := ctx.Err(); err != nil {
		return accounts.WrapError(accounts.ErrProviderUnavailable, err, map[string]any{"operation": op})
	}

	_, err := b.breaker.Execute(func() (any, error) {
		resp, err := fn()
		return nil, mapError(op, err, resp)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("kratos circuit open", "operation", op, "breaker", b.breaker.Name())
		return accounts.WrapError(accounts.ErrProviderUnavailable, err, map[string]any{
			"operation": op,
			"reason":    "circuit open",
		})
	}

	if err != nil && accounts.IsProviderUnavailable(err) {
		b.logger.Error("kratos call failed", "operation", op, "error", err)
	}
	return err
}

// flowError maps the error messages of a flow Kratos answered with 200.
func flowError(op string, flow *client.VerificationFlow) error {
	if flow == nil {
		return nil
	}

	ui := flow.GetUi()
	msgs := make([]uiText, 0, len(ui.GetMessages()))
	for _, m := range ui.GetMessages() {
		msgs = append(msgs, uiText{ID: m.GetId(), Text: m.GetText(), Type: m.GetType()})
	}
	return mapMessages(op, msgs)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
