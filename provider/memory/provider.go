// Package memory is an in-process identity provider. It keeps identities,
// verification codes and sessions in memory and is meant for development
// and tests.
package memory

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCodeTTL is how long a verification code stays valid
	DefaultCodeTTL = 10 * time.Minute
	// DefaultPendingTTL is how long an unverified identity is kept unless a
	// new registration for the same email replaces it first
	DefaultPendingTTL = 24 * time.Hour
)

// CodeGenerator returns a new six digit verification code
type CodeGenerator func() (string, error)

// CodeSender delivers a verification code to email
type CodeSender func(ctx context.Context, email, code string) error

type identity struct {
	mu           sync.Mutex
	id           string
	email        string
	firstName    string
	lastName     string
	passwordHash string
	status       accounts.VerificationStatus
	code         string
	codeIssuedAt time.Time
	createdAt    time.Time
}

type session struct {
	externalID string
	active     bool
}

// Provider implements accounts.IdentityBridge in memory
type Provider struct {
	identities *xsync.MapOf[string, *identity]
	emails     *xsync.MapOf[string, string]
	sessions   *xsync.MapOf[string, session]
	generate   CodeGenerator
	send       CodeSender
	codeTTL    time.Duration
	pendingTTL time.Duration
	hashCost   int
	now        func() time.Time
	logger     accounts.Logger
}

// Option customizes the provider
type Option func(*Provider)

// WithCodeGenerator replaces the random code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(p *Provider) {
		if gen != nil {
			p.generate = gen
		}
	}
}

// WithCodeSender sets the code delivery, by default codes are only logged.
func WithCodeSender(send CodeSender) Option {
	return func(p *Provider) {
		if send != nil {
			p.send = send
		}
	}
}

// WithCodeTTL overrides DefaultCodeTTL.
func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.codeTTL = ttl
		}
	}
}

// WithPendingTTL overrides DefaultPendingTTL.
func WithPendingTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.pendingTTL = ttl
		}
	}
}

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.hashCost = cost
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger accounts.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// StaticCode always issues code.
func StaticCode(code string) CodeGenerator {
	return func() (string, error) {
		return code, nil
	}
}

// RandomCode issues a uniformly random six digit code.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// New returns an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		identities: xsync.NewMapOf[string, *identity](),
		emails:     xsync.NewMapOf[string, string](),
		sessions:   xsync.NewMapOf[string, session](),
		generate:   RandomCode,
		codeTTL:    DefaultCodeTTL,
		pendingTTL: DefaultPendingTTL,
		hashCost:   passwordHashCost(),
		now:        time.Now,
		logger:     nopLogger{},
	}
	p.send = p.logCode

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

var _ accounts.IdentityBridge = (*Provider)(nil)

// CreatePendingIdentity registers an unverified identity. An unverified
// identity with the same email is replaced, a verified one is a duplicate.
func (p *Provider) CreatePendingIdentity(ctx context.Context, email, password, firstName, lastName string) (*accounts.PendingIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, accounts.WrapError(accounts.ErrProviderUnavailable, err)
	}

	p.Purge()

	if err := CheckPasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password, p.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, accounts.WrapError(accounts.ErrWeakCredential, err)
		}
		return nil, err
	}

	key := normalizeEmail(email)
	id := uuid.NewString()

	// an unverified identity gives its email up to a new registration
	var replaced string
	duplicate := false
	p.emails.Compute(key, func(old string, loaded bool) (string, bool) {
		if !loaded {
			return id, false
		}
		if prev, ok := p.identities.Load(old); ok && prev.verified() {
			duplicate = true
			return old, false
		}
		replaced = old
		return id, false
	})
	if duplicate {
		return nil, accounts.NewError(accounts.ErrDuplicateIdentity, map[string]any{"email": key})
	}
	if replaced != "" {
		p.identities.Delete(replaced)
		p.logger.Debug("memory identity replaced", "external_id", replaced)
	}

	p.identities.Store(id, &identity{
		id:           id,
		email:        strings.TrimSpace(email),
		firstName:    firstName,
		lastName:     lastName,
		passwordHash: hash,
		status:       accounts.VerificationUnverified,
		createdAt:    p.now(),
	})

	p.logger.Debug("memory identity created", "external_id", id)

	return &accounts.PendingIdentity{
		ExternalID:         id,
		Email:              strings.TrimSpace(email),
		VerificationStatus: accounts.VerificationUnverified,
	}, nil
}

// SendVerificationCode issues a new code, replacing any previous one.
func (p *Provider) SendVerificationCode(ctx context.Context, pending *accounts.PendingIdentity) error {
	ident, err := p.lookup(ctx, pending)
	if err != nil {
		return err
	}

	code, err := p.generate()
	if err != nil {
		return accounts.WrapError(accounts.ErrProviderUnavailable, err)
	}

	ident.mu.Lock()
	ident.code = code
	ident.codeIssuedAt = p.now()
	ident.status = accounts.VerificationPending
	email := ident.email
	ident.mu.Unlock()

	if err := p.send(ctx, email, code); err != nil {
		return accounts.WrapError(accounts.ErrProviderUnavailable, err, map[string]any{"operation": "send_code"})
	}

	pending.VerificationStatus = accounts.VerificationPending
	return nil
}

// VerifyCode checks code against the last issued one.
func (p *Provider) VerifyCode(ctx context.Context, pending *accounts.PendingIdentity, code string) (*accounts.VerifiedIdentity, error) {
	ident, err := p.lookup(ctx, pending)
	if err != nil {
		return nil, err
	}

	ident.mu.Lock()
	defer ident.mu.Unlock()

	if ident.code == "" {
		return nil, accounts.NewError(accounts.ErrInvalidCode)
	}

	if p.now().Sub(ident.codeIssuedAt) > p.codeTTL {
		return nil, accounts.NewError(accounts.ErrCodeExpired)
	}

	if subtle.ConstantTimeCompare([]byte(ident.code), []byte(code)) != 1 {
		return nil, accounts.NewError(accounts.ErrInvalidCode)
	}

	ident.code = ""
	ident.status = accounts.VerificationVerified

	sid := uuid.NewString()
	p.sessions.Store(sid, session{externalID: ident.id})

	pending.VerificationStatus = accounts.VerificationVerified

	return &accounts.VerifiedIdentity{
		ExternalID: ident.id,
		Email:      ident.email,
		SessionID:  sid,
	}, nil
}

// ActivateSession marks the session issued by VerifyCode as active.
func (p *Provider) ActivateSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return accounts.WrapError(accounts.ErrProviderUnavailable, err)
	}

	s, ok := p.sessions.Load(sessionID)
	if !ok {
		return accounts.NewError(accounts.ErrProviderUnavailable, map[string]any{
			"operation": "activate_session",
			"reason":    "unknown session",
		})
	}

	s.active = true
	p.sessions.Store(sessionID, s)
	return nil
}

// SessionActive reports whether sessionID was activated and returns its identity.
func (p *Provider) SessionActive(sessionID string) (string, bool) {
	s, ok := p.sessions.Load(sessionID)
	if !ok {
		return "", false
	}
	return s.externalID, s.active
}

// Status returns the verification status of an identity.
func (p *Provider) Status(externalID string) (accounts.VerificationStatus, bool) {
	ident, ok := p.identities.Load(externalID)
	if !ok {
		return "", false
	}
	ident.mu.Lock()
	defer ident.mu.Unlock()
	return ident.status, true
}

// Purge drops unverified identities older than the pending TTL and
// returns how many were removed.
func (p *Provider) Purge() int {
	cutoff := p.now().Add(-p.pendingTTL)
	removed := 0

	p.identities.Range(func(id string, ident *identity) bool {
		ident.mu.Lock()
		stale := ident.status != accounts.VerificationVerified && ident.createdAt.Before(cutoff)
		email := ident.email
		ident.mu.Unlock()

		if stale {
			p.identities.Delete(id)
			p.emails.Compute(normalizeEmail(email), func(owner string, loaded bool) (string, bool) {
				return owner, !loaded || owner == id
			})
			removed++
		}
		return true
	})

	if removed > 0 {
		p.logger.Info("purged abandoned identities", "count", removed)
	}
	return removed
}

func (i *identity) verified() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status == accounts.VerificationVerified
}

func (p *Provider) lookup(ctx context.Context, pending *accounts.PendingIdentity) (*identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, accounts.WrapError(accounts.ErrProviderUnavailable, err)
	}

	if pending == nil {
		return nil, accounts.NewError(accounts.ErrProviderUnavailable, map[string]any{"reason": "missing identity"})
	}

	ident, ok := p.identities.Load(pending.ExternalID)
	if !ok {
		return nil, accounts.NewError(accounts.ErrProviderUnavailable, map[string]any{
			"reason":      "unknown identity",
			"external_id": pending.ExternalID,
		})
	}
	return ident, nil
}

func (p *Provider) logCode(_ context.Context, email, code string) error {
	p.logger.Info("verification code issued", "email", email, "code", code)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
