package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultReconcileTimeout bounds the reconciliation transaction
const DefaultReconcileTimeout = 10 * time.Second

// ReconcileUserMessage binds a verified external identity to a local user
type ReconcileUserMessage struct {
	FullName    string   `json:"fullName"`
	ExternalID  string   `json:"externalId"`
	AccountType UserType `json:"type"`
	Email       string   `json:"email"`
}

func (e ReconcileUserMessage) Type() string { return "user.reconcile" }

// Validate checks the required parameters.
func (e ReconcileUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FullName, validation.Required),
		validation.Field(&e.ExternalID, validation.Required),
		validation.Field(&e.AccountType, validation.Required, validation.In(UserTypeOwner, UserTypeIndividual)),
	)
}

// ReconcileUserHandler creates exactly one local user per external identity.
// Concurrent calls for the same identity are resolved by the unique
// constraint on external_id.
type ReconcileUserHandler struct {
	repo         RepositoryManager
	timeout      time.Duration
	now          func() time.Time
	logger       Logger
	metrics      *Metrics
	activitySink ActivitySink
}

var _ Reconciler = (*ReconcileUserHandler)(nil)

// ReconcileOption customizes the handler
type ReconcileOption func(*ReconcileUserHandler)

// WithReconcileTimeout overrides DefaultReconcileTimeout.
func WithReconcileTimeout(d time.Duration) ReconcileOption {
	return func(h *ReconcileUserHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithReconcileLogger sets the logger.
func WithReconcileLogger(logger Logger) ReconcileOption {
	return func(h *ReconcileUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithReconcileMetrics sets the metrics collector.
func WithReconcileMetrics(m *Metrics) ReconcileOption {
	return func(h *ReconcileUserHandler) {
		h.metrics = m
	}
}

// WithReconcileActivitySink sets the activity sink.
func WithReconcileActivitySink(sink ActivitySink) ReconcileOption {
	return func(h *ReconcileUserHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithReconcileClock injects a custom clock.
func WithReconcileClock(clock func() time.Time) ReconcileOption {
	return func(h *ReconcileUserHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewReconcileUserHandler returns a handler backed by repo.
func NewReconcileUserHandler(repo RepositoryManager, opts ...ReconcileOption) *ReconcileUserHandler {
	h := &ReconcileUserHandler{
		repo:         repo,
		timeout:      DefaultReconcileTimeout,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Execute returns the created user, or the existing user together with
// ErrUserAlreadyExists.
func (h *ReconcileUserHandler) Execute(ctx context.Context, event ReconcileUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, WrapError(ErrPersistenceUnavailable, ctx.Err(), map[string]any{
			"reason": "context cancelled during reconciliation",
		})
	default:
		user, err := h.execute(ctx, event)
		h.metrics.IncReconciliation(err)
		return user, err
	}
}

func (h *ReconcileUserHandler) execute(ctx context.Context, event ReconcileUserMessage) (*User, error) {
	event.FullName = strings.TrimSpace(event.FullName)
	event.ExternalID = strings.TrimSpace(event.ExternalID)
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(); err != nil {
		return nil, WrapError(ErrInvalidInput, err, map[string]any{
			"external_id": event.ExternalID,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var user *User
	var existing bool

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().GetByExternalIDTx(ctx, tx, event.ExternalID)
		if err == nil {
			user = found
			existing = true
			return nil
		}

		if !repository.IsRecordNotFound(err) {
			return err
		}

		now := h.now()
		record := &User{
			ID:         UserIDFromExternalID(event.ExternalID),
			FullName:   event.FullName,
			ExternalID: event.ExternalID,
			Type:       event.AccountType,
			Email:      event.Email,
			Role:       event.AccountType.Role(),
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, record); err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return h.resolveConflict(ctx, event)
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.TextCode != "" {
			return nil, richErr
		}

		h.logger.Error("reconciliation transaction failed", "external_id", event.ExternalID, "error", err)
		return nil, WrapError(ErrPersistenceUnavailable, err, map[string]any{
			"external_id": event.ExternalID,
		})
	}

	if existing {
		return user, NewError(ErrUserAlreadyExists, map[string]any{
			"external_id": event.ExternalID,
			"user_id":     user.ID.String(),
		})
	}

	recordActivity(ctx, h.activitySink, h.logger, h.now, ActivityEvent{
		EventType:  ActivityEventUserReconciled,
		UserID:     user.ID.String(),
		ExternalID: user.ExternalID,
		Metadata:   map[string]any{"type": string(user.Type)},
	})
	h.logger.Info("user reconciled", "user_id", user.ID, "external_id", user.ExternalID)

	return user, nil
}

// resolveConflict re-reads the row that won a concurrent insert.
func (h *ReconcileUserHandler) resolveConflict(ctx context.Context, event ReconcileUserMessage) (*User, error) {
	user, err := h.repo.Users().GetByExternalIDTx(ctx, h.repo.DB(), event.ExternalID)
	if err != nil {
		return nil, WrapError(ErrPersistenceUnavailable, err, map[string]any{
			"external_id": event.ExternalID,
			"reason":      "unique violation without a readable winner",
		})
	}

	return user, NewError(ErrUserAlreadyExists, map[string]any{
		"external_id": event.ExternalID,
		"user_id":     user.ID.String(),
	})
}
