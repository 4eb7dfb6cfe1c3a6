package accounts

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Response is the status/data/message envelope of the account operations.
type Response struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	// Err is the typed error behind a non 200 status.
	Err error `json:"-"`
}

// UserSummary is the short user representation returned by write operations
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
	Type     UserType  `json:"type"`
}

// LoginData is the user with its domain graph and dashboard counters
type LoginData struct {
	*UserGraph
	Summary GraphSummary `json:"summary"`
}

func summarize(u *User) UserSummary {
	return UserSummary{ID: u.ID, FullName: u.FullName, Type: u.Type}
}

// Validate checks the optional fields that are present.
func (p ProfileUpdate) Validate() error {
	if p.Empty() {
		return validation.Errors{"fullName": validation.NewError("validation_required", "nothing to update")}
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.FullName,
			validation.NilOrNotEmpty.Error("Full name is required"),
			validation.By(func(v any) error {
				name, _ := v.(*string)
				if name == nil {
					return nil
				}
				n := len([]rune(strings.TrimSpace(*name)))
				if n < 2 {
					return validation.NewError("validation_length", "Full name must be at least 2 characters")
				}
				if n > 50 {
					return validation.NewError("validation_length", "Full name must be less than 50 characters")
				}
				return nil
			}),
		),
		validation.Field(&p.Type, validation.By(func(v any) error {
			t, _ := v.(*UserType)
			if t != nil && !t.Valid() {
				return validation.NewError("validation_in", "Account type must be owner or individual")
			}
			return nil
		})),
	)
}

// AccountService implements the account operations on top of the
// repositories, the reconciler and the graph loader.
type AccountService struct {
	repo         RepositoryManager
	reconciler   Reconciler
	graphs       GraphLoader
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// AccountServiceOption customizes the service
type AccountServiceOption func(*AccountService)

// WithAccountLogger sets the logger.
func WithAccountLogger(logger Logger) AccountServiceOption {
	return func(s *AccountService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAccountActivitySink sets the activity sink.
func WithAccountActivitySink(sink ActivitySink) AccountServiceOption {
	return func(s *AccountService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// NewAccountService returns the account service.
func NewAccountService(repo RepositoryManager, reconciler Reconciler, graphs GraphLoader, opts ...AccountServiceOption) *AccountService {
	s := &AccountService{
		repo:         repo,
		reconciler:   reconciler,
		graphs:       graphs,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CompleteUserRegistration creates the local user of an already verified
// identity. A replay for a bound identity answers 409.
func (s *AccountService) CompleteUserRegistration(ctx context.Context, fullName, externalID string, t UserType) Response {
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(externalID) == "" || t == "" {
		return fail(http.StatusBadRequest, "Missing required parameters: fullName, externalId, or type", NewError(ErrInvalidInput))
	}

	user, err := s.reconciler.Execute(ctx, ReconcileUserMessage{
		FullName:    fullName,
		ExternalID:  externalID,
		AccountType: t,
	})
	switch {
	case err == nil:
		return Response{Status: http.StatusOK, Data: summarize(user)}
	case HasTextCode(err, TextCodeUserAlreadyExists):
		return fail(http.StatusConflict, "User already exists with this external id", err)
	case HasTextCode(err, TextCodeInvalidInput):
		return fail(http.StatusBadRequest, "Missing required parameters: fullName, externalId, or type", err)
	default:
		s.logger.Error("complete user registration failed", "external_id", externalID, "error", err)
		return fail(http.StatusInternalServerError, "Internal server error during user registration", err)
	}
}

// LoginUser returns the session user with its active domain graph.
func (s *AccountService) LoginUser(ctx context.Context, session Session) Response {
	if session == nil {
		return fail(http.StatusUnauthorized, "No active session", NewError(ErrNoSession))
	}

	userID, err := s.resolveUserID(ctx, session)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return fail(http.StatusNotFound, "User not found in database", NewError(ErrUserNotFound))
		}
		s.logger.Error("login user lookup failed", "external_id", session.GetExternalID(), "error", err)
		return fail(http.StatusInternalServerError, "Internal server error during login", WrapError(ErrPersistenceUnavailable, err))
	}

	graph, err := s.graphs.LoadUserGraph(ctx, userID)
	switch {
	case err == nil:
		return Response{Status: http.StatusOK, Data: LoginData{UserGraph: graph, Summary: graph.Summary()}}
	case HasTextCode(err, TextCodeUserNotFound):
		return fail(http.StatusNotFound, "User not found in database", err)
	default:
		s.logger.Error("login user graph failed", "user_id", userID, "error", err)
		return fail(http.StatusInternalServerError, "Internal server error during login", err)
	}
}

// UpdateUserProfile changes the full name and/or type. A type change
// recomputes the role.
func (s *AccountService) UpdateUserProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) Response {
	if err := update.Validate(); err != nil {
		return fail(http.StatusBadRequest, "Invalid profile update", toValidationError(err))
	}

	user, err := s.repo.Users().UpdateProfile(ctx, userID, update)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return fail(http.StatusNotFound, "User not found", NewError(ErrUserNotFound))
		}
		s.logger.Error("update user profile failed", "user_id", userID, "error", err)
		return fail(http.StatusInternalServerError, "Failed to update user profile", WrapError(ErrPersistenceUnavailable, err))
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType:  ActivityEventUserUpdated,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		ExternalID: user.ExternalID,
	})

	return Response{Status: http.StatusOK, Data: summarize(user)}
}

// DeleteUserAccount removes the user and everything it owns.
func (s *AccountService) DeleteUserAccount(ctx context.Context, userID uuid.UUID) Response {
	if err := s.repo.Users().DeleteCascade(ctx, userID); err != nil {
		if repository.IsRecordNotFound(err) {
			return fail(http.StatusNotFound, "User not found", NewError(ErrUserNotFound))
		}
		s.logger.Error("delete user account failed", "user_id", userID, "error", err)
		return fail(http.StatusInternalServerError, "Failed to delete user account", WrapError(ErrPersistenceUnavailable, err))
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     ActorRef{ID: userID.String(), Type: "user"},
		UserID:    userID.String(),
	})

	return Response{Status: http.StatusOK, Message: "User account deleted successfully"}
}

func (s *AccountService) resolveUserID(ctx context.Context, session Session) (uuid.UUID, error) {
	if id, err := session.GetUserUUID(); err == nil && id != uuid.Nil {
		return id, nil
	}

	user, err := s.repo.Users().GetByExternalID(ctx, session.GetExternalID())
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

func fail(status int, message string, err error) Response {
	return Response{Status: status, Message: message, Err: err}
}
