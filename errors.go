package accounts

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidationFailed       = "VALIDATION_FAILED"
	TextCodeDuplicateIdentity      = "DUPLICATE_IDENTITY"
	TextCodeWeakCredential         = "WEAK_CREDENTIAL"
	TextCodeInvalidCode            = "INVALID_CODE"
	TextCodeCodeExpired            = "CODE_EXPIRED"
	TextCodeTooManyCodeAttempts    = "TOO_MANY_CODE_ATTEMPTS"
	TextCodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	TextCodeCodeDeliveryFailed     = "CODE_DELIVERY_FAILED"
	TextCodeUserAlreadyExists      = "USER_ALREADY_EXISTS"
	TextCodeInvalidInput           = "INVALID_INPUT"
	TextCodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
	TextCodeUserNotFound           = "USER_NOT_FOUND"
	TextCodeFlowNotFound           = "FLOW_NOT_FOUND"
	TextCodeInvalidStepTransition  = "INVALID_STEP_TRANSITION"
	TextCodeReconciliationPending  = "RECONCILIATION_PENDING"
	TextCodeNoSession              = "NO_SESSION"
)

// ErrDuplicateIdentity is returned when the identity provider already knows the email.
var ErrDuplicateIdentity = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeConflict)

// ErrWeakCredential is returned when the provider rejects the password policy.
var ErrWeakCredential = goerrors.New("password does not satisfy the provider policy", goerrors.CategoryBadInput).
	WithTextCode(TextCodeWeakCredential).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCode is returned for a wrong verification code.
var ErrInvalidCode = goerrors.New("invalid verification code", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(goerrors.CodeBadRequest)

// ErrCodeExpired is returned when the verification code or flow expired.
var ErrCodeExpired = goerrors.New("verification code has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(http.StatusGone)

// ErrTooManyCodeAttempts is returned once the flow exhausted its code attempts.
var ErrTooManyCodeAttempts = goerrors.New("too many verification attempts, request a new code", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyCodeAttempts).
	WithCode(goerrors.CodeTooManyRequests)

// ErrProviderUnavailable covers transport failures, timeouts and open circuits.
var ErrProviderUnavailable = goerrors.New("identity provider unavailable", goerrors.CategoryExternal).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrCodeDeliveryFailed is returned when the identity exists but the code was not sent.
var ErrCodeDeliveryFailed = goerrors.New("verification code could not be sent", goerrors.CategoryExternal).
	WithTextCode(TextCodeCodeDeliveryFailed).
	WithCode(http.StatusServiceUnavailable)

// ErrUserAlreadyExists is returned by reconciliation when the external id is bound.
var ErrUserAlreadyExists = goerrors.New("user already exists for this identity", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserAlreadyExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidInput is returned for missing or malformed reconciliation parameters.
var ErrInvalidInput = goerrors.New("missing required parameters", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidBody is returned when a request body cannot be decoded.
var ErrInvalidBody = goerrors.New("invalid request body", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrPersistenceUnavailable wraps storage failures.
var ErrPersistenceUnavailable = goerrors.New("persistence unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodePersistenceUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrUserNotFound is returned when no active user matches.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrFlowNotFound is returned for unknown or expired registration flows.
var ErrFlowNotFound = goerrors.New("registration flow not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeFlowNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidStepTransition is returned when a step change is not allowed.
var ErrInvalidStepTransition = goerrors.New("invalid registration step transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidStepTransition).
	WithCode(goerrors.CodeConflict)

// ErrReconciliationPending is returned when the identity is verified but the
// local user could not be created yet.
var ErrReconciliationPending = goerrors.New("account verified but local user is not ready", goerrors.CategoryOperation).
	WithTextCode(TextCodeReconciliationPending).
	WithCode(goerrors.CodeInternal)

// ErrNoSession is returned when an operation requires an authenticated session.
var ErrNoSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// NewError clones a sentinel so metadata never leaks between requests.
func NewError(sentinel *goerrors.Error, metas ...map[string]any) *goerrors.Error {
	err := sentinel.Clone()
	if len(metas) > 0 {
		err = err.WithMetadata(metas...)
	}
	return err
}

// WrapError attaches a cause to a cloned sentinel.
func WrapError(sentinel *goerrors.Error, cause error, metas ...map[string]any) *goerrors.Error {
	err := NewError(sentinel, metas...)
	err.Source = cause
	return err
}

// HasTextCode reports whether err is a go-errors Error with the given text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsValidationError reports whether err carries field level validation errors.
func IsValidationError(err error) bool {
	return HasTextCode(err, TextCodeValidationFailed)
}

// IsProviderUnavailable reports transient provider failures.
func IsProviderUnavailable(err error) bool {
	return HasTextCode(err, TextCodeProviderUnavailable) || HasTextCode(err, TextCodeCodeDeliveryFailed)
}

// StatusCode maps an error to an HTTP status, 500 for anything unknown.
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// ErrTokenExpired is returned for an expired session token.
var ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for a token that can not be parsed or verified.
var ErrTokenMalformed = goerrors.New("session token malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)
