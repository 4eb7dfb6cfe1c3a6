package accounts_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError_ClonesSentinel(t *testing.T) {
	err := accounts.NewError(accounts.ErrInvalidCode, map[string]any{"flow_id": "f1"})
	assert.Equal(t, "f1", err.Metadata["flow_id"])
	assert.Nil(t, accounts.ErrInvalidCode.Metadata)
	assert.NotSame(t, accounts.ErrInvalidCode, err)
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := accounts.WrapError(accounts.ErrProviderUnavailable, cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, accounts.IsProviderUnavailable(err))
}

func TestHasTextCode(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", accounts.NewError(accounts.ErrDuplicateIdentity))
	assert.True(t, accounts.HasTextCode(wrapped, accounts.TextCodeDuplicateIdentity))
	assert.False(t, accounts.HasTextCode(wrapped, accounts.TextCodeWeakCredential))
	assert.False(t, accounts.HasTextCode(errors.New("plain"), accounts.TextCodeDuplicateIdentity))
	assert.False(t, accounts.HasTextCode(nil, accounts.TextCodeDuplicateIdentity))

	assert.True(t, accounts.IsProviderUnavailable(accounts.NewError(accounts.ErrCodeDeliveryFailed)))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: accounts.NewError(accounts.ErrDuplicateIdentity), status: http.StatusConflict},
		{err: accounts.NewError(accounts.ErrWeakCredential), status: http.StatusBadRequest},
		{err: accounts.NewError(accounts.ErrInvalidCode), status: http.StatusBadRequest},
		{err: accounts.NewError(accounts.ErrCodeExpired), status: http.StatusGone},
		{err: accounts.NewError(accounts.ErrTooManyCodeAttempts), status: http.StatusTooManyRequests},
		{err: accounts.NewError(accounts.ErrProviderUnavailable), status: http.StatusServiceUnavailable},
		{err: accounts.NewError(accounts.ErrFlowNotFound), status: http.StatusNotFound},
		{err: accounts.NewError(accounts.ErrNoSession), status: http.StatusUnauthorized},
		{err: errors.New("plain"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.status, accounts.StatusCode(tt.err))
		})
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	draft := accounts.NewRegistrationDraft()
	err := draft.ValidateStep(accounts.StepAccountDetails)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, accounts.TextCodeValidationFailed, richErr.TextCode)
	assert.Equal(t, http.StatusUnprocessableEntity, accounts.StatusCode(err))
	assert.Equal(t, "Full name is required", richErr.ValidationMap()["fullName"])
}
