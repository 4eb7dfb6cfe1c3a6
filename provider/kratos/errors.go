package kratos

import (
	"encoding/json"
	"errors"
	"net/http"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	client "github.com/ory/kratos-client-go"
)

// Kratos UI message ids
const (
	msgIdentifierExists       int64 = 4000007
	msgPasswordPolicy         int64 = 4000005
	msgPasswordTooSimilar     int64 = 4000032
	msgPasswordTooShort       int64 = 4000033
	msgPasswordBreached       int64 = 4000034
	msgVerificationFlowExpire int64 = 4070005
	msgVerificationCodeBad    int64 = 4070006
)

const flowExpiredID = "self_service_flow_expired"

type uiText struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// errorBody covers both the flow payload of a 400 and the generic error payload.
type errorBody struct {
	UI struct {
		Messages []uiText `json:"messages"`
		Nodes    []struct {
			Messages []uiText `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		ID      string `json:"id"`
		Code    int    `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (b errorBody) messages() []uiText {
	out := append([]uiText{}, b.UI.Messages...)
	for _, n := range b.UI.Nodes {
		out = append(out, n.Messages...)
	}
	return out
}

// mapMessages returns the error for the first known error message, or nil.
func mapMessages(op string, messages []uiText) error {
	for _, m := range messages {
		if m.Type != "error" {
			continue
		}

		meta := map[string]any{"operation": op, "kratos_message_id": m.ID, "kratos_message": m.Text}
		switch m.ID {
		case msgIdentifierExists:
			return accounts.NewError(accounts.ErrDuplicateIdentity, meta)
		case msgPasswordPolicy, msgPasswordTooSimilar, msgPasswordTooShort, msgPasswordBreached:
			return accounts.NewError(accounts.ErrWeakCredential, meta)
		case msgVerificationCodeBad:
			return accounts.NewError(accounts.ErrInvalidCode, meta)
		case msgVerificationFlowExpire:
			return accounts.NewError(accounts.ErrCodeExpired, meta)
		}
	}
	return nil
}

// mapError turns a failed Kratos call into the error taxonomy. Transport
// failures have no response and are always ProviderUnavailable.
func mapError(op string, err error, resp *http.Response) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}

	if resp == nil {
		return accounts.WrapError(accounts.ErrProviderUnavailable, err, map[string]any{"operation": op})
	}

	meta := map[string]any{"operation": op, "status": resp.StatusCode}

	var body errorBody
	var apiErr *client.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		_ = json.Unmarshal(apiErr.Body(), &body)
	}

	if mapped := mapMessages(op, body.messages()); mapped != nil {
		return mapped
	}

	expired := resp.StatusCode == http.StatusGone || (body.Error != nil && body.Error.ID == flowExpiredID)
	switch {
	case expired && (op == opVerifyCode || op == opSendCode):
		return accounts.WrapError(accounts.ErrCodeExpired, err, meta)
	case op == opVerifyCode && resp.StatusCode == http.StatusBadRequest:
		return accounts.WrapError(accounts.ErrInvalidCode, err, meta)
	}

	if body.Error != nil {
		meta["kratos_error_id"] = body.Error.ID
		meta["kratos_reason"] = body.Error.Reason
	}
	return accounts.WrapError(accounts.ErrProviderUnavailable, err, meta)
}

// breakerFailure reports whether err should count against the circuit breaker.
func breakerFailure(err error) bool {
	return err != nil && accounts.HasTextCode(err, accounts.TextCodeProviderUnavailable)
}
