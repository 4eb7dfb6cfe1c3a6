package accounts

import (
	"context"
	"strings"
)

// VerificationStatus tracks a pending identity through the code exchange
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// PendingIdentity is an identity created at the provider that has not been
// verified yet.
type PendingIdentity struct {
	ExternalID         string             `json:"externalId"`
	Email              string             `json:"email"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	// CreatedSessionID is set by providers that issue a session on creation.
	CreatedSessionID string `json:"createdSessionId,omitempty"`
	// FlowID is the provider handle of the verification exchange.
	FlowID string `json:"flowId,omitempty"`
}

// VerifiedIdentity is returned once the provider accepted the code
type VerifiedIdentity struct {
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
	SessionID  string `json:"sessionId"`
}

// IdentityBridge is the contract with the external identity provider. No
// implementation retries on its own.
//
// Errors are go-errors values carrying one of the text codes
// DUPLICATE_IDENTITY, WEAK_CREDENTIAL, INVALID_CODE, CODE_EXPIRED or
// PROVIDER_UNAVAILABLE.
type IdentityBridge interface {
	CreatePendingIdentity(ctx context.Context, email, password, firstName, lastName string) (*PendingIdentity, error)
	SendVerificationCode(ctx context.Context, pending *PendingIdentity) error
	VerifyCode(ctx context.Context, pending *PendingIdentity, code string) (*VerifiedIdentity, error)
	ActivateSession(ctx context.Context, sessionID string) error
}

// SplitFullName splits on the first space: "Ada King Lovelace" gives
// "Ada" and "King Lovelace".
func SplitFullName(fullName string) (first, last string) {
	fullName = strings.TrimSpace(fullName)
	first, last, _ = strings.Cut(fullName, " ")
	return first, strings.TrimSpace(last)
}
