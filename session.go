package accounts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the authenticated session attached to a request
type SessionObject struct {
	UserID         string     `json:"user_id,omitempty"`
	ExternalID     string     `json:"external_id,omitempty"`
	Role           string     `json:"role,omitempty"`
	Type           UserType   `json:"type,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetExternalID() string {
	return s.ExternalID
}

func (s *SessionObject) GetRole() string {
	return s.Role
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s ext=%s role=%s iat=%s", s.UserID, s.ExternalID, s.Role, issuedAt)
}

// sessionFromAuthClaims creates a SessionObject from validated claims
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil || claims.UserID() == "" {
		return nil, NewError(ErrNoSession)
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		ExternalID:     claims.Subject(),
		Role:           claims.Role(),
		Type:           claims.AccountType(),
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
