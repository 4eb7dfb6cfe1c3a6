package accounts_test

import (
	"context"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockIdentityBridge implements accounts.IdentityBridge
type MockIdentityBridge struct {
	mock.Mock
}

func (m *MockIdentityBridge) CreatePendingIdentity(ctx context.Context, email, password, firstName, lastName string) (*accounts.PendingIdentity, error) {
	args := m.Called(ctx, email, password, firstName, lastName)
	if p := args.Get(0); p != nil {
		return p.(*accounts.PendingIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityBridge) SendVerificationCode(ctx context.Context, pending *accounts.PendingIdentity) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

func (m *MockIdentityBridge) VerifyCode(ctx context.Context, pending *accounts.PendingIdentity, code string) (*accounts.VerifiedIdentity, error) {
	args := m.Called(ctx, pending, code)
	if v := args.Get(0); v != nil {
		return v.(*accounts.VerifiedIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityBridge) ActivateSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockReconciler implements accounts.Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Execute(ctx context.Context, msg accounts.ReconcileUserMessage) (*accounts.User, error) {
	args := m.Called(ctx, msg)
	if u := args.Get(0); u != nil {
		return u.(*accounts.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGraphLoader implements accounts.GraphLoader
type MockGraphLoader struct {
	mock.Mock
}

func (m *MockGraphLoader) LoadUserGraph(ctx context.Context, userID uuid.UUID) (*accounts.UserGraph, error) {
	args := m.Called(ctx, userID)
	if g := args.Get(0); g != nil {
		return g.(*accounts.UserGraph), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeGraphs implements accounts.DomainGraphs over fixed data
type fakeGraphs struct {
	domains  []*accounts.Domain
	messages map[uuid.UUID][]*accounts.Message
	err      error
}

func (f *fakeGraphs) ActiveDomains(ctx context.Context, userID uuid.UUID) ([]*accounts.Domain, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.domains, nil
}

func (f *fakeGraphs) RecentMessages(ctx context.Context, chatRoomID uuid.UUID, limit int) ([]*accounts.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[chatRoomID], nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
