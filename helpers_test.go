package accounts_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/repository"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupStores(t *testing.T) *repository.Stores {
	t.Helper()

	db, err := repository.Open(repository.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stores := repository.NewStores(db)
	stores.MustValidate()
	require.NoError(t, stores.Migrate(context.Background()))
	return stores
}

func seedUser(t *testing.T, stores *repository.Stores, externalID string, userType accounts.UserType) *accounts.User {
	t.Helper()
	user, err := stores.Users().Create(context.Background(), &accounts.User{
		FullName:   "Ada Lovelace",
		ExternalID: externalID,
		Type:       userType,
		Email:      "ada@example.com",
		IsActive:   true,
	})
	require.NoError(t, err)
	return user
}

func strPtr(s string) *string { return &s }

func typePtr(t accounts.UserType) *accounts.UserType { return &t }

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
