package logging_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewZapLogger(zap.New(core)).Named("accounts")

	logger.Debug("flow started", "flow_id", "f-1")
	logger.Info("user reconciled", "user_id", "u-1", "outcome", "created")
	logger.Warn("sink failed")
	logger.Error("provider down", "operation", "send_code")

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "accounts", entries[0].LoggerName)
	assert.Equal(t, "f-1", entries[0].ContextMap()["flow_id"])

	assert.Equal(t, "user reconciled", entries[1].Message)
	assert.Equal(t, map[string]any{"user_id": "u-1", "outcome": "created"}, entries[1].ContextMap())

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapLogger_Printf(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewZapLogger(zap.New(core)).Named("router").Printf()

	logger.Warn("route conflict detected: %v", "GET /me")
	logger.Info("%d routes", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "route conflict detected: GET /me", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "router", entries[0].LoggerName)
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, "3 routes", entries[1].Message)
}

func TestNewZapLogger_Nil(t *testing.T) {
	logger := logging.NewZapLogger(nil)
	assert.NotPanics(t, func() { logger.Info("discarded", "k", "v") })
}

func TestNewZap(t *testing.T) {
	logger, err := logging.NewZap("debug", false)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = logging.NewZap("loud", false)
	assert.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	app := fiber.New()
	app.Use(logging.RequestLogger(zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNotFound) })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusInternalServerError, "boom") })

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.EqualValues(t, 500, entries[2].ContextMap()["status"])
}
