package accounts_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/provider/memory"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	app *fiber.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	stores := setupStores(t)
	bridge := memory.New(
		memory.WithHashCost(bcrypt.MinCost),
		memory.WithCodeGenerator(memory.StaticCode("111111")),
	)

	reg := prometheus.NewRegistry()
	metrics := accounts.NewMetrics(reg)

	reconciler := accounts.NewReconcileUserHandler(stores,
		accounts.WithReconcileLogger(nopLogger{}),
		accounts.WithReconcileMetrics(metrics),
	)
	graphs := accounts.NewGraphService(stores.Users(), stores.Graphs(), accounts.WithGraphLogger(nopLogger{}))
	service := accounts.NewAccountService(stores, reconciler, graphs, accounts.WithAccountLogger(nopLogger{}))
	flows := accounts.NewFlowStore(bridge, reconciler,
		accounts.WithFlowStoreLogger(nopLogger{}),
		accounts.WithFlowOptions(accounts.WithFlowMetrics(metrics)),
	)

	tokens := accounts.NewTokenService(testSigningKey, time.Hour, "go-accounts", jwt.ClaimStrings{"go-accounts"}, nopLogger{})
	auther := accounts.NewRouteAuthenticator(tokens,
		accounts.WithSecureCookies(false),
		accounts.WithAuthenticatorLogger(nopLogger{}),
	)

	controller := accounts.NewAccountController(flows, service, auther,
		accounts.WithControllerLogger(nopLogger{}),
		accounts.WithMetricsGatherer(reg),
	)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{ErrorHandler: accounts.FiberErrorHandler(nopLogger{})})
	})
	accounts.RegisterAccountRoutes(srv.Router(), controller)

	return &testServer{app: srv.WrappedRouter()}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == accounts.DefaultContextKey && c.Value != "" {
			return c
		}
	}
	return nil
}

// signUp runs the registration flow and returns the flow state and session cookie.
func (s *testServer) signUp(t *testing.T, email string) (accounts.FlowState, *http.Cookie) {
	t.Helper()

	res := s.do(t, http.MethodPost, "/auth/sign-up", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	state := decode[accounts.FlowState](t, res)
	base := "/auth/sign-up/" + state.ID

	res = s.do(t, http.MethodPost, base+"/type", map[string]string{"type": "owner"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = s.do(t, http.MethodPost, base+"/details", map[string]string{
		"fullName":        "Ada Lovelace",
		"email":           email,
		"confirmEmail":    email,
		"password":        "Passw0rd",
		"confirmPassword": "Passw0rd",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = s.do(t, http.MethodPost, base+"/verify", map[string]string{"otp": "111111"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/dashboard", res.Header.Get("Location"))

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	return decode[accounts.FlowState](t, res), cookie
}

func TestAccountController_RegistrationFlow(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodPost, "/auth/sign-up", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	state := decode[accounts.FlowState](t, res)
	assert.Equal(t, accounts.StepTypeSelection, state.Step)
	base := "/auth/sign-up/" + state.ID

	res = s.do(t, http.MethodPost, base+"/type", map[string]string{"type": "owner"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, accounts.StepAccountDetails, decode[accounts.FlowState](t, res).Step)

	res = s.do(t, http.MethodPost, base+"/details", map[string]string{
		"fullName":        "Ada Lovelace",
		"email":           "ada@example.com",
		"confirmEmail":    "grace@example.com",
		"password":        "Passw0rd",
		"confirmPassword": "Passw0rd",
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	body := decode[accounts.ErrorBody](t, res)
	assert.Equal(t, accounts.TextCodeValidationFailed, body.Error.TextCode)
	assert.Equal(t, "Email addresses do not match", body.Error.Fields["confirmEmail"])

	res = s.do(t, http.MethodPost, base+"/details", map[string]string{
		"fullName":        "Ada Lovelace",
		"email":           "ada@example.com",
		"confirmEmail":    "ada@example.com",
		"password":        "Passw0rd",
		"confirmPassword": "Passw0rd",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	state = decode[accounts.FlowState](t, res)
	assert.Equal(t, accounts.StepEmailVerification, state.Step)
	assert.Equal(t, accounts.VerificationPending, state.VerificationStatus)

	res = s.do(t, http.MethodPost, base+"/verify", map[string]string{"otp": "000000"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, accounts.TextCodeInvalidCode, decode[accounts.ErrorBody](t, res).Error.TextCode)

	res = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, accounts.DefaultMaxCodeAttempts-1, decode[accounts.FlowState](t, res).AttemptsLeft)

	res = s.do(t, http.MethodPost, base+"/verify", map[string]string{"otp": "111111"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, sessionCookie(res))
	state = decode[accounts.FlowState](t, res)
	assert.Equal(t, accounts.StepComplete, state.Step)
	require.NotNil(t, state.User)
	assert.Equal(t, "Ada Lovelace", state.User.FullName)
	assert.Equal(t, accounts.RoleOwner, state.User.Role)
}

func TestAccountController_DuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "ada@example.com")

	res := s.do(t, http.MethodPost, "/auth/sign-up", nil)
	base := "/auth/sign-up/" + decode[accounts.FlowState](t, res).ID
	s.do(t, http.MethodPost, base+"/type", map[string]string{"type": "individual"})

	res = s.do(t, http.MethodPost, base+"/details", map[string]string{
		"fullName":        "Ada Again",
		"email":           "ADA@example.com",
		"confirmEmail":    "ADA@example.com",
		"password":        "Passw0rd",
		"confirmPassword": "Passw0rd",
	})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, accounts.TextCodeDuplicateIdentity, decode[accounts.ErrorBody](t, res).Error.TextCode)
}

func TestAccountController_UnknownFlow(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/auth/sign-up/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, accounts.TextCodeFlowNotFound, decode[accounts.ErrorBody](t, res).Error.TextCode)

	res = s.do(t, http.MethodPost, "/auth/sign-up/"+uuid.NewString()+"/back", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAccountController_InvalidStepTransition(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodPost, "/auth/sign-up", nil)
	base := "/auth/sign-up/" + decode[accounts.FlowState](t, res).ID

	res = s.do(t, http.MethodPost, base+"/verify", map[string]string{"otp": "111111"})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, accounts.TextCodeInvalidStepTransition, decode[accounts.ErrorBody](t, res).Error.TextCode)
}

func TestAccountController_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodPost, "/auth/sign-up", nil)
	base := "/auth/sign-up/" + decode[accounts.FlowState](t, res).ID

	req := httptest.NewRequest(http.MethodPost, base+"/type", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	body := decode[accounts.ErrorBody](t, res)
	assert.Equal(t, accounts.TextCodeInvalidInput, body.Error.TextCode)
	assert.Equal(t, "invalid request body", body.Error.Message)
}

func TestAccountController_MeRedirectsWithoutSession(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, accounts.DefaultSignInRoute, res.Header.Get("Location"))

	var redirect *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == accounts.DefaultRejectedRouteKey {
			redirect = c
		}
	}
	require.NotNil(t, redirect)
	assert.Equal(t, "/api/me", redirect.Value)

	// a bad token is treated as no session
	res = s.do(t, http.MethodGet, "/api/me", nil, &http.Cookie{Name: accounts.DefaultContextKey, Value: "garbage"})
	assert.Equal(t, http.StatusFound, res.StatusCode)
}

func TestAccountController_Me(t *testing.T) {
	s := newTestServer(t)
	state, cookie := s.signUp(t, "ada@example.com")

	res := s.do(t, http.MethodGet, "/api/me", nil, cookie)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decode[struct {
		Status int `json:"status"`
		Data   struct {
			ID       uuid.UUID             `json:"id"`
			FullName string                `json:"fullName"`
			Domains  []*accounts.Domain    `json:"domains"`
			Summary  accounts.GraphSummary `json:"summary"`
		} `json:"data"`
	}](t, res)
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, state.User.ID, body.Data.ID)
	assert.Equal(t, "Ada Lovelace", body.Data.FullName)
	assert.NotNil(t, body.Data.Domains)
	assert.Empty(t, body.Data.Domains)
}

func TestAccountController_ManageOwnAccount(t *testing.T) {
	s := newTestServer(t)
	state, cookie := s.signUp(t, "ada@example.com")
	own := "/api/users/" + state.User.ID.String()

	res := s.do(t, http.MethodPatch, own, map[string]string{"fullName": "Ada King"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, accounts.TextCodeNoSession, decode[accounts.ErrorBody](t, res).Error.TextCode)

	res = s.do(t, http.MethodPatch, "/api/users/"+uuid.NewString(), map[string]string{"fullName": "Ada King"}, cookie)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "you can only manage your own account", decode[accounts.Response](t, res).Message)

	res = s.do(t, http.MethodPatch, "/api/users/not-a-uuid", map[string]string{"fullName": "Ada King"}, cookie)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = s.do(t, http.MethodPatch, own, map[string]string{"fullName": "Ada King", "type": "individual"}, cookie)
	require.Equal(t, http.StatusOK, res.StatusCode)
	updated := decode[struct {
		Data accounts.UserSummary `json:"data"`
	}](t, res)
	assert.Equal(t, "Ada King", updated.Data.FullName)
	assert.Equal(t, accounts.UserTypeIndividual, updated.Data.Type)

	res = s.do(t, http.MethodDelete, own, nil, cookie)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "User account deleted successfully", decode[accounts.Response](t, res).Message)

	res = s.do(t, http.MethodDelete, own, nil, cookie)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAccountController_CompleteRegistration(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]string{"fullName": "Grace Hopper", "externalId": "ext_grace", "type": "individual"}

	res := s.do(t, http.MethodPost, "/api/users/complete-registration", payload)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = s.do(t, http.MethodPost, "/api/users/complete-registration", payload)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res = s.do(t, http.MethodPost, "/api/users/complete-registration", map[string]string{"fullName": "Grace Hopper"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Missing required parameters: fullName, externalId, or type", decode[accounts.Response](t, res).Message)
}

func TestAccountController_Metrics(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "ada@example.com")

	res := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "accounts_registration_step_transitions_total")
	assert.Contains(t, string(raw), "accounts_reconciliations_total")
}
