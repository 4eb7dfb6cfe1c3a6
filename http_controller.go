package accounts

import (
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AccountControllerRoutes holds the route prefixes of the controller
type AccountControllerRoutes struct {
	SignUp  string
	API     string
	Metrics string
	// AfterSignUp is where a completed registration continues.
	AfterSignUp string
}

// AccountController exposes the registration flow and the account operations.
type AccountController struct {
	Logger   Logger
	Flows    *FlowStore
	Accounts *AccountService
	Auther   *RouteAuthenticator
	Routes   *AccountControllerRoutes
	Gatherer prometheus.Gatherer
}

// AccountControllerOption customizes the controller
type AccountControllerOption func(*AccountController) *AccountController

// WithControllerLogger sets the logger.
func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRoutes overrides the default routes.
func WithControllerRoutes(routes *AccountControllerRoutes) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// WithMetricsGatherer exposes the gatherer on the metrics route.
func WithMetricsGatherer(g prometheus.Gatherer) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Gatherer = g
		return c
	}
}

// NewAccountController returns a controller, it panics on missing dependencies.
func NewAccountController(flows *FlowStore, accounts *AccountService, auther *RouteAuthenticator, opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:   defLogger{},
		Flows:    flows,
		Accounts: accounts,
		Auther:   auther,
		Routes: &AccountControllerRoutes{
			SignUp:      "/auth/sign-up",
			API:         "/api",
			Metrics:     "/metrics",
			AfterSignUp: "/dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flows == nil {
		panic("missing FlowStore in account controller")
	}

	if c.Accounts == nil {
		panic("missing AccountService in account controller")
	}

	if c.Auther == nil {
		panic("missing RouteAuthenticator in account controller")
	}

	return c
}

// RegisterAccountRoutes mounts the controller on app.
func RegisterAccountRoutes[T any](app router.Router[T], controller *AccountController) {
	signUp := app.Group(controller.Routes.SignUp)
	signUp.Post("/", controller.StartFlow).SetName("sign-up.start")
	signUp.Get("/:flow", controller.FlowState).SetName("sign-up.state")
	signUp.Post("/:flow/type", controller.SelectType).SetName("sign-up.type")
	signUp.Post("/:flow/details", controller.SubmitDetails).SetName("sign-up.details")
	signUp.Post("/:flow/verify", controller.Verify).SetName("sign-up.verify")
	signUp.Post("/:flow/resend", controller.Resend).SetName("sign-up.resend")
	signUp.Post("/:flow/back", controller.Back).SetName("sign-up.back")
	signUp.Post("/:flow/reconcile", controller.Reconcile).SetName("sign-up.reconcile")

	api := app.Group(controller.Routes.API)
	api.Post("/users/complete-registration", controller.CompleteRegistration).SetName("users.complete")

	api.
		Get("/me",
			controller.Me,
			controller.Auther.ProtectedRoute(true),
		).
		SetName("users.me")

	api.
		Patch("/users/:id",
			controller.UpdateProfile,
			controller.Auther.ProtectedRoute(false),
		).
		SetName("users.update")

	api.
		Delete("/users/:id",
			controller.DeleteAccount,
			controller.Auther.ProtectedRoute(false),
		).
		SetName("users.delete")

	if controller.Gatherer != nil {
		metrics := promhttp.HandlerFor(controller.Gatherer, promhttp.HandlerOpts{})
		app.Get(controller.Routes.Metrics, router.HandlerFromHTTP(metrics)).SetName("metrics")
	}
}

// SelectTypeRequest payload
type SelectTypeRequest struct {
	Type UserType `json:"type" form:"type"`
}

// VerifyRequest payload
type VerifyRequest struct {
	OTP string `json:"otp" form:"otp"`
}

// CompleteRegistrationRequest payload
type CompleteRegistrationRequest struct {
	FullName   string   `json:"fullName"`
	ExternalID string   `json:"externalId"`
	Type       UserType `json:"type"`
}

func (a *AccountController) StartFlow(c router.Context) error {
	flow := a.Flows.Start()
	return c.JSON(http.StatusCreated, flow.State())
}

func (a *AccountController) FlowState(c router.Context) error {
	flow, err := a.Flows.Get(c.Param("flow"))
	if err != nil {
		return writeError(c, a.Logger, err)
	}
	return c.JSON(http.StatusOK, flow.State())
}

func (a *AccountController) SelectType(c router.Context) error {
	payload := new(SelectTypeRequest)
	if err := c.Bind(payload); err != nil {
		return writeError(c, a.Logger, WrapError(ErrInvalidBody, err))
	}

	return a.flowAction(c, func(flow *RegistrationFlow) error {
		return flow.SelectType(c.Context(), payload.Type)
	})
}

func (a *AccountController) SubmitDetails(c router.Context) error {
	payload := new(AccountDetails)
	if err := c.Bind(payload); err != nil {
		return writeError(c, a.Logger, WrapError(ErrInvalidBody, err))
	}

	return a.flowAction(c, func(flow *RegistrationFlow) error {
		return flow.SubmitAccountDetails(c.Context(), *payload)
	})
}

func (a *AccountController) Verify(c router.Context) error {
	payload := new(VerifyRequest)
	if err := c.Bind(payload); err != nil {
		return writeError(c, a.Logger, WrapError(ErrInvalidBody, err))
	}

	return a.flowAction(c, func(flow *RegistrationFlow) error {
		if err := flow.SubmitCode(c.Context(), payload.OTP); err != nil {
			return err
		}
		return a.completeSession(c, flow)
	})
}

func (a *AccountController) Resend(c router.Context) error {
	return a.flowAction(c, func(flow *RegistrationFlow) error {
		return flow.ResendCode(c.Context())
	})
}

func (a *AccountController) Back(c router.Context) error {
	return a.flowAction(c, func(flow *RegistrationFlow) error {
		return flow.Back(c.Context())
	})
}

func (a *AccountController) Reconcile(c router.Context) error {
	return a.flowAction(c, func(flow *RegistrationFlow) error {
		if err := flow.RetryReconciliation(c.Context()); err != nil {
			return err
		}
		return a.completeSession(c, flow)
	})
}

func (a *AccountController) CompleteRegistration(c router.Context) error {
	payload := new(CompleteRegistrationRequest)
	if err := c.Bind(payload); err != nil {
		return writeError(c, a.Logger, WrapError(ErrInvalidBody, err))
	}

	res := a.Accounts.CompleteUserRegistration(c.Context(), payload.FullName, payload.ExternalID, payload.Type)
	return a.respond(c, res)
}

func (a *AccountController) Me(c router.Context) error {
	var session Session
	if s, ok := GetRouterSession(c, a.Auther.ContextKey()); ok {
		session = s
	}

	res := a.Accounts.LoginUser(c.Context(), session)
	if HasTextCode(res.Err, TextCodeNoSession) {
		a.Auther.SetRedirect(c)
		return c.Redirect(a.Auther.SignInRoute(), http.StatusFound)
	}
	return a.respond(c, res)
}

func (a *AccountController) UpdateProfile(c router.Context) error {
	userID, denied := a.ownAccount(c)
	if denied != nil {
		return a.respond(c, *denied)
	}

	payload := new(ProfileUpdate)
	if err := c.Bind(payload); err != nil {
		return writeError(c, a.Logger, WrapError(ErrInvalidBody, err))
	}

	return a.respond(c, a.Accounts.UpdateUserProfile(c.Context(), userID, *payload))
}

func (a *AccountController) DeleteAccount(c router.Context) error {
	userID, denied := a.ownAccount(c)
	if denied != nil {
		return a.respond(c, *denied)
	}

	res := a.Accounts.DeleteUserAccount(c.Context(), userID)
	if res.Status == http.StatusOK {
		a.Auther.Logout(c)
	}
	return a.respond(c, res)
}

func (a *AccountController) flowAction(c router.Context, action func(*RegistrationFlow) error) error {
	flow, err := a.Flows.Get(c.Param("flow"))
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	if err := action(flow); err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(http.StatusOK, flow.State())
}

// completeSession mints the local session once the flow bound a user.
func (a *AccountController) completeSession(c router.Context, flow *RegistrationFlow) error {
	user := flow.User()
	if user == nil {
		// AlreadyExists without a readable record, the user signs in instead
		return nil
	}

	if _, err := a.Auther.Login(c, user); err != nil {
		return err
	}
	c.SetHeader("Location", a.Auther.GetRedirectOrDefault(c, a.Routes.AfterSignUp))
	return nil
}

// ownAccount returns the target user id, or the response refusing the request.
func (a *AccountController) ownAccount(c router.Context) (uuid.UUID, *Response) {
	session, ok := GetRouterSession(c, a.Auther.ContextKey())
	if !ok {
		res := fail(http.StatusUnauthorized, "No active session", NewError(ErrNoSession))
		return uuid.Nil, &res
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res := fail(http.StatusBadRequest, "invalid user id", NewError(ErrInvalidInput))
		return uuid.Nil, &res
	}

	if session.GetUserID() != id.String() {
		a.Logger.Warn("account access denied", "session_user", session.GetUserID(), "target_user", id)
		res := fail(http.StatusForbidden, "you can only manage your own account", nil)
		return uuid.Nil, &res
	}
	return id, nil
}

func (a *AccountController) respond(c router.Context, res Response) error {
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	return c.JSON(res.Status, res)
}
