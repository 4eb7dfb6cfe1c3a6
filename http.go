package accounts

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	// DefaultContextKey is the cookie and locals key of the session
	DefaultContextKey = "accounts_session"
	// DefaultSignInRoute is where requests without a session are sent
	DefaultSignInRoute = "/auth/sign-in"
	// DefaultRejectedRouteKey is the cookie remembering the rejected route
	DefaultRejectedRouteKey = "accounts_redirect"
)

// RouteAuthenticator reads, writes and guards session tokens on router routes
type RouteAuthenticator struct {
	tokens           TokenService
	contextKey       string
	signInRoute      string
	rejectedRouteKey string
	cookieDuration   time.Duration
	secureCookies    bool
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
}

// RouteAuthenticatorOption customizes the authenticator
type RouteAuthenticatorOption func(*RouteAuthenticator)

// WithSignInRoute overrides DefaultSignInRoute.
func WithSignInRoute(route string) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if route != "" {
			a.signInRoute = route
		}
	}
}

// WithContextKey overrides DefaultContextKey.
func WithContextKey(key string) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if key != "" {
			a.contextKey = key
		}
	}
}

// WithCookieDuration sets the session cookie lifetime.
func WithCookieDuration(d time.Duration) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if d > 0 {
			a.cookieDuration = d
		}
	}
}

// WithSecureCookies toggles the Secure cookie flag.
func WithSecureCookies(secure bool) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		a.secureCookies = secure
	}
}

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(logger Logger) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

// NewRouteAuthenticator returns an authenticator validating tokens with tokens.
func NewRouteAuthenticator(tokens TokenService, opts ...RouteAuthenticatorOption) *RouteAuthenticator {
	a := &RouteAuthenticator{
		tokens:           tokens,
		contextKey:       DefaultContextKey,
		signInRoute:      DefaultSignInRoute,
		rejectedRouteKey: DefaultRejectedRouteKey,
		cookieDuration:   24 * time.Hour,
		secureCookies:    true,
		Logger:           defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.AuthErrorHandler = a.redirectToSignIn
	return a
}

// ContextKey returns the locals key holding the session.
func (a *RouteAuthenticator) ContextKey() string {
	return a.contextKey
}

// SignInRoute returns the sign in entry point.
func (a *RouteAuthenticator) SignInRoute() string {
	return a.signInRoute
}

// ProtectedRoute requires a valid session. When optional is set requests
// without a valid token proceed without a session.
func (a *RouteAuthenticator) ProtectedRoute(optional bool) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token := a.extractToken(c)
			if token == "" {
				if optional {
					return next(c)
				}
				return a.AuthErrorHandler(c, NewError(ErrNoSession))
			}

			claims, err := a.tokens.Validate(token)
			if err == nil {
				var session *SessionObject
				if session, err = sessionFromAuthClaims(claims); err == nil {
					c.Locals(a.contextKey, session)
					ctx := WithClaimsContext(c.Context(), claims)
					c.SetContext(WithSessionContext(ctx, session))
					return next(c)
				}
			}

			var richErr *errors.Error
			if !errors.As(err, &richErr) {
				richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
					WithCode(errors.CodeUnauthorized)
			}

			if optional {
				a.Logger.Info("optional auth failed, proceeding", "error", richErr.Message)
				return next(c)
			}

			a.Logger.Info("authentication failed", "text_code", richErr.TextCode, "path", c.OriginalURL())
			return a.AuthErrorHandler(c, richErr)
		}
	}
}

// Login writes the session cookie for user and returns the token.
func (a *RouteAuthenticator) Login(c router.Context, user *User) (string, error) {
	token, expiresAt, err := a.tokens.Generate(user)
	if err != nil {
		a.Logger.Error("session token generation failed", "user_id", user.ID, "error", err)
		return "", err
	}

	c.Cookie(&router.Cookie{
		Name:     a.contextKey,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: router.CookieSameSiteLaxMode,
	})
	return token, nil
}

// Logout clears the session cookie.
func (a *RouteAuthenticator) Logout(c router.Context) {
	a.cookieDel(c, a.contextKey)
}

// GetRedirectOrDefault returns the route rejected before sign in, or def.
func (a *RouteAuthenticator) GetRedirectOrDefault(c router.Context, def string) string {
	r := c.Cookies(a.rejectedRouteKey)
	if r == "" {
		return def
	}
	a.cookieDel(c, a.rejectedRouteKey)
	return r
}

// SetRedirect remembers the current route so sign in can return to it.
func (a *RouteAuthenticator) SetRedirect(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.rejectedRouteKey,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: router.CookieSameSiteLaxMode,
	})
}

// redirectToSignIn sends page loads to the sign in route, other methods get
// a 401 NO_SESSION whatever the token failure was.
func (a *RouteAuthenticator) redirectToSignIn(c router.Context, _ error) error {
	if c.Method() != string(router.GET) {
		return writeError(c, a.Logger, NewError(ErrNoSession))
	}

	a.SetRedirect(c)
	return c.Redirect(a.signInRoute, http.StatusFound)
}

func (a *RouteAuthenticator) extractToken(c router.Context) string {
	if token := c.Cookies(a.contextKey); token != "" {
		return token
	}

	auth := c.Header(router.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: router.CookieSameSiteLaxMode,
	})
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	TextCode string            `json:"text_code"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// writeError renders err as JSON.
func writeError(c router.Context, logger Logger, err error) error {
	status, body := errorResponse(logger, c.OriginalURL(), err)
	return c.JSON(status, body)
}

// errorResponse maps err to a status and envelope. Errors outside the
// taxonomy become a generic 500.
func errorResponse(logger Logger, path string, err error) (int, ErrorBody) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) || richErr.TextCode == "" {
		logger.Error("unexpected error", "path", path, "error", err)
		return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			TextCode: "INTERNAL_ERROR",
			Message:  "An unexpected server error occurred",
		}}
	}

	status := StatusCode(richErr)
	detail := ErrorDetail{
		TextCode: richErr.TextCode,
		Message:  richErr.Message,
	}
	if fields := richErr.ValidationMap(); len(fields) > 0 {
		detail.Fields = fields
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", path, "text_code", richErr.TextCode, "error", err)
	}

	return status, ErrorBody{Error: detail}
}

// FiberErrorHandler is the fiber.Config ErrorHandler of the service. It
// renders errors that router handlers return.
func FiberErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Error: ErrorDetail{
				TextCode: http.StatusText(fe.Code),
				Message:  fe.Message,
			}})
		}
		status, body := errorResponse(logger, c.OriginalURL(), err)
		return c.Status(status).JSON(body)
	}
}
