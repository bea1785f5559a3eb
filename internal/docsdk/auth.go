package docsdk

import (
	"context"
	"net/http"
)

const (
	authLogin    = "/auth/login"
	authRegister = "/auth/register"
	authConfirm  = "/auth/confirm"
	authResend   = "/auth/resend"
	authForgot   = "/auth/forgot"
	authReset    = "/auth/reset"
	authRefresh  = "/auth/refresh"
	authLogout   = "/auth/logout"
	authMe       = "/auth/me"
)

type AuthAPI struct {
	c *Client
}

func newAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{c: c}
}

// Login exchanges credentials for a profile and a token set.
func (a *AuthAPI) Login(ctx context.Context, params *LoginRequest) (*LoginResponse, error) {
	return doJSON[*LoginResponse](ctx, a.c, "auth login", apiCall{
		method:  http.MethodPost,
		path:    authLogin,
		body:    params,
		noRetry: true,
	})
}

func (a *AuthAPI) Register(ctx context.Context, params *RegisterRequest) (*RegisterResponse, error) {
	return doJSON[*RegisterResponse](ctx, a.c, "auth register", apiCall{
		method:  http.MethodPost,
		path:    authRegister,
		body:    params,
		noRetry: true,
	})
}

func (a *AuthAPI) Confirm(ctx context.Context, params *ConfirmRequest) error {
	return doEmpty(ctx, a.c, "auth confirm", apiCall{
		method: http.MethodPost,
		path:   authConfirm,
		body:   params,
	})
}

// ResendCode asks the server to send a new confirmation code.
func (a *AuthAPI) ResendCode(ctx context.Context, email string) error {
	return doEmpty(ctx, a.c, "auth resend", apiCall{
		method:  http.MethodPost,
		path:    authResend,
		body:    &EmailRequest{Email: email},
		noRetry: true,
	})
}

func (a *AuthAPI) ForgotPassword(ctx context.Context, email string) error {
	return doEmpty(ctx, a.c, "auth forgot", apiCall{
		method:  http.MethodPost,
		path:    authForgot,
		body:    &EmailRequest{Email: email},
		noRetry: true,
	})
}

func (a *AuthAPI) ResetPassword(ctx context.Context, params *ResetPasswordRequest) error {
	return doEmpty(ctx, a.c, "auth reset", apiCall{
		method:  http.MethodPost,
		path:    authReset,
		body:    params,
		noRetry: true,
	})
}

// Refresh trades a refresh token for a new token set. It is never retried here:
// transient failures are retried by the session scheduler.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	return doJSON[*AuthTokens](ctx, a.c, "auth refresh", apiCall{
		method:  http.MethodPost,
		path:    authRefresh,
		body:    &RefreshRequest{RefreshToken: refreshToken},
		noRetry: true,
	})
}

// Logout revokes the refresh token server side. A 401 is not refreshed: the new tokens
// would outlive the refresh token sent in the body.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	return doEmpty(ctx, a.c, "auth logout", apiCall{
		method:    http.MethodPost,
		path:      authLogout,
		body:      &RefreshRequest{RefreshToken: refreshToken},
		auth:      true,
		noRetry:   true,
		noRefresh: true,
	})
}

// Me fetches the profile of the current user.
func (a *AuthAPI) Me(ctx context.Context) (*User, error) {
	return doJSON[*User](ctx, a.c, "auth me", apiCall{
		method: http.MethodGet,
		path:   authMe,
		auth:   true,
	})
}
