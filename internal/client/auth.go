package client

import (
	"context"
	"fmt"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/session"
)

// authBridge adapts the API client to the session manager's ports.
type authBridge struct {
	api *docsdk.AuthAPI
}

var (
	_ session.Authenticator = (*authBridge)(nil)
	_ session.Accounts      = (*authBridge)(nil)
)

// rejected marks definitive credential rejections so the manager clears the session
// instead of retrying.
func rejected(err error) error {
	if err != nil && docsdk.IsAuthRejection(err) {
		return fmt.Errorf("%w: %w", session.ErrRejected, err)
	}
	return err
}

func (a *authBridge) Login(ctx context.Context, email, password string) (*session.Profile, *session.TokenSet, error) {
	resp, err := a.api.Login(ctx, &docsdk.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, nil, rejected(err)
	}
	return toProfile(resp.User), toTokens(resp.Tokens), nil
}

func (a *authBridge) Refresh(ctx context.Context, refreshToken string) (*session.TokenSet, error) {
	tokens, err := a.api.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, rejected(err)
	}
	return toTokens(tokens), nil
}

func (a *authBridge) Logout(ctx context.Context, refreshToken string) error {
	return a.api.Logout(ctx, refreshToken)
}

func (a *authBridge) Profile(ctx context.Context) (*session.Profile, error) {
	user, err := a.api.Me(ctx)
	if err != nil {
		return nil, rejected(err)
	}
	return toProfile(user), nil
}

func (a *authBridge) Register(ctx context.Context, email, password, name string) (bool, error) {
	resp, err := a.api.Register(ctx, &docsdk.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return false, err
	}
	return resp.ConfirmationRequired, nil
}

func (a *authBridge) Confirm(ctx context.Context, email, code string) error {
	return a.api.Confirm(ctx, &docsdk.ConfirmRequest{Email: email, Code: code})
}

func (a *authBridge) ResendCode(ctx context.Context, email string) error {
	return a.api.ResendCode(ctx, email)
}

func (a *authBridge) ForgotPassword(ctx context.Context, email string) error {
	return a.api.ForgotPassword(ctx, email)
}

func (a *authBridge) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return a.api.ResetPassword(ctx, &docsdk.ResetPasswordRequest{Email: email, Code: code, NewPassword: newPassword})
}

func toProfile(u *docsdk.User) *session.Profile {
	if u == nil {
		return nil
	}
	return &session.Profile{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		StorageUsed:  u.StorageUsed,
		StorageLimit: u.StorageLimit,
	}
}

func toTokens(t *docsdk.AuthTokens) *session.TokenSet {
	if t == nil {
		return nil
	}
	return &session.TokenSet{
		AccessToken:  t.AccessToken,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
	}
}
