package session

import "context"

// Authenticator is the subset of the remote auth API the manager drives. Implementations
// wrap ErrRejected for definitive credential rejections.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*Profile, *TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context) (*Profile, error)
}

// Accounts covers the account flows that do not touch the session.
type Accounts interface {
	Register(ctx context.Context, email, password, name string) (confirmationRequired bool, err error)
	Confirm(ctx context.Context, email, code string) error
	ResendCode(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}
