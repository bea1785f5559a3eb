package devserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/docbox/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	purposeConfirm = "confirm"
	purposeReset   = "reset"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnconfirmed        = errors.New("account is not confirmed")
	ErrCodeMismatch       = errors.New("code does not match")
	ErrUserExists         = errors.New("an account with this email already exists")
	ErrInvalidToken       = errors.New("invalid token")
)

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
	IDToken      TokenType = "id"
)

type Claims struct {
	jwt.RegisteredClaims
	Type  TokenType `json:"typ"`
	Email string    `json:"email,omitempty"`
}

type account struct {
	ID        string
	Email     string
	Name      string
	Hash      []byte
	Confirmed bool
	CreatedAt time.Time
}

type tokenSet struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthService keeps accounts in memory and issues HS256 token pairs.
type AuthService struct {
	cfg *AuthConfig

	mu       sync.RWMutex
	accounts map[string]*account // by email

	codes   *expirable.LRU[string, string]
	revoked *expirable.LRU[string, struct{}]
}

func NewAuthService(cfg *AuthConfig) *AuthService {
	return &AuthService{
		cfg:      cfg,
		accounts: make(map[string]*account),
		codes:    expirable.NewLRU[string, string](0, nil, cfg.CodeExpiry), // 0 = LRU off
		revoked:  expirable.NewLRU[string, struct{}](0, nil, cfg.RefreshTokenExpiry),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(email, password, name string) (*account, error) {
	email = normalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.accounts[email]; ok {
		s.mu.Unlock()
		return nil, ErrUserExists
	}
	acc := &account{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Hash:      hash,
		Confirmed: s.cfg.SkipConfirmation,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[email] = acc
	s.mu.Unlock()

	if !acc.Confirmed {
		if err := s.issueCode(email, purposeConfirm); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (s *AuthService) Confirm(email, code string) error {
	email = normalizeEmail(email)
	if err := s.consumeCode(email, purposeConfirm, code); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return ErrCodeMismatch
	}
	acc.Confirmed = true
	return nil
}

// ResendCode issues a new confirmation code. Unknown or confirmed accounts are ignored so
// the endpoint does not reveal which emails exist.
func (s *AuthService) ResendCode(email string) error {
	email = normalizeEmail(email)
	s.mu.RLock()
	acc, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok || acc.Confirmed {
		return nil
	}
	return s.issueCode(email, purposeConfirm)
}

func (s *AuthService) ForgotPassword(email string) error {
	email = normalizeEmail(email)
	s.mu.RLock()
	_, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.issueCode(email, purposeReset)
}

func (s *AuthService) ResetPassword(email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := utils.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := s.consumeCode(email, purposeReset, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return ErrCodeMismatch
	}
	acc.Hash = hash
	return nil
}

func (s *AuthService) Login(email, password string) (*account, *tokenSet, error) {
	email = normalizeEmail(email)

	s.mu.RLock()
	acc, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.Hash, []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !acc.Confirmed {
		return nil, nil, ErrUnconfirmed
	}

	tokens, err := s.generateTokens(acc)
	if err != nil {
		return nil, nil, err
	}
	return acc, tokens, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair is issued.
func (s *AuthService) Refresh(refreshToken string) (*tokenSet, error) {
	claims, err := s.parse(refreshToken, s.cfg.RefreshTokenSecret, RefreshToken)
	if err != nil {
		return nil, err
	}
	if s.revoked.Contains(claims.ID) {
		return nil, fmt.Errorf("%w: refresh token revoked", ErrInvalidToken)
	}

	acc, ok := s.Account(claims.Email)
	if !ok || acc.ID != claims.Subject {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}

	s.revoked.Add(claims.ID, struct{}{})
	return s.generateTokens(&acc)
}

func (s *AuthService) Logout(refreshToken string) {
	claims, err := s.parse(refreshToken, s.cfg.RefreshTokenSecret, RefreshToken)
	if err != nil {
		return
	}
	s.revoked.Add(claims.ID, struct{}{})
}

func (s *AuthService) ValidateAccessToken(token string) (*Claims, error) {
	return s.parse(token, s.cfg.AccessTokenSecret, AccessToken)
}

// Account returns a copy of the account for email.
func (s *AuthService) Account(email string) (account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

func (s *AuthService) issueCode(email, purpose string) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	s.codes.Add(purpose+":"+email, code)

	if s.cfg.OnCode != nil {
		s.cfg.OnCode(email, purpose, code)
	} else {
		slog.Info("verification code", "email", email, "purpose", purpose, "code", code)
	}
	return nil
}

func (s *AuthService) consumeCode(email, purpose, code string) error {
	if err := utils.ValidateCode(code); err != nil {
		return fmt.Errorf("%w: %w", ErrCodeMismatch, err)
	}
	key := purpose + ":" + email
	stored, ok := s.codes.Get(key)
	if !ok || stored != code {
		return ErrCodeMismatch
	}
	s.codes.Remove(key)
	return nil
}

func (s *AuthService) generateTokens(acc *account) (*tokenSet, error) {
	access, err := s.newToken(acc, AccessToken, s.cfg.AccessTokenSecret, s.cfg.AccessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	id, err := s.newToken(acc, IDToken, s.cfg.AccessTokenSecret, s.cfg.AccessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate id token: %w", err)
	}
	refresh, err := s.newToken(acc, RefreshToken, s.cfg.RefreshTokenSecret, s.cfg.RefreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &tokenSet{
		AccessToken:  access,
		IDToken:      id,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenExpiry / time.Second),
	}, nil
}

func (s *AuthService) newToken(acc *account, typ TokenType, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  acc.ID,
			Issuer:   s.cfg.TokenIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Type:  typ,
		Email: acc.Email,
	}
	if expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *AuthService) parse(token, secret string, typ TokenType) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.cfg.TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: wrong token type %q", ErrInvalidToken, claims.Type)
	}
	return claims, nil
}
