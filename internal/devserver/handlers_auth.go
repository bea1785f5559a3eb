package devserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docbox/internal/docsdk"
)

type authHandler struct {
	auth *AuthService
	lib  *Library
}

func (h *authHandler) Register(ctx *gin.Context) {
	var req docsdk.RegisterRequest
	if !bindJSON(ctx, &req) {
		return
	}

	acc, err := h.auth.Register(req.Email, req.Password, req.Name)
	if err != nil {
		abortWithAuthError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, &docsdk.RegisterResponse{
		UserID:               acc.ID,
		ConfirmationRequired: !acc.Confirmed,
	})
}

func (h *authHandler) Confirm(ctx *gin.Context) {
	var req docsdk.ConfirmRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if err := h.auth.Confirm(req.Email, req.Code); err != nil {
		abortWithAuthError(ctx, err)
		return
	}
	respondMessage(ctx, "account confirmed")
}

func (h *authHandler) Resend(ctx *gin.Context) {
	var req docsdk.EmailRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if err := h.auth.ResendCode(req.Email); err != nil {
		abortWithAuthError(ctx, err)
		return
	}
	respondMessage(ctx, "if the account exists a new code was sent")
}

func (h *authHandler) Forgot(ctx *gin.Context) {
	var req docsdk.EmailRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if err := h.auth.ForgotPassword(req.Email); err != nil {
		abortWithAuthError(ctx, err)
		return
	}
	respondMessage(ctx, "if the account exists a reset code was sent")
}

func (h *authHandler) Reset(ctx *gin.Context) {
	var req docsdk.ResetPasswordRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if err := h.auth.ResetPassword(req.Email, req.Code, req.NewPassword); err != nil {
		abortWithAuthError(ctx, err)
		return
	}
	respondMessage(ctx, "password updated")
}

func (h *authHandler) Login(ctx *gin.Context) {
	var req docsdk.LoginRequest
	if !bindJSON(ctx, &req) {
		return
	}

	acc, tokens, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		abortWithAuthError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, gin.H{
		"user":   h.profile(acc),
		"tokens": tokens,
	})
}

func (h *authHandler) Refresh(ctx *gin.Context) {
	var req docsdk.RefreshRequest
	if !bindJSON(ctx, &req) {
		return
	}

	tokens, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		abortWithError(ctx, http.StatusUnauthorized, CodeAuthTokenRefreshFailed, err)
		return
	}
	respond(ctx, http.StatusOK, tokens)
}

func (h *authHandler) Logout(ctx *gin.Context) {
	var req docsdk.RefreshRequest
	// logout always succeeds, a missing body only skips revocation
	_ = ctx.ShouldBindJSON(&req)
	h.auth.Logout(req.RefreshToken)
	respondMessage(ctx, "logged out")
}

func (h *authHandler) Me(ctx *gin.Context) {
	acc, ok := h.auth.Account(currentEmail(ctx))
	if !ok {
		abortWithError(ctx, http.StatusUnauthorized, CodeAuthInvalidCredentials, ErrInvalidToken)
		return
	}
	respond(ctx, http.StatusOK, h.profile(&acc))
}

func (h *authHandler) profile(acc *account) *docsdk.User {
	return &docsdk.User{
		ID:           acc.ID,
		Email:        acc.Email,
		Name:         acc.Name,
		StorageUsed:  h.lib.Usage(acc.ID),
		StorageLimit: h.lib.StorageLimit(),
		CreatedAt:    acc.CreatedAt,
	}
}

func abortWithAuthError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		abortWithError(ctx, http.StatusUnauthorized, CodeAuthInvalidCredentials, err)
	case errors.Is(err, ErrUnconfirmed):
		// 400 rather than 403: a 403 reads as a rejected session to clients
		abortWithError(ctx, http.StatusBadRequest, CodeAuthUnconfirmed, err)
	case errors.Is(err, ErrCodeMismatch):
		abortWithError(ctx, http.StatusBadRequest, CodeAuthCodeMismatch, err)
	case errors.Is(err, ErrUserExists):
		abortWithError(ctx, http.StatusConflict, CodeConflict, err)
	case errors.Is(err, ErrInvalid):
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, err)
	default:
		abortWithError(ctx, http.StatusInternalServerError, CodeInternalError, err)
	}
}

func bindJSON(ctx *gin.Context, v any) bool {
	if err := ctx.ShouldBindJSON(v); err != nil {
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return false
	}
	return true
}
