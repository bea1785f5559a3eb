package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeRateLimited    = "E_RATE_LIMITED"
	CodeInternalError  = "E_INTERNAL_ERROR"
	CodeAccessDenied   = "E_ACCESS_DENIED"
	CodeNotFound       = "E_NOT_FOUND"
	CodeConflict       = "E_CONFLICT"
	CodeQuotaExceeded  = "E_QUOTA_EXCEEDED"

	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS"
	CodeAuthTokenRefreshFailed = "E_AUTH_TOKEN_REFRESH_FAILED"
	CodeAuthUnconfirmed        = "E_AUTH_UNCONFIRMED"
	CodeAuthCodeMismatch       = "E_AUTH_CODE_MISMATCH"

	CodeUploadNotFound = "E_UPLOAD_NOT_FOUND"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respond writes the success envelope.
func respond(ctx *gin.Context, status int, data any) {
	ctx.PureJSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(ctx *gin.Context, message string) {
	ctx.PureJSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// abortWithError writes the error envelope and stops the chain.
func abortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	_ = ctx.Error(err)
	ctx.PureJSON(status, gin.H{
		"success": false,
		"error":   apiError{Code: code, Message: err.Error()},
	})
}

// abortWithStoreError maps library errors to statuses.
func abortWithStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		abortWithError(ctx, http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, ErrConflict):
		abortWithError(ctx, http.StatusConflict, CodeConflict, err)
	case errors.Is(err, ErrQuota):
		abortWithError(ctx, http.StatusRequestEntityTooLarge, CodeQuotaExceeded, err)
	case errors.Is(err, ErrInvalid):
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, err)
	default:
		abortWithError(ctx, http.StatusInternalServerError, CodeInternalError, err)
	}
}
