package docsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	// sdk common
	ErrNoServerURL    = errors.New("sdk: server url missing")
	ErrNoRefreshToken = errors.New("sdk: refresh token missing")
	ErrTransport      = errors.New("sdk: transport error")

	// uploads
	ErrFileNotFound = errors.New("sdk: file not found")

	// pdf
	ErrInvalidSplit = errors.New("sdk: invalid split request")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeNotFound       = "E_NOT_FOUND"       // resource not found
	CodeConflict       = "E_CONFLICT"        // name conflict or invalid state
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS"  // credentials (e.g. token) invalid, expired or malformed
	CodeAuthTokenRefreshFailed = "E_AUTH_TOKEN_REFRESH_FAILED" // refresh token rejected
	CodeAuthUnconfirmed        = "E_AUTH_UNCONFIRMED"          // account exists but is not confirmed yet
	CodeAuthCodeMismatch       = "E_AUTH_CODE_MISMATCH"        // confirmation/reset code does not match

	// Upload errors
	CodeUploadNotFound = "E_UPLOAD_NOT_FOUND" // confirm called for a key that was never uploaded

	// Presigned URL errors
	CodePresignedURLExpired   = "E_PRESIGNED_URL_EXPIRED"    // presigned URL has expired
	CodePresignedURLInvalid   = "E_PRESIGNED_URL_INVALID"    // presigned URL is malformed or invalid
	CodePresignedURLForbidden = "E_PRESIGNED_URL_FORBIDDEN"  // access denied to presigned URL
	CodePresignedURLRateLimit = "E_PRESIGNED_URL_RATE_LIMIT" // rate limited by storage
)

// APIError is the error object of the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

func (e *APIError) ErrorCode() string    { return e.Code }
func (e *APIError) ErrorMessage() string { return e.Message }

// IsAuthRejection reports whether err is a definitive rejection of the caller's
// credentials, as opposed to a transient failure.
func IsAuthRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case CodeAuthInvalidCredentials, CodeAuthTokenRefreshFailed:
		return true
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsTransportError reports whether err never reached the API (dns, dial, reset, timeout).
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsNotFound reports whether err is a 404 style API error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNotFound || apiErr.Status == http.StatusNotFound
}

func wrapOp(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// handleAPIError translates a req response into an error, or nil on success.
func handleAPIError(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, requestErr)
	}

	if resp.IsErrorState() {
		if env, ok := resp.ErrorResult().(*errorEnvelope); ok && env.Error != nil {
			env.Error.Status = resp.GetStatusCode()
			return wrapOp(op, env.Error)
		}

		apiErr := NewAPIError(codeForStatus(resp.GetStatusCode()), resp.Status)
		apiErr.Status = resp.GetStatusCode()
		return wrapOp(op, apiErr)
	}

	return nil
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeAuthInvalidCredentials
	case status == http.StatusForbidden:
		return CodeAccessDenied
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeInternalError
	case status >= 400:
		return CodeInvalidRequest
	default:
		return CodeUnknownError
	}
}
