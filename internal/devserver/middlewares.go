package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	bearerPrefix    = "Bearer "
	authHeader      = "Authorization"
	userContextKey  = "user"
	emailContextKey = "email"
)

// JWTAuth validates the bearer access token and stores the account id and email in the context.
func JWTAuth(auth *AuthService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value := ctx.GetHeader(authHeader)
		if !strings.HasPrefix(value, bearerPrefix) {
			abortWithError(ctx, http.StatusUnauthorized, CodeAuthInvalidCredentials,
				errors.New("authorization header must be Bearer {token}"))
			return
		}

		claims, err := auth.ValidateAccessToken(strings.TrimPrefix(value, bearerPrefix))
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, CodeAuthInvalidCredentials, err)
			return
		}

		ctx.Set(userContextKey, claims.Subject)
		ctx.Set(emailContextKey, claims.Email)
		ctx.Next()
	}
}

func currentUser(ctx *gin.Context) string {
	return ctx.GetString(userContextKey)
}

func currentEmail(ctx *gin.Context) string {
	return ctx.GetString(emailContextKey)
}

// RateLimiter limits requests per client ip. formattedRate uses the limiter format, e.g. "100-S".
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}
	return mgin.NewMiddleware(
		limiter.New(memory.NewStore(), rate),
		mgin.WithLimitReachedHandler(func(ctx *gin.Context) {
			ctx.PureJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   apiError{Code: CodeRateLimited, Message: "rate limit exceeded"},
			})
		}),
		mgin.WithErrorHandler(func(ctx *gin.Context, err error) {
			slog.Error("rate limiter", "error", err)
			ctx.PureJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   apiError{Code: CodeInternalError, Message: err.Error()},
			})
		}),
	), nil
}

// GZIP skips document content and raw blob uploads so Content-Length survives for progress.
func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPathsRegexs([]string{`/content$`, `^/blob/`}),
		gzip.WithExcludedExtensions([]string{".pdf", ".zip", ".png", ".jpg", ".jpeg"}),
	)
}

func HSTS() gin.HandlerFunc {
	return secure.New(secure.Config{
		SSLRedirect:          true,
		STSSeconds:           315360000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		IENoOpen:             true,
		SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
	})
}
