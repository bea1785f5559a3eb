package devserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/openmined/docbox/internal/version"
	slogGin "github.com/samber/slog-gin"
)

type services struct {
	auth    *AuthService
	library *Library
	blobs   BlobStore
	jobs    *JobRunner
	uploads *uploadHandler
}

func setupRoutes(cfg *Config, svc *services) (http.Handler, error) {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	authH := &authHandler{auth: svc.auth, lib: svc.library}
	libH := &libraryHandler{lib: svc.library, blobs: svc.blobs}
	pdfH := &pdfHandler{jobs: svc.jobs}
	uploadH := svc.uploads

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(GZIP())
	r.Use(cors.Default())
	if cfg.Secure {
		r.Use(HSTS())
	}
	if cfg.RateLimit != "" {
		limit, err := RateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	r.GET("/", indexHandler)
	r.GET("/healthz", healthHandler)

	// signed urls carry their own authorization
	r.PUT(blobRoutePrefix+"*key", uploadH.PutBlob)

	authG := r.Group("/auth")
	{
		authG.POST("/register", authH.Register)
		authG.POST("/confirm", authH.Confirm)
		authG.POST("/resend", authH.Resend)
		authG.POST("/forgot", authH.Forgot)
		authG.POST("/reset", authH.Reset)
		authG.POST("/login", authH.Login)
		authG.POST("/refresh", authH.Refresh)
		authG.POST("/logout", authH.Logout)
		authG.GET("/me", JWTAuth(svc.auth), authH.Me)
	}

	v1 := r.Group("/api/v1")
	v1.Use(JWTAuth(svc.auth))
	{
		// folders
		v1.GET("/folders", libH.ListFolders)
		v1.POST("/folders", libH.CreateFolder)
		v1.GET("/folders/:id", libH.GetFolder)
		v1.PATCH("/folders/:id", libH.UpdateFolder)
		v1.DELETE("/folders/:id", libH.DeleteFolder)
		v1.POST("/folders/:id/move", libH.MoveFolder)
		v1.POST("/folders/:id/copy", libH.CopyFolder)
		v1.POST("/folders/:id/restore", libH.RestoreFolder)

		// documents
		v1.GET("/documents", libH.ListDocuments)
		v1.GET("/documents/search", libH.Search)
		v1.POST("/documents/upload", uploadH.Direct)
		v1.GET("/documents/:id", libH.GetDocument)
		v1.PATCH("/documents/:id", libH.UpdateDocument)
		v1.DELETE("/documents/:id", libH.DeleteDocument)
		v1.GET("/documents/:id/content", libH.Content)
		v1.POST("/documents/:id/move", libH.MoveDocument)
		v1.POST("/documents/:id/copy", libH.CopyDocument)
		v1.POST("/documents/:id/restore", libH.RestoreDocument)

		// presigned uploads
		v1.POST("/uploads/presign", uploadH.Presign)
		v1.POST("/uploads/confirm", uploadH.Confirm)

		// pdf
		v1.GET("/pdf/:id/info", pdfH.Info)
		v1.POST("/pdf/:id/split", pdfH.Split)
		v1.GET("/pdf/jobs/:jobId", pdfH.Job)
	}

	r.NoRoute(func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   apiError{Code: CodeNotFound, Message: "not found"},
		})
	})

	return r.Handler(), nil
}

func indexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func healthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
