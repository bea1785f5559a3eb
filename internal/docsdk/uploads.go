package docsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/docbox/internal/utils"
)

const (
	v1DocumentUpload = "/api/v1/documents/upload"
	v1UploadPresign  = "/api/v1/uploads/presign"
	v1UploadConfirm  = "/api/v1/uploads/confirm"

	// below this size direct uploads do not report progress
	minProgressSize = 1024 * 1024
)

type UploadAPI struct {
	c *Client
	// presigned PUTs go straight to storage and carry no API auth
	storage *http.Client
}

func newUploadAPI(c *Client) *UploadAPI {
	return &UploadAPI{
		c:       c,
		storage: &http.Client{},
	}
}

// Direct uploads a file in a single multipart request and returns the created document.
func (u *UploadAPI) Direct(ctx context.Context, params *UploadParams) (*Document, error) {
	if !utils.FileExists(params.FilePath) {
		return nil, ErrFileNotFound
	}

	name := params.Name
	if name == "" {
		name = filepath.Base(params.FilePath)
	}
	form := map[string]string{"name": name}
	if params.FolderID != "" {
		form["folderId"] = params.FolderID
	}

	var lastSent int64
	return doJSONWith[*Document](ctx, u.c, "upload direct", apiCall{
		method:  http.MethodPost,
		path:    v1DocumentUpload,
		auth:    true,
		noRetry: true,
	}, func(r *req.Request) {
		lastSent = 0
		r.SetFile("file", params.FilePath).
			SetFormData(form).
			SetUploadCallbackWithInterval(func(info req.UploadInfo) {
				if info.UploadedSize > lastSent {
					u.c.stats.onSend(info.UploadedSize - lastSent)
					lastSent = info.UploadedSize
				}
				if info.FileSize < minProgressSize || params.Callback == nil {
					return
				}
				params.Callback(info.UploadedSize, info.FileSize)
			}, progressInterval)
	})
}

// Presign asks the API for a storage key and a signed PUT URL.
func (u *UploadAPI) Presign(ctx context.Context, params *PresignRequest) (*PresignResponse, error) {
	if params.ContentType == "" {
		params.ContentType = utils.DetectContentType(params.Name)
	}
	return doJSON[*PresignResponse](ctx, u.c, "upload presign", apiCall{
		method: http.MethodPost,
		path:   v1UploadPresign,
		body:   params,
		auth:   true,
	})
}

// PutPresigned uploads the file at path to a signed URL.
func (u *UploadAPI) PutPresigned(ctx context.Context, url string, path string, callback ProgressCallback) error {
	const op = "upload put presigned"

	// not using req here: the body must be streamed with an exact Content-Length and
	// presigned urls must not carry the API bearer token.
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body := &progressReader{
		reader:   file,
		total:    info.Size(),
		callback: callback,
		onRead:   u.c.stats.onSend,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	httpReq.ContentLength = info.Size()
	httpReq.Header.Set("Content-Type", utils.DetectContentType(path))

	resp, err := u.storage.Do(httpReq)
	if err != nil {
		u.c.stats.setLastError(err)
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := presignedError(resp.StatusCode, string(msg))
	return wrapOp(op, apiErr)
}

// Confirm materializes the document record for an uploaded storage key.
func (u *UploadAPI) Confirm(ctx context.Context, params *ConfirmUploadRequest) (*Document, error) {
	return doJSON[*Document](ctx, u.c, "upload confirm", apiCall{
		method:  http.MethodPost,
		path:    v1UploadConfirm,
		body:    params,
		auth:    true,
		noRetry: true,
	})
}

// Presigned runs the full presign, PUT and confirm flow for one file.
func (u *UploadAPI) Presigned(ctx context.Context, params *UploadParams) (*Document, error) {
	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, ErrFileNotFound
	}

	name := params.Name
	if name == "" {
		name = filepath.Base(params.FilePath)
	}

	signed, err := u.Presign(ctx, &PresignRequest{
		Name:        name,
		Size:        info.Size(),
		ContentType: params.ContentType,
		FolderID:    params.FolderID,
	})
	if err != nil {
		return nil, err
	}

	if !signed.ExpiresAt.IsZero() && time.Now().After(signed.ExpiresAt) {
		return nil, wrapOp("upload put presigned", NewAPIError(CodePresignedURLExpired, "expired before upload"))
	}

	if err := u.PutPresigned(ctx, signed.URL, params.FilePath, params.Callback); err != nil {
		return nil, err
	}

	return u.Confirm(ctx, &ConfirmUploadRequest{
		Key:      signed.Key,
		Name:     name,
		FolderID: params.FolderID,
		Size:     info.Size(),
	})
}

func presignedError(status int, body string) *APIError {
	var code, msg string
	switch status {
	case http.StatusForbidden:
		switch {
		case strings.Contains(body, "expired"):
			code, msg = CodePresignedURLExpired, "expired"
		case strings.Contains(body, "SignatureDoesNotMatch"):
			code, msg = CodePresignedURLInvalid, "invalid"
		default:
			code, msg = CodePresignedURLForbidden, "access denied"
		}
	case http.StatusTooManyRequests:
		code, msg = CodePresignedURLRateLimit, "rate limit exceeded"
	default:
		code, msg = codeForStatus(status), http.StatusText(status)
	}

	apiErr := NewAPIError(code, msg)
	apiErr.Status = status
	return apiErr
}
