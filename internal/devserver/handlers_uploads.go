package devserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/utils"
)

const blobRoutePrefix = "/blob/"

// pendingUpload is a presigned key waiting for its confirm call.
type pendingUpload struct {
	Owner       string
	Name        string
	Size        int64
	ContentType string
	FolderID    string
}

type uploadHandler struct {
	lib     *Library
	blobs   BlobStore
	pending *expirable.LRU[string, *pendingUpload]
}

func newUploadHandler(lib *Library, blobs BlobStore, urlExpiry time.Duration) *uploadHandler {
	return &uploadHandler{
		lib:   lib,
		blobs: blobs,
		// confirm may arrive a while after the PUT finished
		pending: expirable.NewLRU[string, *pendingUpload](0, nil, 2*urlExpiry),
	}
}

// Direct accepts a multipart upload with the file in the "file" field.
func (h *uploadHandler) Direct(ctx *gin.Context) {
	owner := currentUser(ctx)

	file, err := ctx.FormFile("file")
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf("`file` is required: %w", err))
		return
	}

	name := ctx.PostForm("name")
	if name == "" {
		name = file.Filename
	}

	if h.lib.StorageLimit() > 0 && h.lib.Usage(owner)+file.Size > h.lib.StorageLimit() {
		abortWithStoreError(ctx, ErrQuota)
		return
	}

	src, err := file.Open()
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	doc, err := h.store(ctx, owner, &pendingUpload{
		Owner:       owner,
		Name:        name,
		Size:        int64(len(data)),
		ContentType: utils.DetectContentType(name),
		FolderID:    ctx.PostForm("folderId"),
	}, "documents/"+uuid.NewString(), data)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusCreated, doc)
}

func (h *uploadHandler) Presign(ctx *gin.Context) {
	owner := currentUser(ctx)

	var req docsdk.PresignRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if _, err := cleanName(req.Name); err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	if req.Size < 0 {
		abortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, errors.New("`size` must not be negative"))
		return
	}
	if h.lib.StorageLimit() > 0 && h.lib.Usage(owner)+req.Size > h.lib.StorageLimit() {
		abortWithStoreError(ctx, ErrQuota)
		return
	}
	if req.ContentType == "" {
		req.ContentType = utils.DetectContentType(req.Name)
	}

	key := "uploads/" + uuid.NewString()
	url, expiresAt, err := h.blobs.PresignPut(ctx.Request.Context(), key, req.ContentType)
	if err != nil {
		abortWithError(ctx, http.StatusInternalServerError, CodeInternalError, err)
		return
	}

	h.pending.Add(key, &pendingUpload{
		Owner:       owner,
		Name:        req.Name,
		Size:        req.Size,
		ContentType: req.ContentType,
		FolderID:    req.FolderID,
	})

	respond(ctx, http.StatusOK, &docsdk.PresignResponse{Key: key, URL: url, ExpiresAt: expiresAt})
}

func (h *uploadHandler) Confirm(ctx *gin.Context) {
	owner := currentUser(ctx)

	var req docsdk.ConfirmUploadRequest
	if !bindJSON(ctx, &req) {
		return
	}

	upload, ok := h.pending.Get(req.Key)
	if !ok || upload.Owner != owner {
		abortWithError(ctx, http.StatusNotFound, CodeUploadNotFound, fmt.Errorf("upload %q not found", req.Key))
		return
	}

	size, err := h.blobs.Size(ctx.Request.Context(), req.Key)
	if errors.Is(err, ErrNotFound) {
		abortWithError(ctx, http.StatusNotFound, CodeUploadNotFound, fmt.Errorf("upload %q was never stored", req.Key))
		return
	} else if err != nil {
		abortWithError(ctx, http.StatusInternalServerError, CodeInternalError, err)
		return
	}

	if req.Name != "" {
		upload.Name = req.Name
	}
	upload.FolderID = req.FolderID
	upload.Size = size

	var pageCount int
	if utils.IsPDF(upload.Name) {
		pageCount = h.pageCount(ctx, req.Key)
	}

	doc, err := h.lib.AddDocument(owner, &NewDocument{
		Name:        upload.Name,
		FolderID:    upload.FolderID,
		ContentType: upload.ContentType,
		Size:        upload.Size,
		PageCount:   pageCount,
		BlobKey:     req.Key,
	})
	if err != nil {
		_ = h.blobs.Delete(ctx.Request.Context(), req.Key)
		abortWithStoreError(ctx, err)
		return
	}

	h.pending.Remove(req.Key)
	respond(ctx, http.StatusCreated, doc)
}

// PutBlob receives the bytes of a locally signed upload url.
func (h *uploadHandler) PutBlob(ctx *gin.Context) {
	mem, ok := h.blobs.(*MemoryBlobs)
	if !ok {
		ctx.String(http.StatusNotFound, "NoSuchBucket")
		return
	}

	key := strings.TrimPrefix(path.Clean(ctx.Param("key")), "/")
	if err := mem.Verify(key, ctx.Query("expires"), ctx.Query("sig")); err != nil {
		code := "SignatureDoesNotMatch"
		if errors.Is(err, ErrBlobExpired) {
			code = "AccessDenied: Request has expired"
		}
		ctx.String(http.StatusForbidden, code)
		return
	}

	upload, ok := h.pending.Get(key)
	if !ok {
		ctx.String(http.StatusForbidden, "AccessDenied: unknown key")
		return
	}

	data, err := io.ReadAll(io.LimitReader(ctx.Request.Body, upload.Size+1))
	if err != nil {
		ctx.String(http.StatusBadRequest, err.Error())
		return
	}
	if int64(len(data)) != upload.Size {
		ctx.String(http.StatusBadRequest, "IncompleteBody")
		return
	}

	if err := mem.Put(ctx.Request.Context(), key, data); err != nil {
		ctx.String(http.StatusInternalServerError, err.Error())
		return
	}
	ctx.Status(http.StatusOK)
}

func (h *uploadHandler) store(ctx *gin.Context, owner string, upload *pendingUpload, key string, data []byte) (*docsdk.Document, error) {
	var pageCount int
	if utils.IsPDF(upload.Name) {
		if meta, err := inspectPDF(data); err == nil {
			pageCount = meta.PageCount
		}
	}

	if err := h.blobs.Put(ctx.Request.Context(), key, data); err != nil {
		return nil, err
	}

	doc, err := h.lib.AddDocument(owner, &NewDocument{
		Name:        upload.Name,
		FolderID:    upload.FolderID,
		ContentType: upload.ContentType,
		Size:        upload.Size,
		PageCount:   pageCount,
		BlobKey:     key,
	})
	if err != nil {
		_ = h.blobs.Delete(ctx.Request.Context(), key)
		return nil, err
	}
	return doc, nil
}

func (h *uploadHandler) pageCount(ctx *gin.Context, key string) int {
	body, _, err := h.blobs.Get(ctx.Request.Context(), key)
	if err != nil {
		return 0
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return 0
	}
	meta, err := inspectPDF(data)
	if err != nil {
		return 0
	}
	return meta.PageCount
}
