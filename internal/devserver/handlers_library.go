package devserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docbox/internal/docsdk"
)

type libraryHandler struct {
	lib   *Library
	blobs BlobStore
}

func (h *libraryHandler) ListFolders(ctx *gin.Context) {
	folders, err := h.lib.ListFolders(currentUser(ctx), ctx.Query("parentId"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, folders)
}

func (h *libraryHandler) CreateFolder(ctx *gin.Context) {
	var req docsdk.CreateFolderRequest
	if !bindJSON(ctx, &req) {
		return
	}
	folder, err := h.lib.CreateFolder(currentUser(ctx), req.Name, req.ParentID)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusCreated, folder)
}

func (h *libraryHandler) GetFolder(ctx *gin.Context) {
	folder, err := h.lib.GetFolder(currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, folder)
}

func (h *libraryHandler) UpdateFolder(ctx *gin.Context) {
	var req docsdk.UpdateRequest
	if !bindJSON(ctx, &req) {
		return
	}
	folder, err := h.lib.UpdateFolder(currentUser(ctx), ctx.Param("id"), &req)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, folder)
}

func (h *libraryHandler) DeleteFolder(ctx *gin.Context) {
	permanent := ctx.Query("permanent") == "true"
	if err := h.lib.DeleteFolder(currentUser(ctx), ctx.Param("id"), permanent); err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respondMessage(ctx, "folder deleted")
}

func (h *libraryHandler) MoveFolder(ctx *gin.Context) {
	var req docsdk.MoveRequest
	if !bindJSON(ctx, &req) {
		return
	}
	folder, err := h.lib.MoveFolder(currentUser(ctx), ctx.Param("id"), req.TargetFolderID)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, folder)
}

func (h *libraryHandler) CopyFolder(ctx *gin.Context) {
	var req docsdk.CopyRequest
	if !bindJSON(ctx, &req) {
		return
	}
	folder, err := h.lib.CopyFolder(currentUser(ctx), ctx.Param("id"), &req)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusCreated, folder)
}

func (h *libraryHandler) RestoreFolder(ctx *gin.Context) {
	folder, err := h.lib.RestoreFolder(currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, folder)
}

func (h *libraryHandler) ListDocuments(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))

	docs, err := h.lib.ListDocuments(currentUser(ctx), ctx.Query("folderId"), page, limit)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, docs)
}

func (h *libraryHandler) Search(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	result, err := h.lib.Search(currentUser(ctx), ctx.Query("q"), ctx.Query("sort"), ctx.Query("folderId"), limit)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, result)
}

func (h *libraryHandler) GetDocument(ctx *gin.Context) {
	doc, err := h.lib.GetDocument(currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, doc)
}

func (h *libraryHandler) UpdateDocument(ctx *gin.Context) {
	var req docsdk.UpdateRequest
	if !bindJSON(ctx, &req) {
		return
	}
	doc, err := h.lib.UpdateDocument(currentUser(ctx), ctx.Param("id"), &req)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, doc)
}

func (h *libraryHandler) DeleteDocument(ctx *gin.Context) {
	permanent := ctx.Query("permanent") == "true"
	if err := h.lib.DeleteDocument(ctx.Request.Context(), currentUser(ctx), ctx.Param("id"), permanent); err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respondMessage(ctx, "document deleted")
}

func (h *libraryHandler) MoveDocument(ctx *gin.Context) {
	var req docsdk.MoveRequest
	if !bindJSON(ctx, &req) {
		return
	}
	doc, err := h.lib.MoveDocument(currentUser(ctx), ctx.Param("id"), req.TargetFolderID)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, doc)
}

func (h *libraryHandler) CopyDocument(ctx *gin.Context) {
	var req docsdk.CopyRequest
	if !bindJSON(ctx, &req) {
		return
	}
	doc, err := h.lib.CopyDocument(currentUser(ctx), ctx.Param("id"), &req)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusCreated, doc)
}

func (h *libraryHandler) RestoreDocument(ctx *gin.Context) {
	doc, err := h.lib.RestoreDocument(currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, doc)
}

// Content streams the document bytes with an exact Content-Length so clients can
// report download progress.
func (h *libraryHandler) Content(ctx *gin.Context) {
	doc, key, err := h.lib.Content(currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}

	body, size, err := h.blobs.Get(ctx.Request.Context(), key)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	defer body.Close()

	ctx.DataFromReader(http.StatusOK, size, doc.ContentType, body, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(doc.Name),
	})
}
