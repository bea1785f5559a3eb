package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docbox/internal/docsdk"
)

type pdfHandler struct {
	jobs *JobRunner
}

func (h *pdfHandler) Info(ctx *gin.Context) {
	info, err := h.jobs.Info(ctx.Request.Context(), currentUser(ctx), ctx.Param("id"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, info)
}

func (h *pdfHandler) Split(ctx *gin.Context) {
	var req docsdk.SplitRequest
	if !bindJSON(ctx, &req) {
		return
	}
	job, err := h.jobs.Submit(ctx.Request.Context(), currentUser(ctx), ctx.Param("id"), &req)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusAccepted, job)
}

func (h *pdfHandler) Job(ctx *gin.Context) {
	job, err := h.jobs.Job(currentUser(ctx), ctx.Param("jobId"))
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, job)
}
