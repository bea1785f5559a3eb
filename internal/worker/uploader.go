package worker

import (
	"context"
	"log/slog"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
)

// UploadAPI is the part of the API client used for uploads.
type UploadAPI interface {
	Direct(ctx context.Context, params *docsdk.UploadParams) (*docsdk.Document, error)
	Presigned(ctx context.Context, params *docsdk.UploadParams) (*docsdk.Document, error)
}

// Uploader sends queued files with the flow chosen when they were enqueued.
type Uploader struct {
	queue *transfer.UploadQueue
	api   UploadAPI
	// OnComplete is called after an item completed, e.g. to apply the storage delta.
	OnComplete func(ctx context.Context, result transfer.UploadResult)
}

func NewUploader(queue *transfer.UploadQueue, api UploadAPI) *Uploader {
	return &Uploader{queue: queue, api: api}
}

// Handle uploads item id. It is a Handler.
func (u *Uploader) Handle(ctx context.Context, id string) {
	itemCtx, item, done, ok := begin(ctx, u.queue, id, transfer.PhaseUploading)
	if !ok {
		return
	}
	defer done()

	p := item.Payload
	params := &docsdk.UploadParams{
		FilePath: p.Path,
		Name:     p.Name,
		FolderID: p.FolderID,
		Callback: func(sent, total int64) {
			_ = u.queue.UpdateProgress(id, percent(sent, total), nil)
		},
	}

	upload := u.api.Direct
	if p.Presigned {
		upload = u.api.Presigned
	}

	doc, err := upload(itemCtx, params)
	if err != nil {
		slog.Warn("upload failed", "name", p.Name, "presigned", p.Presigned, "error", err)
		fail(ctx, itemCtx, u.queue, id, err)
		return
	}

	size := doc.Size
	if size == 0 {
		size = p.Size
	}
	result := transfer.UploadResult{DocumentID: doc.ID, Size: size}
	if err := u.queue.Complete(id, result); err != nil {
		// removed while the last bytes were in flight
		slog.Debug("upload complete", "id", id, "error", err)
		return
	}
	slog.Info("uploaded", "name", p.Name, "document", doc.ID, "size", size)

	if u.OnComplete != nil {
		u.OnComplete(ctx, result)
	}
}
