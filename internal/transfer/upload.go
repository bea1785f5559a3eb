package transfer

import (
	"path/filepath"
	"slices"
)

// DefaultPresignThreshold is the file size above which uploads go through a presigned URL.
const DefaultPresignThreshold int64 = 5 * 1024 * 1024

// LocalFile is a file picked for upload.
type LocalFile struct {
	Path string
	Size int64
}

type UploadPayload struct {
	Path     string `json:"path" yaml:"path"`
	Name     string `json:"name" yaml:"name"`
	Size     int64  `json:"size" yaml:"size"`
	FolderID string `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	// Presigned selects the presign, PUT and confirm flow over a direct multipart POST.
	Presigned bool `json:"presigned" yaml:"presigned"`
}

type UploadResult struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	Size       int64  `json:"size" yaml:"size"`
}

type UploadQueue = Queue[UploadPayload, UploadResult]

func NewUploadQueue() *UploadQueue {
	return NewQueue[UploadPayload, UploadResult]("uploads", PhaseUploading)
}

// UploadPolicy picks the upload flow for a batch.
type UploadPolicy struct {
	PresignThreshold int64
}

func (p UploadPolicy) threshold() int64 {
	if p.PresignThreshold > 0 {
		return p.PresignThreshold
	}
	return DefaultPresignThreshold
}

// UsePresigned reports whether a batch with the given file sizes uploads through
// presigned URLs: more than one file, or any file over the threshold.
func (p UploadPolicy) UsePresigned(sizes ...int64) bool {
	if len(sizes) > 1 {
		return true
	}
	limit := p.threshold()
	return slices.ContainsFunc(sizes, func(s int64) bool { return s > limit })
}

// Plan builds the payloads for one batch. Every item of the batch uses the same flow.
func (p UploadPolicy) Plan(folderID string, files ...LocalFile) []UploadPayload {
	sizes := make([]int64, len(files))
	for i, f := range files {
		sizes[i] = f.Size
	}
	presigned := p.UsePresigned(sizes...)

	payloads := make([]UploadPayload, len(files))
	for i, f := range files {
		payloads[i] = UploadPayload{
			Path:      f.Path,
			Name:      filepath.Base(f.Path),
			Size:      f.Size,
			FolderID:  folderID,
			Presigned: presigned,
		}
	}
	return payloads
}

// EnqueueUploads plans files as one batch and enqueues them.
func EnqueueUploads(q *UploadQueue, policy UploadPolicy, folderID string, files ...LocalFile) []string {
	if len(files) == 0 {
		return nil
	}
	return q.Enqueue(policy.Plan(folderID, files...)...)
}
