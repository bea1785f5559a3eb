package docsdk

import "time"

// UploadParams describes a local file to upload.
type UploadParams struct {
	FilePath    string
	Name        string
	FolderID    string
	ContentType string
	Callback    ProgressCallback
}

type PresignRequest struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	FolderID    string `json:"folderId,omitempty"`
}

// PresignResponse carries a time limited URL the raw bytes are PUT to.
type PresignResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ConfirmUploadRequest struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	FolderID string `json:"folderId,omitempty"`
	Size     int64  `json:"size"`
}
