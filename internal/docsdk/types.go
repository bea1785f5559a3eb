package docsdk

import "time"

// Folder is a node of the user's folder tree.
type Folder struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ParentID  string     `json:"parentId,omitempty"`
	Path      string     `json:"path"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Document is a stored file.
type Document struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	FolderID    string     `json:"folderId,omitempty"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	PageCount   int        `json:"pageCount,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// HasMore reports whether pages after this one exist.
func (p *Page[T]) HasMore() bool {
	return p.Page*p.Limit < p.Total
}

type ListOptions struct {
	FolderID string
	Page     int
	Limit    int
}

type CreateFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// UpdateRequest has PATCH semantics: nil fields are left unchanged.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	FolderID *string `json:"folderId,omitempty"`
}

type MoveRequest struct {
	TargetFolderID string `json:"targetFolderId"`
}

type CopyRequest struct {
	TargetFolderID string `json:"targetFolderId"`
	Name           string `json:"name,omitempty"`
}

const SortRelevance = "relevance"

type SearchOptions struct {
	Query    string
	Sort     string
	FolderID string
	Limit    int
}

// SearchMatch is a hit with server computed match metadata.
type SearchMatch struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
	Snippet  string    `json:"snippet,omitempty"`
	Fields   []string  `json:"fields,omitempty"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Matches []*SearchMatch `json:"matches"`
}
