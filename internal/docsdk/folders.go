package docsdk

import (
	"context"
	"net/http"
)

const (
	v1Folders       = "/api/v1/folders"
	v1Folder        = "/api/v1/folders/{id}"
	v1FolderMove    = "/api/v1/folders/{id}/move"
	v1FolderCopy    = "/api/v1/folders/{id}/copy"
	v1FolderRestore = "/api/v1/folders/{id}/restore"
)

type FolderAPI struct {
	c *Client
}

func newFolderAPI(c *Client) *FolderAPI {
	return &FolderAPI{c: c}
}

// List returns the child folders of parentID, or the root folders when it is empty.
func (f *FolderAPI) List(ctx context.Context, parentID string) ([]*Folder, error) {
	call := apiCall{method: http.MethodGet, path: v1Folders, auth: true}
	if parentID != "" {
		call.query = map[string]string{"parentId": parentID}
	}
	return doJSON[[]*Folder](ctx, f.c, "folders list", call)
}

func (f *FolderAPI) Create(ctx context.Context, params *CreateFolderRequest) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders create", apiCall{
		method:  http.MethodPost,
		path:    v1Folders,
		body:    params,
		auth:    true,
		noRetry: true,
	})
}

func (f *FolderAPI) Get(ctx context.Context, id string) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders get", apiCall{
		method:     http.MethodGet,
		path:       v1Folder,
		pathParams: map[string]string{"id": id},
		auth:       true,
	})
}

func (f *FolderAPI) Update(ctx context.Context, id string, params *UpdateRequest) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders update", apiCall{
		method:     http.MethodPatch,
		path:       v1Folder,
		pathParams: map[string]string{"id": id},
		body:       params,
		auth:       true,
	})
}

// Delete moves the folder to the trash, or removes it for good when permanent is set.
func (f *FolderAPI) Delete(ctx context.Context, id string, permanent bool) error {
	call := apiCall{
		method:     http.MethodDelete,
		path:       v1Folder,
		pathParams: map[string]string{"id": id},
		auth:       true,
	}
	if permanent {
		call.query = map[string]string{"permanent": "true"}
	}
	return doEmpty(ctx, f.c, "folders delete", call)
}

func (f *FolderAPI) Move(ctx context.Context, id string, targetFolderID string) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders move", apiCall{
		method:     http.MethodPost,
		path:       v1FolderMove,
		pathParams: map[string]string{"id": id},
		body:       &MoveRequest{TargetFolderID: targetFolderID},
		auth:       true,
	})
}

func (f *FolderAPI) Copy(ctx context.Context, id string, params *CopyRequest) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders copy", apiCall{
		method:     http.MethodPost,
		path:       v1FolderCopy,
		pathParams: map[string]string{"id": id},
		body:       params,
		auth:       true,
		noRetry:    true,
	})
}

func (f *FolderAPI) Restore(ctx context.Context, id string) (*Folder, error) {
	return doJSON[*Folder](ctx, f.c, "folders restore", apiCall{
		method:     http.MethodPost,
		path:       v1FolderRestore,
		pathParams: map[string]string{"id": id},
		auth:       true,
	})
}
