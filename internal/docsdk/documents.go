package docsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/imroc/req/v3"
)

const (
	v1Documents       = "/api/v1/documents"
	v1Document        = "/api/v1/documents/{id}"
	v1DocumentMove    = "/api/v1/documents/{id}/move"
	v1DocumentCopy    = "/api/v1/documents/{id}/copy"
	v1DocumentRestore = "/api/v1/documents/{id}/restore"
	v1DocumentContent = "/api/v1/documents/{id}/content"
	v1DocumentSearch  = "/api/v1/documents/search"

	defaultPageLimit = 50
)

type DocumentAPI struct {
	c *Client
}

func newDocumentAPI(c *Client) *DocumentAPI {
	return &DocumentAPI{c: c}
}

// List returns one page of the documents in opts.FolderID.
func (d *DocumentAPI) List(ctx context.Context, opts *ListOptions) (*Page[*Document], error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	page := max(opts.Page, 1)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
	if opts.FolderID != "" {
		query["folderId"] = opts.FolderID
	}

	return doJSON[*Page[*Document]](ctx, d.c, "documents list", apiCall{
		method: http.MethodGet,
		path:   v1Documents,
		query:  query,
		auth:   true,
	})
}

// ListAll walks every page of a folder listing.
func (d *DocumentAPI) ListAll(ctx context.Context, folderID string) ([]*Document, error) {
	var docs []*Document
	opts := &ListOptions{FolderID: folderID, Page: 1, Limit: defaultPageLimit}
	for {
		page, err := d.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page.Items...)
		if !page.HasMore() || len(page.Items) == 0 {
			return docs, nil
		}
		opts.Page++
	}
}

func (d *DocumentAPI) Get(ctx context.Context, id string) (*Document, error) {
	return doJSON[*Document](ctx, d.c, "documents get", apiCall{
		method:     http.MethodGet,
		path:       v1Document,
		pathParams: map[string]string{"id": id},
		auth:       true,
	})
}

func (d *DocumentAPI) Update(ctx context.Context, id string, params *UpdateRequest) (*Document, error) {
	return doJSON[*Document](ctx, d.c, "documents update", apiCall{
		method:     http.MethodPatch,
		path:       v1Document,
		pathParams: map[string]string{"id": id},
		body:       params,
		auth:       true,
	})
}

// Delete soft deletes the document unless permanent is set.
func (d *DocumentAPI) Delete(ctx context.Context, id string, permanent bool) error {
	call := apiCall{
		method:     http.MethodDelete,
		path:       v1Document,
		pathParams: map[string]string{"id": id},
		auth:       true,
	}
	if permanent {
		call.query = map[string]string{"permanent": "true"}
	}
	return doEmpty(ctx, d.c, "documents delete", call)
}

func (d *DocumentAPI) Move(ctx context.Context, id string, targetFolderID string) (*Document, error) {
	return doJSON[*Document](ctx, d.c, "documents move", apiCall{
		method:     http.MethodPost,
		path:       v1DocumentMove,
		pathParams: map[string]string{"id": id},
		body:       &MoveRequest{TargetFolderID: targetFolderID},
		auth:       true,
	})
}

func (d *DocumentAPI) Copy(ctx context.Context, id string, params *CopyRequest) (*Document, error) {
	return doJSON[*Document](ctx, d.c, "documents copy", apiCall{
		method:     http.MethodPost,
		path:       v1DocumentCopy,
		pathParams: map[string]string{"id": id},
		body:       params,
		auth:       true,
		noRetry:    true,
	})
}

func (d *DocumentAPI) Restore(ctx context.Context, id string) (*Document, error) {
	return doJSON[*Document](ctx, d.c, "documents restore", apiCall{
		method:     http.MethodPost,
		path:       v1DocumentRestore,
		pathParams: map[string]string{"id": id},
		auth:       true,
	})
}

// Search runs a full text query. Sort may be SortRelevance or empty for the server default.
func (d *DocumentAPI) Search(ctx context.Context, opts *SearchOptions) (*SearchResponse, error) {
	if opts == nil || opts.Query == "" {
		return nil, wrapOp("documents search", NewAPIError(CodeInvalidRequest, "query is required"))
	}

	query := map[string]string{"q": opts.Query}
	if opts.Sort != "" {
		query["sort"] = opts.Sort
	}
	if opts.FolderID != "" {
		query["folderId"] = opts.FolderID
	}
	if opts.Limit > 0 {
		query["limit"] = strconv.Itoa(opts.Limit)
	}

	return doJSON[*SearchResponse](ctx, d.c, "documents search", apiCall{
		method: http.MethodGet,
		path:   v1DocumentSearch,
		query:  query,
		auth:   true,
	})
}

// Download streams the content of a document into w and returns the number of bytes written.
func (d *DocumentAPI) Download(ctx context.Context, id string, w io.Writer, callback ProgressCallback) (int64, error) {
	const op = "documents download"

	resp, err := d.c.send(ctx, apiCall{
		method:     http.MethodGet,
		path:       v1DocumentContent,
		pathParams: map[string]string{"id": id},
		auth:       true,
	}, func(r *req.Request) {
		r.DisableAutoReadResponse()
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.IsErrorState() {
		return 0, wrapOp(op, decodeErrorBody(resp))
	}

	pw := &progressWriter{
		writer:   w,
		total:    resp.ContentLength,
		callback: callback,
		onWrite:  d.c.stats.onRecv,
	}
	n, err := io.Copy(pw, resp.Body)
	pw.flush()
	if err != nil {
		d.c.stats.setLastError(err)
		return n, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}

	return n, nil
}

// decodeErrorBody reads an error envelope from a response that was not auto read.
func decodeErrorBody(resp *req.Response) error {
	status := resp.GetStatusCode()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil {
		var env errorEnvelope
		if jsonUnmarshal(body, &env) == nil && env.Error != nil {
			env.Error.Status = status
			return env.Error
		}
	}

	apiErr := NewAPIError(codeForStatus(status), resp.Status)
	apiErr.Status = status
	return apiErr
}
