package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openmined/docbox/internal/client/config"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/kv"
	"github.com/openmined/docbox/internal/session"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": msg},
	})
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.ServerURL = srv.URL
	cfg.DataDir = t.TempDir()
	cfg.DownloadDir = t.TempDir()
	require.NoError(t, cfg.Validate())

	c, err := New(cfg, WithStore(kv.NewMemoryStore()), WithSDKOptions(docsdk.WithRetry(0, 0, 0)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// fakeLibrary serves one folder and a set of documents; deleting the folder fails.
type fakeLibrary struct {
	mu      sync.Mutex
	folders map[string]*docsdk.Folder
	docs    map[string]*docsdk.Document
}

func (f *fakeLibrary) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/folders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []*docsdk.Folder{}
		for _, fo := range f.folders {
			out = append(out, fo)
		}
		writeData(w, http.StatusOK, out)
	})
	mux.HandleFunc("DELETE /api/v1/folders/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusConflict, docsdk.CodeConflict, "folder is locked")
	})
	mux.HandleFunc("GET /api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		items := []*docsdk.Document{}
		for _, d := range f.docs {
			items = append(items, d)
		}
		writeData(w, http.StatusOK, docsdk.Page[*docsdk.Document]{Items: items, Page: 1, Limit: 50, Total: len(items)})
	})
	mux.HandleFunc("DELETE /api/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.docs[id]; !ok {
			writeErr(w, http.StatusNotFound, docsdk.CodeNotFound, "no such document")
			return
		}
		delete(f.docs, id)
		writeData(w, http.StatusOK, nil)
	})
	return mux
}

func TestDelete_PartialFailureIsReportedPerTarget(t *testing.T) {
	lib := &fakeLibrary{
		folders: map[string]*docsdk.Folder{"folderA": {ID: "folderA", Name: "A"}},
		docs:    map[string]*docsdk.Document{"fileB": {ID: "fileB", Name: "b.pdf"}},
	}
	c := newTestClient(t, lib.handler())
	ctx := context.Background()

	res := c.Delete(ctx, []Target{Folder("folderA"), Document("fileB")}, false)

	assert.Equal(t, "1 succeeded, 1 failed", res.String())
	assert.False(t, res.OK())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, Folder("folderA"), res.Failed[0].Target)
	assert.Contains(t, res.Failed[0].Error, "folder is locked")
	assert.Equal(t, []Target{Document("fileB")}, res.Succeeded)

	docs, err := c.Documents(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, docs)

	folders, err := c.Folders(ctx, "")
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "folderA", folders[0].ID)
}

func TestAuthBridge_RefreshRejectionClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{
			"user":   map[string]any{"id": "u1", "email": "alice@example.com"},
			"tokens": map[string]any{"accessToken": "a1", "refreshToken": "r1", "expiresIn": 3600},
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, docsdk.CodeAuthTokenRefreshFailed, "refresh token revoked")
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.Session().Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, c.Session().Session().IsAuthenticated())

	ok, err := c.Session().PerformRefresh(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, session.ErrSessionRejected)
	assert.False(t, c.Session().Session().IsAuthenticated())
}

func TestAuthBridge_TransportFailureKeepsSession(t *testing.T) {
	assert.NoError(t, rejected(nil))

	plain := docsdk.NewAPIError(docsdk.CodeInternalError, "down")
	assert.NotErrorIs(t, rejected(plain), session.ErrRejected)

	denied := &docsdk.APIError{Code: docsdk.CodeAuthInvalidCredentials, Message: "bad token", Status: http.StatusUnauthorized}
	assert.ErrorIs(t, rejected(denied), session.ErrRejected)
}

func TestCollectFiles_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.pdf", "notes.txt", "sub/b.pdf", "sub/draft/c.pdf", ".hidden/d.pdf"} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	}

	files, err := CollectFiles([]string{root}, []string{"**/*.pdf"}, []string{"**/draft/**", ".hidden/**"})
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		got = append(got, filepath.ToSlash(rel))
		assert.Equal(t, int64(len(filepath.ToSlash(rel))), f.Size)
	}
	assert.ElementsMatch(t, []string{"a.pdf", "sub/b.pdf"}, got)

	_, err = CollectFiles([]string{root}, []string{"[bad"}, nil)
	assert.Error(t, err)
}

func TestUpload_BatchPolicyAndBusy(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())

	_, err := c.Upload("")
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.False(t, c.Busy())

	ids, err := c.Upload("f1",
		transfer.LocalFile{Path: "/x/one.pdf", Size: 1024},
		transfer.LocalFile{Path: "/x/two.pdf", Size: 1024},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.True(t, c.Busy())

	for _, id := range ids {
		it, ok := c.Uploads.Get(id)
		require.True(t, ok)
		assert.True(t, it.Payload.Presigned)
		assert.Equal(t, "f1", it.Payload.FolderID)
	}

	st := c.Status()
	assert.True(t, st.Busy)
	assert.Equal(t, "unauthenticated", st.Session.State)
	require.Len(t, st.Queues, 3)
	assert.Equal(t, 2, st.Queues[0].Counts[transfer.Pending])
}

func TestDownload_DefaultsToConfiguredDir(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())

	id := c.Download("", "", &docsdk.Document{ID: "d1", Name: "a.pdf"}, &docsdk.Document{ID: "d2", Name: "a.pdf"})
	it, ok := c.Downloads.Get(id)
	require.True(t, ok)
	assert.Equal(t, c.Config().DownloadDir, it.Payload.DestDir)
	assert.True(t, it.Payload.IsBundle())
	assert.Equal(t, transfer.DefaultBundleName, it.Payload.ArchiveName)
}
