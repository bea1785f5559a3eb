package devserver

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T, limit int64) (*Library, *MemoryBlobs) {
	t.Helper()
	blobs := NewMemoryBlobs("http://127.0.0.1:8080", "k", time.Minute)
	return NewLibrary(blobs, limit), blobs
}

func addDoc(t *testing.T, lib *Library, blobs *MemoryBlobs, owner, folderID, name string, data []byte) *docsdk.Document {
	t.Helper()
	key := "documents/" + name + folderID
	require.NoError(t, blobs.Put(context.Background(), key, data))
	doc, err := lib.AddDocument(owner, &NewDocument{Name: name, FolderID: folderID, Size: int64(len(data)), BlobKey: key})
	require.NoError(t, err)
	return doc
}

func TestLibrary_FolderMoveRejectsCycles(t *testing.T) {
	lib, _ := newTestLibrary(t, 0)

	a, err := lib.CreateFolder("u1", "a", "")
	require.NoError(t, err)
	b, err := lib.CreateFolder("u1", "b", a.ID)
	require.NoError(t, err)

	_, err = lib.MoveFolder("u1", a.ID, b.ID)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = lib.MoveFolder("u1", a.ID, a.ID)
	assert.ErrorIs(t, err, ErrInvalid)

	moved, err := lib.MoveFolder("u1", b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "/b", moved.Path)
}

func TestLibrary_RenameConflict(t *testing.T) {
	lib, blobs := newTestLibrary(t, 0)
	addDoc(t, lib, blobs, "u1", "", "a.txt", []byte("a"))
	b := addDoc(t, lib, blobs, "u1", "", "b.txt", []byte("b"))

	name := "a.txt"
	_, err := lib.UpdateDocument("u1", b.ID, &docsdk.UpdateRequest{Name: &name})
	assert.ErrorIs(t, err, ErrConflict)

	bad := "x/y"
	_, err = lib.UpdateDocument("u1", b.ID, &docsdk.UpdateRequest{Name: &bad})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLibrary_CopyFolderSharesBlobs(t *testing.T) {
	lib, blobs := newTestLibrary(t, 0)
	ctx := context.Background()

	src, err := lib.CreateFolder("u1", "src", "")
	require.NoError(t, err)
	sub, err := lib.CreateFolder("u1", "sub", src.ID)
	require.NoError(t, err)
	doc := addDoc(t, lib, blobs, "u1", sub.ID, "a.txt", []byte("abc"))

	dup, err := lib.CopyFolder("u1", src.ID, &docsdk.CopyRequest{})
	require.NoError(t, err)
	assert.Equal(t, "src (1)", dup.Name)
	assert.Equal(t, int64(6), lib.Usage("u1"))

	subs, err := lib.ListFolders("u1", dup.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	copied, err := lib.ListDocuments("u1", subs[0].ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, copied.Items, 1)

	// purging the original keeps the blob alive for the copy
	require.NoError(t, lib.DeleteDocument(ctx, "u1", doc.ID, true))
	_, key, err := lib.Content("u1", copied.Items[0].ID)
	require.NoError(t, err)
	_, err = blobs.Size(ctx, key)
	assert.NoError(t, err)

	require.NoError(t, lib.DeleteDocument(ctx, "u1", copied.Items[0].ID, true))
	_, err = blobs.Size(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), lib.Usage("u1"))
}

func TestLibrary_RestoreIntoRootWhenParentGone(t *testing.T) {
	lib, blobs := newTestLibrary(t, 0)
	ctx := context.Background()

	f, err := lib.CreateFolder("u1", "f", "")
	require.NoError(t, err)
	doc := addDoc(t, lib, blobs, "u1", f.ID, "a.txt", []byte("a"))
	addDoc(t, lib, blobs, "u1", "", "a.txt", []byte("b"))

	require.NoError(t, lib.DeleteDocument(ctx, "u1", doc.ID, false))
	require.NoError(t, lib.DeleteFolder("u1", f.ID, false))
	require.NoError(t, lib.DeleteFolder("u1", f.ID, true), "trashed documents do not block purging")

	restored, err := lib.RestoreDocument("u1", doc.ID)
	require.NoError(t, err)
	assert.Empty(t, restored.FolderID)
	assert.Equal(t, "a (1).txt", restored.Name)
}

func TestLibrary_QuotaCountsTrash(t *testing.T) {
	lib, blobs := newTestLibrary(t, 4)
	ctx := context.Background()

	doc := addDoc(t, lib, blobs, "u1", "", "a.txt", []byte("abc"))
	require.NoError(t, lib.DeleteDocument(ctx, "u1", doc.ID, false))

	_, err := lib.AddDocument("u1", &NewDocument{Name: "b.txt", Size: 2, BlobKey: "k"})
	assert.ErrorIs(t, err, ErrQuota)

	_, err = lib.AddDocument("u2", &NewDocument{Name: "b.txt", Size: 2, BlobKey: "k"})
	assert.NoError(t, err, "quota is per account")
}

func TestLibrary_SearchRelevance(t *testing.T) {
	lib, blobs := newTestLibrary(t, 0)
	addDoc(t, lib, blobs, "u1", "", "annual report final.pdf", []byte("a"))
	addDoc(t, lib, blobs, "u1", "", "report.pdf", []byte("b"))
	addDoc(t, lib, blobs, "u1", "", "invoice.pdf", []byte("c"))

	res, err := lib.Search("u1", "REPORT", docsdk.SortRelevance, "", 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "report.pdf", res.Matches[0].Document.Name)
	assert.Greater(t, res.Matches[0].Score, res.Matches[1].Score)

	res, err = lib.Search("u1", "report annual", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	_, err = lib.Search("u1", "  ", "", "", 0)
	assert.ErrorIs(t, err, ErrInvalid)
}
