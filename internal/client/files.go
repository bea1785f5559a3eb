package client

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
)

// CollectFiles expands paths into regular files. Directories are walked; a file inside
// one is kept when it matches any include glob (all files when none are given) and no
// exclude glob. Globs match the path relative to the walked directory.
func CollectFiles(paths []string, include, exclude []string) ([]transfer.LocalFile, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	var files []transfer.LocalFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, transfer.LocalFile{Path: p, Size: info.Size()})
			continue
		}

		root := os.DirFS(p)
		err = doublestar.GlobWalk(root, "**", func(rel string, d fs.DirEntry) error {
			if d.IsDir() || !selected(rel, include, exclude) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
			files = append(files, transfer.LocalFile{Path: filepath.Join(p, filepath.FromSlash(rel)), Size: fi.Size()})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return files, nil
}

func selected(rel string, include, exclude []string) bool {
	for _, pat := range exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// Upload enqueues files as one batch into folderID.
func (c *Client) Upload(folderID string, files ...transfer.LocalFile) ([]string, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return transfer.EnqueueUploads(c.Uploads, c.config.UploadPolicy(), folderID, files...), nil
}

// Download enqueues one item for docs. Several documents become one zip bundle.
func (c *Client) Download(destDir, archiveName string, docs ...*docsdk.Document) string {
	if destDir == "" {
		destDir = c.config.DownloadDir
	}
	targets := make([]transfer.DownloadTarget, len(docs))
	for i, d := range docs {
		targets[i] = transfer.DownloadTarget{DocumentID: d.ID, Name: d.Name, Size: d.Size}
	}
	return transfer.EnqueueDownload(c.Downloads, destDir, archiveName, targets...)
}

// Split enqueues a processing job for doc.
func (c *Client) Split(doc *docsdk.Document, p transfer.ProcessingPayload) string {
	p.DocumentID = doc.ID
	p.Name = doc.Name
	return c.Processing.Enqueue(p)[0]
}

// Documents lists every document of folderID.
func (c *Client) Documents(ctx context.Context, folderID string) ([]*docsdk.Document, error) {
	return c.api.Documents.ListAll(ctx, folderID)
}

func (c *Client) Folders(ctx context.Context, parentID string) ([]*docsdk.Folder, error) {
	return c.api.Folders.List(ctx, parentID)
}

func (c *Client) Search(ctx context.Context, query string) (*docsdk.SearchResponse, error) {
	return c.api.Documents.Search(ctx, &docsdk.SearchOptions{Query: query, Sort: docsdk.SortRelevance})
}
