package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/openmined/docbox/internal/utils"
)

// share of a bundle's progress spent downloading; the rest is zipping
const downloadShare = 90

// DownloadAPI is the part of the API client used for downloads.
type DownloadAPI interface {
	Download(ctx context.Context, id string, w io.Writer, callback docsdk.ProgressCallback) (int64, error)
}

// Downloader fetches queued documents. Bundles are fetched into a scratch directory and
// then packed into one zip archive.
type Downloader struct {
	queue *transfer.DownloadQueue
	api   DownloadAPI
}

func NewDownloader(queue *transfer.DownloadQueue, api DownloadAPI) *Downloader {
	return &Downloader{queue: queue, api: api}
}

// Handle downloads item id. It is a Handler.
func (d *Downloader) Handle(ctx context.Context, id string) {
	itemCtx, item, done, ok := begin(ctx, d.queue, id, transfer.PhaseDownloading)
	if !ok {
		return
	}
	defer done()

	var result transfer.DownloadResult
	var err error
	if item.Payload.IsBundle() {
		result, err = d.bundle(itemCtx, id, item.Payload)
	} else {
		result, err = d.single(itemCtx, id, item.Payload)
	}
	if err != nil {
		slog.Warn("download failed", "name", item.Payload.DisplayName(), "error", err)
		fail(ctx, itemCtx, d.queue, id, err)
		return
	}

	if err := d.queue.Complete(id, result); err != nil {
		slog.Debug("download complete", "id", id, "error", err)
		return
	}
	slog.Info("downloaded", "path", result.Path, "bytes", result.Bytes)
}

func (d *Downloader) single(ctx context.Context, id string, p transfer.DownloadPayload) (transfer.DownloadResult, error) {
	if len(p.Targets) != 1 {
		return transfer.DownloadResult{}, errors.New("download: no target")
	}
	target := p.Targets[0]

	if err := utils.EnsureDir(p.DestDir); err != nil {
		return transfer.DownloadResult{}, fmt.Errorf("download: %w", err)
	}
	dest := utils.AvailablePath(p.DestDir, target.Name)

	_ = d.queue.UpdateProgress(id, 0, func(pl *transfer.DownloadPayload) {
		pl.CurrentFileIndex = 0
		pl.CurrentFile = target.Name
	})

	n, err := d.fetch(ctx, target, dest, func(done, total int64) {
		if total <= 0 {
			total = target.Size
		}
		_ = d.queue.UpdateProgress(id, percent(done, total), nil)
	})
	if err != nil {
		return transfer.DownloadResult{}, err
	}
	return transfer.DownloadResult{Path: dest, Bytes: n}, nil
}

func (d *Downloader) bundle(ctx context.Context, id string, p transfer.DownloadPayload) (transfer.DownloadResult, error) {
	scratch, err := os.MkdirTemp("", "docbox-bundle-*")
	if err != nil {
		return transfer.DownloadResult{}, fmt.Errorf("download: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	names := make([]string, len(p.Targets))
	for i, t := range p.Targets {
		names[i] = t.Name
	}
	entries := transfer.BundleNames(names)

	total := p.TotalSize()
	var fetched int64
	files := make([]string, len(p.Targets))

	for i, target := range p.Targets {
		_ = d.queue.UpdateProgress(id, 0, func(pl *transfer.DownloadPayload) {
			pl.CurrentFileIndex = i
			pl.CurrentFile = target.Name
		})

		files[i] = filepath.Join(scratch, fmt.Sprintf("%04d", i))
		base := fetched
		n, err := d.fetch(ctx, target, files[i], func(done, _ int64) {
			if total > 0 {
				_ = d.queue.UpdateProgress(id, percent(base+done, total)*downloadShare/100, nil)
			}
		})
		if err != nil {
			return transfer.DownloadResult{}, fmt.Errorf("%s: %w", target.Name, err)
		}
		fetched += n

		if total <= 0 {
			_ = d.queue.UpdateProgress(id, (i+1)*downloadShare/len(p.Targets), nil)
		}
	}

	if err := d.queue.SetPhase(id, transfer.PhaseZipping); err != nil {
		return transfer.DownloadResult{}, err
	}

	if err := utils.EnsureDir(p.DestDir); err != nil {
		return transfer.DownloadResult{}, fmt.Errorf("download: %w", err)
	}
	dest := utils.AvailablePath(p.DestDir, p.ArchiveName)
	if err := writeZip(ctx, dest, entries, files); err != nil {
		return transfer.DownloadResult{}, err
	}

	return transfer.DownloadResult{Path: dest, Bytes: fetched, Entries: entries}, nil
}

func (d *Downloader) fetch(ctx context.Context, target transfer.DownloadTarget, dest string, cb func(done, total int64)) (int64, error) {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}

	n, err := d.api.Download(ctx, target.DocumentID, f, cb)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return n, err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("download: %w", err)
	}
	return n, nil
}

// writeZip packs files into an archive at dest under the given entry names.
func writeZip(ctx context.Context, dest string, entries, files []string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(dest)
		}
	}()
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, name := range entries {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := addZipEntry(zw, name, files[i]); err != nil {
			zw.Close()
			return fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	return out.Sync()
}

func addZipEntry(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
