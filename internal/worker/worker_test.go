package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runUntilIdle[P, R any](t *testing.T, q *transfer.Queue[P, R], h Handler, concurrency int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, NewDispatcher(q, h, concurrency).Run(ctx, true))
}

func TestUploader_CompletesBatch(t *testing.T) {
	q := transfer.NewUploadQueue()
	api := &fakeUploads{}
	up := NewUploader(q, api)

	var mu sync.Mutex
	var total int64
	up.OnComplete = func(_ context.Context, r transfer.UploadResult) {
		mu.Lock()
		total += r.Size
		mu.Unlock()
	}

	ids := transfer.EnqueueUploads(q, transfer.UploadPolicy{}, "f1",
		transfer.LocalFile{Path: "/tmp/a.pdf", Size: 10},
		transfer.LocalFile{Path: "/tmp/b.pdf", Size: 10},
	)
	runUntilIdle(t, q, up.Handle, 2)

	for _, id := range ids {
		it, ok := q.Get(id)
		require.True(t, ok)
		assert.Equal(t, transfer.Completed, it.Status)
		assert.Equal(t, 100, it.Progress)
		assert.Equal(t, "doc-"+it.Payload.Name, it.Result.DocumentID)
	}
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, api.presigned, "a batch of two goes presigned")
	assert.Empty(t, api.direct)
	assert.Equal(t, int64(20), total)
	assert.False(t, q.IsActive())
}

func TestUploader_SmallSingleFileGoesDirect(t *testing.T) {
	q := transfer.NewUploadQueue()
	api := &fakeUploads{}
	transfer.EnqueueUploads(q, transfer.UploadPolicy{}, "", transfer.LocalFile{Path: "/tmp/small.pdf", Size: 1024})

	runUntilIdle(t, q, NewUploader(q, api).Handle, 1)

	assert.Equal(t, []string{"small.pdf"}, api.direct)
	assert.Empty(t, api.presigned)
}

func TestUploader_FailureIsRecorded(t *testing.T) {
	q := transfer.NewUploadQueue()
	api := &fakeUploads{fail: map[string]error{"bad.pdf": errBoom}}
	ids := transfer.EnqueueUploads(q, transfer.UploadPolicy{}, "",
		transfer.LocalFile{Path: "/tmp/ok.pdf", Size: 1},
		transfer.LocalFile{Path: "/tmp/bad.pdf", Size: 1},
	)

	runUntilIdle(t, q, NewUploader(q, api).Handle, 4)

	ok, _ := q.Get(ids[0])
	bad, _ := q.Get(ids[1])
	assert.Equal(t, transfer.Completed, ok.Status)
	assert.Equal(t, transfer.Error, bad.Status)
	assert.Contains(t, bad.Error, "boom")

	require.NoError(t, q.Retry(ids[1]))
	api.mu.Lock()
	api.fail = nil
	api.mu.Unlock()
	runUntilIdle(t, q, NewUploader(q, api).Handle, 4)

	bad, _ = q.Get(ids[1])
	assert.Equal(t, transfer.Completed, bad.Status)
	assert.Equal(t, ids[1], bad.ID)
}

func TestUploader_CancelStopsWithoutError(t *testing.T) {
	q := transfer.NewUploadQueue()
	api := &fakeUploads{block: true}
	ids := transfer.EnqueueUploads(q, transfer.UploadPolicy{}, "", transfer.LocalFile{Path: "/tmp/slow.pdf", Size: 1})

	done := make(chan error, 1)
	go func() {
		done <- NewDispatcher(q, NewUploader(q, api).Handle, 1).Run(context.Background(), true)
	}()

	require.Eventually(t, func() bool {
		it, _ := q.Get(ids[0])
		return it.Status == transfer.Active && api.running.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Cancel(ids[0]))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	it, _ := q.Get(ids[0])
	assert.Equal(t, transfer.Cancelled, it.Status)
	assert.Empty(t, it.Error)
}

func TestDispatcher_RespectsConcurrency(t *testing.T) {
	q := transfer.NewUploadQueue()
	api := &fakeUploads{}
	files := make([]transfer.LocalFile, 12)
	for i := range files {
		files[i] = transfer.LocalFile{Path: filepath.Join("/tmp", string(rune('a'+i))+".pdf"), Size: 1}
	}
	transfer.EnqueueUploads(q, transfer.UploadPolicy{}, "", files...)

	runUntilIdle(t, q, NewUploader(q, api).Handle, 3)

	assert.LessOrEqual(t, api.maxRunning.Load(), int32(3))
	assert.Equal(t, 12, q.Summary().Counts[transfer.Completed])
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	q := transfer.NewUploadQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDispatcher(q, func(context.Context, string) {}, 1).Run(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloader_SingleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("old"), 0o644))

	q := transfer.NewDownloadQueue()
	api := &fakeDownloads{content: map[string][]byte{"d1": []byte("new content")}}
	id := transfer.EnqueueDownload(q, dir, "", transfer.DownloadTarget{DocumentID: "d1", Name: "report.pdf", Size: 11})

	runUntilIdle(t, q, NewDownloader(q, api).Handle, 1)

	it, _ := q.Get(id)
	require.Equal(t, transfer.Completed, it.Status, it.Error)
	assert.Equal(t, filepath.Join(dir, "report (1).pdf"), it.Result.Path)
	assert.Equal(t, int64(11), it.Result.Bytes)

	data, err := os.ReadFile(it.Result.Path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	old, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestDownloader_BundleZipsWithUniqueNames(t *testing.T) {
	dir := t.TempDir()
	q := transfer.NewDownloadQueue()
	api := &fakeDownloads{content: map[string][]byte{
		"d1": []byte("one"),
		"d2": []byte("two"),
		"d3": []byte("three"),
	}}
	id := transfer.EnqueueDownload(q, dir, "",
		transfer.DownloadTarget{DocumentID: "d1", Name: "report.pdf", Size: 3},
		transfer.DownloadTarget{DocumentID: "d2", Name: "report.pdf", Size: 3},
		transfer.DownloadTarget{DocumentID: "d3", Name: "notes.pdf", Size: 5},
	)

	events := q.Subscribe()
	var phases []transfer.Phase
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			phases = append(phases, ev.Item.Phase)
		}
	}()

	runUntilIdle(t, q, NewDownloader(q, api).Handle, 1)
	q.Unsubscribe(events)
	wg.Wait()

	it, _ := q.Get(id)
	require.Equal(t, transfer.Completed, it.Status, it.Error)
	assert.Equal(t, filepath.Join(dir, transfer.DefaultBundleName), it.Result.Path)
	assert.Equal(t, []string{"report.pdf", "report (1).pdf", "notes.pdf"}, it.Result.Entries)
	assert.Equal(t, int64(11), it.Result.Bytes)
	assert.Contains(t, phases, transfer.PhaseZipping)
	assert.Equal(t, 2, it.Payload.CurrentFileIndex)

	zr, err := zip.OpenReader(it.Result.Path)
	require.NoError(t, err)
	defer zr.Close()

	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		got[f.Name] = string(b)
	}
	assert.Equal(t, map[string]string{"report.pdf": "one", "report (1).pdf": "two", "notes.pdf": "three"}, got)
}

func TestDownloader_FailureLeavesNoArchive(t *testing.T) {
	dir := t.TempDir()
	q := transfer.NewDownloadQueue()
	api := &fakeDownloads{content: map[string][]byte{"d1": []byte("one")}}
	id := transfer.EnqueueDownload(q, dir, "out.zip",
		transfer.DownloadTarget{DocumentID: "d1", Name: "a.pdf"},
		transfer.DownloadTarget{DocumentID: "missing", Name: "b.pdf"},
	)

	runUntilIdle(t, q, NewDownloader(q, api).Handle, 1)

	it, _ := q.Get(id)
	assert.Equal(t, transfer.Error, it.Status)
	assert.Contains(t, it.Error, "b.pdf")
	assert.NoFileExists(t, filepath.Join(dir, "out.zip"))
}

func splitQueue(mode transfer.Mode) (*transfer.ProcessingQueue, string) {
	q := transfer.NewProcessingQueue()
	ids := q.Enqueue(transfer.ProcessingPayload{DocumentID: "doc1", Name: "big.pdf", Mode: mode, ChunkSize: 2})
	return q, ids[0]
}

func TestProcessor_PollsUntilCompleted(t *testing.T) {
	q, id := splitQueue(transfer.ModeChunks)
	api := &fakePDF{pageCount: 4, jobs: []*docsdk.SplitJob{
		{Status: docsdk.JobRunning, Progress: 40},
		{Status: docsdk.JobCompleted, Outputs: []*docsdk.SplitOutput{
			{DocumentID: "o1", Name: "big_1-2.pdf", PageCount: 2, Size: 5},
			{DocumentID: "o2", Name: "big_3-4.pdf", PageCount: 2, Size: 6},
		}},
	}}
	p := NewProcessor(q, api)
	p.PollInterval = time.Millisecond

	runUntilIdle(t, q, p.Handle, 1)

	it, _ := q.Get(id)
	require.Equal(t, transfer.Completed, it.Status, it.Error)
	assert.Equal(t, "job-1", it.Result.JobID)
	assert.Equal(t, 2, it.Result.OutputCount)
	assert.Equal(t, "o2", it.Result.Manifest[1].DocumentID)
	assert.Equal(t, "job-1", it.Payload.JobID)
	assert.Equal(t, docsdk.SplitChunks, api.lastReq.Mode)
	assert.Equal(t, 2, api.lastReq.ChunkSize)
}

func TestProcessor_InvalidRequestNeverSubmits(t *testing.T) {
	q := transfer.NewProcessingQueue()
	id := q.Enqueue(transfer.ProcessingPayload{DocumentID: "doc1", Mode: transfer.ModePages, Pages: []int{1, 9}})[0]
	api := &fakePDF{pageCount: 3}

	runUntilIdle(t, q, NewProcessor(q, api).Handle, 1)

	it, _ := q.Get(id)
	assert.Equal(t, transfer.Error, it.Status)
	assert.Contains(t, it.Error, "page 9")
	assert.Zero(t, api.splits)
}

func TestProcessor_RetryFollowsSubmittedJob(t *testing.T) {
	q, id := splitQueue(transfer.ModeAll)
	api := &fakePDF{
		pageCount: 1,
		jobErrs:   []error{errBoom},
		jobs:      []*docsdk.SplitJob{nil, {Status: docsdk.JobCompleted, Outputs: []*docsdk.SplitOutput{{DocumentID: "o1"}}}},
	}
	p := NewProcessor(q, api)
	p.PollInterval = time.Millisecond

	runUntilIdle(t, q, p.Handle, 1)
	it, _ := q.Get(id)
	require.Equal(t, transfer.Error, it.Status)
	assert.Equal(t, "job-1", it.Payload.JobID)

	require.NoError(t, q.Retry(id))
	runUntilIdle(t, q, p.Handle, 1)

	it, _ = q.Get(id)
	require.Equal(t, transfer.Completed, it.Status, it.Error)
	assert.Equal(t, 1, api.splits)
	assert.Equal(t, "job-1", it.Result.JobID)
}

func TestProcessor_FailedJobIsResubmittedOnRetry(t *testing.T) {
	q, id := splitQueue(transfer.ModeAll)
	api := &fakePDF{pageCount: 1, jobs: []*docsdk.SplitJob{{Status: docsdk.JobFailed, Error: "corrupt pdf"}}}
	p := NewProcessor(q, api)
	p.PollInterval = time.Millisecond

	runUntilIdle(t, q, p.Handle, 1)
	it, _ := q.Get(id)
	require.Equal(t, transfer.Error, it.Status)
	assert.Contains(t, it.Error, "corrupt pdf")
	assert.Empty(t, it.Payload.JobID)

	require.NoError(t, q.Retry(id))
	runUntilIdle(t, q, p.Handle, 1)
	assert.Equal(t, 2, api.splits)
}
