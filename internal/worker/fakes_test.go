package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/openmined/docbox/internal/docsdk"
)

var errBoom = errors.New("boom")

type fakeUploads struct {
	mu        sync.Mutex
	direct    []string
	presigned []string
	fail      map[string]error
	block     bool

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *fakeUploads) upload(ctx context.Context, params *docsdk.UploadParams, presigned bool) (*docsdk.Document, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		cur := f.maxRunning.Load()
		if n <= cur || f.maxRunning.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	if presigned {
		f.presigned = append(f.presigned, params.Name)
	} else {
		f.direct = append(f.direct, params.Name)
	}
	err := f.fail[params.Name]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if params.Callback != nil {
		params.Callback(50, 100)
		params.Callback(100, 100)
	}
	return &docsdk.Document{ID: "doc-" + params.Name, Name: params.Name, Size: 10}, nil
}

func (f *fakeUploads) Direct(ctx context.Context, params *docsdk.UploadParams) (*docsdk.Document, error) {
	return f.upload(ctx, params, false)
}

func (f *fakeUploads) Presigned(ctx context.Context, params *docsdk.UploadParams) (*docsdk.Document, error) {
	return f.upload(ctx, params, true)
}

type fakeDownloads struct {
	content map[string][]byte
}

func (f *fakeDownloads) Download(ctx context.Context, id string, w io.Writer, cb docsdk.ProgressCallback) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, ok := f.content[id]
	if !ok {
		return 0, fmt.Errorf("download %s: %w", id, errBoom)
	}
	n, err := w.Write(data)
	if cb != nil {
		cb(int64(n), int64(len(data)))
	}
	return int64(n), err
}

type fakePDF struct {
	mu        sync.Mutex
	pageCount int
	infoErr   error
	splits    int
	polls     int
	// jobs is consumed one entry per Job call; the last entry repeats
	jobs    []*docsdk.SplitJob
	jobErrs []error
	lastReq *docsdk.SplitRequest
}

func (f *fakePDF) Info(_ context.Context, id string) (*docsdk.PDFInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &docsdk.PDFInfo{DocumentID: id, PageCount: f.pageCount}, nil
}

func (f *fakePDF) Split(_ context.Context, id string, params *docsdk.SplitRequest) (*docsdk.SplitJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits++
	f.lastReq = params
	return &docsdk.SplitJob{ID: fmt.Sprintf("job-%d", f.splits), DocumentID: id, Mode: params.Mode, Status: docsdk.JobQueued}, nil
}

func (f *fakePDF) Job(_ context.Context, jobID string) (*docsdk.SplitJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.jobErrs) && f.jobErrs[i] != nil {
		return nil, f.jobErrs[i]
	}
	job := *f.jobs[min(i, len(f.jobs)-1)]
	job.ID = jobID
	return &job, nil
}
