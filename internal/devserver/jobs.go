package devserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/docbox/internal/docsdk"
)

type splitJob struct {
	owner string
	job   docsdk.SplitJob
}

// JobRunner executes split jobs in the background. Each output step waits JobDelay so
// clients get to observe the queued and running states.
type JobRunner struct {
	lib   *Library
	blobs BlobStore
	delay time.Duration

	mu   sync.RWMutex
	jobs map[string]*splitJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJobRunner(lib *Library, blobs BlobStore, delay time.Duration) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		lib:    lib,
		blobs:  blobs,
		delay:  delay,
		jobs:   make(map[string]*splitJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Info reads the document and reports its page count.
func (r *JobRunner) Info(ctx context.Context, owner, documentID string) (*docsdk.PDFInfo, error) {
	doc, data, err := r.load(ctx, owner, documentID)
	if err != nil {
		return nil, err
	}
	meta, err := inspectPDF(data)
	if err != nil {
		return nil, err
	}
	return &docsdk.PDFInfo{
		DocumentID: doc.ID,
		Name:       doc.Name,
		PageCount:  meta.PageCount,
		Size:       doc.Size,
		Title:      meta.Title,
		Encrypted:  meta.Encrypted,
	}, nil
}

func (r *JobRunner) Submit(ctx context.Context, owner, documentID string, req *docsdk.SplitRequest) (*docsdk.SplitJob, error) {
	doc, data, err := r.load(ctx, owner, documentID)
	if err != nil {
		return nil, err
	}
	meta, err := inspectPDF(data)
	if err != nil {
		return nil, err
	}
	if meta.Encrypted {
		return nil, fmt.Errorf("%w: document is encrypted", ErrInvalid)
	}
	if err := req.Validate(meta.PageCount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	folderID := req.FolderID
	if folderID == "" {
		folderID = doc.FolderID
	}

	sj := &splitJob{
		owner: owner,
		job: docsdk.SplitJob{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Mode:       req.Mode,
			Status:     docsdk.JobQueued,
			CreatedAt:  time.Now().UTC(),
		},
	}

	accepted := sj.job

	r.mu.Lock()
	r.jobs[sj.job.ID] = sj
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(accepted.ID, owner, doc.Name, folderID, data, splitPlan(req, meta.PageCount))
	}()

	return &accepted, nil
}

func (r *JobRunner) Job(owner, id string) (*docsdk.SplitJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sj, ok := r.jobs[id]
	if !ok || sj.owner != owner {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	job := sj.job
	job.Outputs = append([]*docsdk.SplitOutput(nil), sj.job.Outputs...)
	return &job, nil
}

// Close stops running jobs and waits for them to return.
func (r *JobRunner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *JobRunner) run(id, owner, source, folderID string, data []byte, groups [][]int) {
	if !r.sleep() {
		return
	}
	r.update(id, func(job *docsdk.SplitJob) { job.Status = docsdk.JobRunning })

	for i, pages := range groups {
		if !r.sleep() {
			return
		}

		out, err := r.writeOutput(owner, source, folderID, data, pages)
		if err != nil {
			slog.Warn("split job failed", "job", id, "error", err)
			r.update(id, func(job *docsdk.SplitJob) {
				job.Status = docsdk.JobFailed
				job.Error = err.Error()
			})
			return
		}

		r.update(id, func(job *docsdk.SplitJob) {
			job.Outputs = append(job.Outputs, out)
			job.Progress = (i + 1) * 100 / len(groups)
		})
	}

	r.update(id, func(job *docsdk.SplitJob) {
		job.Status = docsdk.JobCompleted
		job.Progress = 100
	})
}

// writeOutput stores one output. The dev server does not rewrite PDFs, each output
// carries the source bytes.
func (r *JobRunner) writeOutput(owner, source, folderID string, data []byte, pages []int) (*docsdk.SplitOutput, error) {
	key := "outputs/" + uuid.NewString()
	if err := r.blobs.Put(r.ctx, key, data); err != nil {
		return nil, err
	}

	doc, err := r.lib.AddDocument(owner, &NewDocument{
		Name:        splitOutputName(source, pages),
		FolderID:    folderID,
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		PageCount:   len(pages),
		BlobKey:     key,
	})
	if err != nil {
		_ = r.blobs.Delete(r.ctx, key)
		return nil, err
	}

	return &docsdk.SplitOutput{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Size:       doc.Size,
		PageCount:  doc.PageCount,
	}, nil
}

func (r *JobRunner) update(id string, fn func(job *docsdk.SplitJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sj, ok := r.jobs[id]; ok {
		fn(&sj.job)
	}
}

func (r *JobRunner) sleep() bool {
	if r.delay <= 0 {
		return r.ctx.Err() == nil
	}
	select {
	case <-r.ctx.Done():
		return false
	case <-time.After(r.delay):
		return true
	}
}

func (r *JobRunner) load(ctx context.Context, owner, documentID string) (*docsdk.Document, []byte, error) {
	doc, key, err := r.lib.Content(owner, documentID)
	if err != nil {
		return nil, nil, err
	}
	body, _, err := r.blobs.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}
