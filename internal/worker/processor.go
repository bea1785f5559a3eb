package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
)

const DefaultPollInterval = 2 * time.Second

// ErrJobFailed is returned when the server reports a split job as failed.
var ErrJobFailed = errors.New("split job failed")

// PDFAPI is the part of the API client used for PDF processing.
type PDFAPI interface {
	Info(ctx context.Context, documentID string) (*docsdk.PDFInfo, error)
	Split(ctx context.Context, documentID string, params *docsdk.SplitRequest) (*docsdk.SplitJob, error)
	Job(ctx context.Context, jobID string) (*docsdk.SplitJob, error)
}

// Processor submits split jobs and follows them until the server reports an outcome.
type Processor struct {
	queue *transfer.ProcessingQueue
	api   PDFAPI
	// PollInterval between job status requests
	PollInterval time.Duration
	OnComplete   func(ctx context.Context, result transfer.ProcessingResult)
}

func NewProcessor(queue *transfer.ProcessingQueue, api PDFAPI) *Processor {
	return &Processor{queue: queue, api: api, PollInterval: DefaultPollInterval}
}

// Handle runs item id. It is a Handler.
func (p *Processor) Handle(ctx context.Context, id string) {
	itemCtx, item, done, ok := begin(ctx, p.queue, id, transfer.PhaseProcessing)
	if !ok {
		return
	}
	defer done()

	result, err := p.run(itemCtx, id, item.Payload)
	if err != nil {
		slog.Warn("split failed", "name", item.Payload.Name, "mode", item.Payload.Mode, "error", err)
		if errors.Is(err, ErrJobFailed) {
			// a failed job is not followed again on retry
			_ = p.queue.UpdateProgress(id, 0, func(pl *transfer.ProcessingPayload) { pl.JobID = "" })
		}
		fail(ctx, itemCtx, p.queue, id, err)
		return
	}

	if err := p.queue.Complete(id, result); err != nil {
		slog.Debug("split complete", "id", id, "error", err)
		return
	}
	slog.Info("split", "name", item.Payload.Name, "job", result.JobID, "outputs", result.OutputCount)

	if p.OnComplete != nil {
		p.OnComplete(ctx, result)
	}
}

func (p *Processor) run(ctx context.Context, id string, pl transfer.ProcessingPayload) (transfer.ProcessingResult, error) {
	jobID := pl.JobID

	// a retried item keeps following the job it already submitted
	if jobID == "" {
		info, err := p.api.Info(ctx, pl.DocumentID)
		if err != nil {
			return transfer.ProcessingResult{}, err
		}

		params := SplitRequest(pl)
		if err := params.Validate(info.PageCount); err != nil {
			return transfer.ProcessingResult{}, err
		}

		job, err := p.api.Split(ctx, pl.DocumentID, params)
		if err != nil {
			return transfer.ProcessingResult{}, err
		}
		jobID = job.ID

		_ = p.queue.UpdateProgress(id, 0, func(payload *transfer.ProcessingPayload) {
			payload.JobID = jobID
		})
		slog.Debug("split submitted", "document", pl.DocumentID, "job", jobID, "pages", info.PageCount)

		if job.Done() {
			return jobResult(job)
		}
	}

	return p.poll(ctx, id, jobID)
}

func (p *Processor) poll(ctx context.Context, id, jobID string) (transfer.ProcessingResult, error) {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := p.api.Job(ctx, jobID)
		if err != nil {
			return transfer.ProcessingResult{}, err
		}
		if job.Done() {
			return jobResult(job)
		}
		_ = p.queue.UpdateProgress(id, job.Progress, nil)

		select {
		case <-ctx.Done():
			return transfer.ProcessingResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func jobResult(job *docsdk.SplitJob) (transfer.ProcessingResult, error) {
	if job.Status == docsdk.JobFailed {
		msg := job.Error
		if msg == "" {
			msg = "job failed"
		}
		return transfer.ProcessingResult{}, fmt.Errorf("%w: %s: %s", ErrJobFailed, job.ID, msg)
	}

	manifest := make([]transfer.ManifestEntry, 0, len(job.Outputs))
	for _, out := range job.Outputs {
		manifest = append(manifest, transfer.ManifestEntry{
			DocumentID: out.DocumentID,
			Name:       out.Name,
			Size:       out.Size,
			PageCount:  out.PageCount,
		})
	}
	return transfer.NewProcessingResult(job.ID, manifest), nil
}

// SplitRequest converts a queued payload into the API request.
func SplitRequest(pl transfer.ProcessingPayload) *docsdk.SplitRequest {
	req := &docsdk.SplitRequest{
		Mode:      docsdk.SplitMode(pl.Mode),
		ChunkSize: pl.ChunkSize,
		Pages:     pl.Pages,
		FolderID:  pl.FolderID,
	}
	for _, r := range pl.Ranges {
		req.Ranges = append(req.Ranges, docsdk.PageRange{From: r.From, To: r.To})
	}
	return req
}
