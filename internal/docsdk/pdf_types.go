package docsdk

import (
	"errors"
	"fmt"
	"time"
)

// SplitMode selects how a PDF is split.
type SplitMode string

const (
	SplitAll    SplitMode = "all"    // one output per page
	SplitChunks SplitMode = "chunks" // fixed size chunks of ChunkSize pages
	SplitRanges SplitMode = "ranges" // one output per explicit range
	SplitPages  SplitMode = "pages"  // one output per listed page
)

type PDFInfo struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	PageCount  int    `json:"pageCount"`
	Size       int64  `json:"size"`
	Title      string `json:"title,omitempty"`
	Encrypted  bool   `json:"encrypted"`
}

// PageRange is an inclusive, 1-based page range.
type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r PageRange) String() string {
	if r.From == r.To {
		return fmt.Sprintf("%d", r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

type SplitRequest struct {
	Mode      SplitMode   `json:"mode"`
	ChunkSize int         `json:"chunkSize,omitempty"`
	Ranges    []PageRange `json:"ranges,omitempty"`
	Pages     []int       `json:"pages,omitempty"`
	FolderID  string      `json:"folderId,omitempty"`
}

// Validate checks the request against the mode. pageCount bounds page numbers when positive.
func (s *SplitRequest) Validate(pageCount int) error {
	inBounds := func(p int) bool {
		return p >= 1 && (pageCount <= 0 || p <= pageCount)
	}

	switch s.Mode {
	case SplitAll:
		return nil
	case SplitChunks:
		if s.ChunkSize < 1 {
			return fmt.Errorf("%w: chunk size must be at least 1", ErrInvalidSplit)
		}
	case SplitRanges:
		if len(s.Ranges) == 0 {
			return fmt.Errorf("%w: no ranges", ErrInvalidSplit)
		}
		for _, r := range s.Ranges {
			if !inBounds(r.From) || !inBounds(r.To) || r.From > r.To {
				return fmt.Errorf("%w: range %s out of bounds", ErrInvalidSplit, r)
			}
		}
	case SplitPages:
		if len(s.Pages) == 0 {
			return fmt.Errorf("%w: no pages", ErrInvalidSplit)
		}
		for _, p := range s.Pages {
			if !inBounds(p) {
				return fmt.Errorf("%w: page %d out of bounds", ErrInvalidSplit, p)
			}
		}
	default:
		return errors.Join(ErrInvalidSplit, fmt.Errorf("unknown mode %q", s.Mode))
	}
	return nil
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SplitOutput is one document produced by a split job.
type SplitOutput struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	PageCount  int    `json:"pageCount"`
}

type SplitJob struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"documentId"`
	Mode       SplitMode      `json:"mode"`
	Status     JobStatus      `json:"status"`
	Progress   int            `json:"progress"`
	Error      string         `json:"error,omitempty"`
	Outputs    []*SplitOutput `json:"outputs,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Done reports whether the job reached a terminal status.
func (j *SplitJob) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
