package transfer

import (
	"fmt"
	"slices"
)

// Mode is a PDF split mode.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeChunks Mode = "chunks"
	ModeRanges Mode = "ranges"
	ModePages  Mode = "pages"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAll, ModeChunks, ModeRanges, ModePages:
		return m, nil
	}
	return "", fmt.Errorf("transfer: unknown split mode %q", s)
}

// PageRange is an inclusive, 1-based range.
type PageRange struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

type ProcessingPayload struct {
	DocumentID string      `json:"document_id" yaml:"document_id"`
	Name       string      `json:"name" yaml:"name"`
	Mode       Mode        `json:"mode" yaml:"mode"`
	ChunkSize  int         `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	Ranges     []PageRange `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Pages      []int       `json:"pages,omitempty" yaml:"pages,omitempty"`
	FolderID   string      `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	// JobID is set once the remote job was submitted, so a retry can tell resubmission apart.
	JobID string `json:"job_id,omitempty" yaml:"job_id,omitempty"`
}

func (p ProcessingPayload) Clone() ProcessingPayload {
	p.Ranges = slices.Clone(p.Ranges)
	p.Pages = slices.Clone(p.Pages)
	return p
}

// ManifestEntry describes one produced document.
type ManifestEntry struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	Name       string `json:"name" yaml:"name"`
	Size       int64  `json:"size" yaml:"size"`
	PageCount  int    `json:"page_count" yaml:"page_count"`
}

// ProcessingResult is stored by Complete and never mutated afterwards; snapshots carry
// their own copy of the manifest.
type ProcessingResult struct {
	JobID       string          `json:"job_id" yaml:"job_id"`
	OutputCount int             `json:"output_count" yaml:"output_count"`
	Manifest    []ManifestEntry `json:"manifest" yaml:"manifest"`
}

func (r ProcessingResult) Clone() ProcessingResult {
	r.Manifest = slices.Clone(r.Manifest)
	return r
}

// NewProcessingResult builds a result whose OutputCount matches the manifest.
func NewProcessingResult(jobID string, manifest []ManifestEntry) ProcessingResult {
	return ProcessingResult{
		JobID:       jobID,
		OutputCount: len(manifest),
		Manifest:    slices.Clone(manifest),
	}
}

type ProcessingQueue = Queue[ProcessingPayload, ProcessingResult]

func NewProcessingQueue() *ProcessingQueue {
	return NewQueue[ProcessingPayload, ProcessingResult]("processing", PhaseProcessing)
}
