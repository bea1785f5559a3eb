package transfer

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/docbox/internal/utils"
)

// DefaultBundleName is used for multi-file downloads without an explicit archive name.
const DefaultBundleName = "documents.zip"

// DownloadTarget is one remote document to fetch.
type DownloadTarget struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	Name       string `json:"name" yaml:"name"`
	Size       int64  `json:"size" yaml:"size"`
}

// DownloadPayload is either a single document or a bundle of several that ends up in one
// zip archive. The Current* fields are advanced by the worker as it streams the set.
type DownloadPayload struct {
	Targets          []DownloadTarget `json:"targets" yaml:"targets"`
	DestDir          string           `json:"dest_dir" yaml:"dest_dir"`
	ArchiveName      string           `json:"archive_name,omitempty" yaml:"archive_name,omitempty"`
	FileCount        int              `json:"file_count" yaml:"file_count"`
	CurrentFileIndex int              `json:"current_file_index" yaml:"current_file_index"`
	CurrentFile      string           `json:"current_file,omitempty" yaml:"current_file,omitempty"`
}

func (p DownloadPayload) Clone() DownloadPayload {
	p.Targets = slices.Clone(p.Targets)
	return p
}

func (p DownloadPayload) IsBundle() bool {
	return len(p.Targets) > 1
}

// TotalSize is the expected byte count, 0 when unknown.
func (p DownloadPayload) TotalSize() int64 {
	var total int64
	for _, t := range p.Targets {
		total += t.Size
	}
	return total
}

// DisplayName is the archive name for bundles and the document name otherwise.
func (p DownloadPayload) DisplayName() string {
	if p.IsBundle() {
		return p.ArchiveName
	}
	if len(p.Targets) == 1 {
		return p.Targets[0].Name
	}
	return ""
}

type DownloadResult struct {
	Path    string   `json:"path" yaml:"path"`
	Bytes   int64    `json:"bytes" yaml:"bytes"`
	Entries []string `json:"entries,omitempty" yaml:"entries,omitempty"`
}

func (r DownloadResult) Clone() DownloadResult {
	r.Entries = slices.Clone(r.Entries)
	return r
}

type DownloadQueue = Queue[DownloadPayload, DownloadResult]

func NewDownloadQueue() *DownloadQueue {
	return NewQueue[DownloadPayload, DownloadResult]("downloads", PhaseDownloading)
}

// NewDownloadPayload groups targets requested together into one item.
func NewDownloadPayload(destDir, archiveName string, targets ...DownloadTarget) DownloadPayload {
	p := DownloadPayload{
		Targets:   slices.Clone(targets),
		DestDir:   destDir,
		FileCount: len(targets),
	}
	if p.IsBundle() {
		p.ArchiveName = archiveName
		if p.ArchiveName == "" {
			p.ArchiveName = DefaultBundleName
		}
	}
	return p
}

// EnqueueDownload adds one item for the whole request and returns its id.
func EnqueueDownload(q *DownloadQueue, destDir, archiveName string, targets ...DownloadTarget) string {
	if len(targets) == 0 {
		return ""
	}
	return q.Enqueue(NewDownloadPayload(destDir, archiveName, targets...))[0]
}

// BundleNames returns archive entry names for names, in the same order. Repeated names
// get " (n)" suffixes, numbered in first-seen order, skipping names already taken.
func BundleNames(names []string) []string {
	taken := mapset.NewThreadUnsafeSetWithSize[string](len(names))
	next := make(map[string]int, len(names))
	out := make([]string, len(names))

	for i, name := range names {
		candidate := name
		for n := next[name]; taken.Contains(candidate); {
			n++
			candidate = utils.NumberedName(name, n)
			next[name] = n
		}
		taken.Add(candidate)
		out[i] = candidate
	}
	return out
}
