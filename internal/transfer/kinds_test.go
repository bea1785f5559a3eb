package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kb = 1024
const mb = 1024 * 1024

func TestUploadPolicy(t *testing.T) {
	policy := UploadPolicy{PresignThreshold: 5 * mb}

	// one at a time: only the large file goes through a presigned url
	assert.False(t, policy.UsePresigned(1*kb))
	assert.False(t, policy.UsePresigned(1*kb))
	assert.True(t, policy.UsePresigned(6*mb))

	// together: the whole batch is presigned
	assert.True(t, policy.UsePresigned(1*kb, 1*kb, 6*mb))
	assert.True(t, policy.UsePresigned(1*kb, 1*kb))
	assert.False(t, policy.UsePresigned(5*mb), "threshold itself is not exceeded")

	assert.True(t, UploadPolicy{}.UsePresigned(DefaultPresignThreshold+1))
}

func TestEnqueueUploads(t *testing.T) {
	policy := UploadPolicy{PresignThreshold: 5 * mb}
	q := NewUploadQueue()

	single := EnqueueUploads(q, policy, "", LocalFile{Path: "/tmp/a.txt", Size: 1 * kb})
	big := EnqueueUploads(q, policy, "", LocalFile{Path: "/tmp/big.bin", Size: 6 * mb})
	batch := EnqueueUploads(q, policy, "f1",
		LocalFile{Path: "/tmp/x/a.txt", Size: 1 * kb},
		LocalFile{Path: "/tmp/y/a.txt", Size: 1 * kb},
		LocalFile{Path: "/tmp/big.bin", Size: 6 * mb},
	)
	assert.Nil(t, EnqueueUploads(q, policy, ""))

	it, _ := q.Get(single[0])
	assert.False(t, it.Payload.Presigned)
	assert.Equal(t, "a.txt", it.Payload.Name)
	it, _ = q.Get(big[0])
	assert.True(t, it.Payload.Presigned)

	require.Len(t, batch, 3)
	for _, id := range batch {
		it, _ := q.Get(id)
		assert.True(t, it.Payload.Presigned)
		assert.Equal(t, "f1", it.Payload.FolderID)
	}
}

func TestBundleNames(t *testing.T) {
	assert.Equal(t, []string{"report.pdf", "report (1).pdf"}, BundleNames([]string{"report.pdf", "report.pdf"}))

	assert.Equal(t,
		[]string{"a.pdf", "b.pdf", "a (1).pdf", "a (2).pdf", "b (1).pdf"},
		BundleNames([]string{"a.pdf", "b.pdf", "a.pdf", "a.pdf", "b.pdf"}),
	)

	// a literal "a (1).pdf" seen first is kept and the generated name skips it
	assert.Equal(t,
		[]string{"a (1).pdf", "a.pdf", "a (2).pdf"},
		BundleNames([]string{"a (1).pdf", "a.pdf", "a.pdf"}),
	)

	assert.Empty(t, BundleNames(nil))
}

func TestEnqueueDownload(t *testing.T) {
	q := NewDownloadQueue()

	one := EnqueueDownload(q, "/tmp/out", "", DownloadTarget{DocumentID: "d1", Name: "report.pdf", Size: 10})
	it, _ := q.Get(one)
	assert.False(t, it.Payload.IsBundle())
	assert.Equal(t, "report.pdf", it.Payload.DisplayName())
	assert.Equal(t, 1, it.Payload.FileCount)

	bundle := EnqueueDownload(q, "/tmp/out", "",
		DownloadTarget{DocumentID: "d1", Name: "report.pdf", Size: 10},
		DownloadTarget{DocumentID: "d2", Name: "report.pdf", Size: 20},
	)
	it, _ = q.Get(bundle)
	assert.True(t, it.Payload.IsBundle())
	assert.Equal(t, DefaultBundleName, it.Payload.DisplayName())
	assert.Equal(t, 2, it.Payload.FileCount)
	assert.EqualValues(t, 30, it.Payload.TotalSize())
	assert.Equal(t, 2, q.Len(), "a multi file request is one item")

	require.NoError(t, q.UpdateProgress(bundle, 50, func(p *DownloadPayload) {
		p.CurrentFileIndex = 1
		p.CurrentFile = p.Targets[1].Name
	}))
	require.NoError(t, q.SetPhase(bundle, PhaseZipping))
	it, _ = q.Get(bundle)
	assert.Equal(t, PhaseZipping, it.Phase)
	assert.Equal(t, 1, it.Payload.CurrentFileIndex)

	// snapshots do not alias queue state
	it.Payload.Targets[0].Name = "mutated"
	again, _ := q.Get(bundle)
	assert.Equal(t, "report.pdf", again.Payload.Targets[0].Name)
}

func TestProcessingManifestIsTerminal(t *testing.T) {
	q := NewProcessingQueue()
	id := q.Enqueue(ProcessingPayload{DocumentID: "d1", Name: "book.pdf", Mode: ModeChunks, ChunkSize: 10})[0]
	require.True(t, q.Claim(id, PhaseNone))

	manifest := []ManifestEntry{
		{DocumentID: "o1", Name: "book_part1.pdf", Size: 100, PageCount: 10},
		{DocumentID: "o2", Name: "book_part2.pdf", Size: 50, PageCount: 5},
	}
	require.NoError(t, q.Complete(id, NewProcessingResult("job1", manifest)))

	manifest[0].Name = "changed by caller"
	it, _ := q.Get(id)
	assert.Equal(t, 2, it.Result.OutputCount)
	assert.Equal(t, "book_part1.pdf", it.Result.Manifest[0].Name)
	assert.Equal(t, PhaseProcessing, it.Phase)

	it.Result.Manifest[1].PageCount = 99
	again, _ := q.Get(id)
	assert.Equal(t, 5, again.Result.Manifest[1].PageCount)

	assert.ErrorIs(t, q.Complete(id, ProcessingResult{}), ErrInvalidTransition)
}

func TestParseMode(t *testing.T) {
	for _, m := range []string{"all", "chunks", "ranges", "pages"} {
		got, err := ParseMode(m)
		require.NoError(t, err)
		assert.Equal(t, Mode(m), got)
	}
	_, err := ParseMode("odd")
	assert.Error(t, err)
}
