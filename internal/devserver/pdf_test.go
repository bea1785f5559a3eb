package devserver

import (
	"testing"

	"github.com/openmined/docbox/internal/docsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectPDF(t *testing.T) {
	data := []byte("%PDF-1.7\n<< /Type /Pages /Kids [3 0 R 4 0 R] >>\n<< /Type /Page >>\n<< /Type/Page >>\n<< /Title (Minutes) /Encrypt 9 0 R >>")
	meta, err := inspectPDF(data)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.PageCount)
	assert.Equal(t, "Minutes", meta.Title)
	assert.True(t, meta.Encrypted)

	meta, err = inspectPDF([]byte("%PDF-1.4\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, meta.PageCount, "at least one page")

	_, err = inspectPDF([]byte("hello"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSplitPlan(t *testing.T) {
	tests := []struct {
		name string
		req  docsdk.SplitRequest
		want [][]int
	}{
		{"all", docsdk.SplitRequest{Mode: docsdk.SplitAll}, [][]int{{1}, {2}, {3}, {4}, {5}}},
		{"chunks", docsdk.SplitRequest{Mode: docsdk.SplitChunks, ChunkSize: 2}, [][]int{{1, 2}, {3, 4}, {5}}},
		{"ranges", docsdk.SplitRequest{Mode: docsdk.SplitRanges, Ranges: []docsdk.PageRange{{From: 2, To: 4}, {From: 5, To: 5}}}, [][]int{{2, 3, 4}, {5}}},
		{"pages", docsdk.SplitRequest{Mode: docsdk.SplitPages, Pages: []int{5, 1}}, [][]int{{5}, {1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitPlan(&tt.req, 5))
		})
	}
}

func TestSplitOutputName(t *testing.T) {
	assert.Equal(t, "report_p2.pdf", splitOutputName("report.pdf", []int{2}))
	assert.Equal(t, "report_p1-3.pdf", splitOutputName("report.pdf", []int{1, 2, 3}))
	assert.Equal(t, "scan_p4.pdf", splitOutputName("scan", []int{4}))
}
