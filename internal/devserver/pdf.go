package devserver

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openmined/docbox/internal/docsdk"
)

var (
	pdfPageRe  = regexp.MustCompile(`/Type\s*/Page\b`)
	pdfTitleRe = regexp.MustCompile(`/Title\s*\(([^)]*)\)`)
)

// pdfMeta is a shallow look at a PDF: enough for page bounds, not a parser.
type pdfMeta struct {
	PageCount int
	Title     string
	Encrypted bool
}

func inspectPDF(data []byte) (*pdfMeta, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: not a pdf document", ErrInvalid)
	}

	meta := &pdfMeta{
		PageCount: max(len(pdfPageRe.FindAll(data, -1)), 1),
		Encrypted: bytes.Contains(data, []byte("/Encrypt")),
	}
	if m := pdfTitleRe.FindSubmatch(data); m != nil {
		meta.Title = string(m[1])
	}
	return meta, nil
}

// splitPlan turns a validated request into the page groups of each output.
func splitPlan(req *docsdk.SplitRequest, pageCount int) [][]int {
	var groups [][]int
	span := func(from, to int) []int {
		pages := make([]int, 0, to-from+1)
		for p := from; p <= to; p++ {
			pages = append(pages, p)
		}
		return pages
	}

	switch req.Mode {
	case docsdk.SplitAll:
		for p := 1; p <= pageCount; p++ {
			groups = append(groups, []int{p})
		}
	case docsdk.SplitChunks:
		for from := 1; from <= pageCount; from += req.ChunkSize {
			groups = append(groups, span(from, min(from+req.ChunkSize-1, pageCount)))
		}
	case docsdk.SplitRanges:
		for _, r := range req.Ranges {
			groups = append(groups, span(r.From, r.To))
		}
	case docsdk.SplitPages:
		for _, p := range req.Pages {
			groups = append(groups, []int{p})
		}
	}
	return groups
}

// splitOutputName names an output after its source and pages: "report_p2.pdf", "report_p1-3.pdf".
func splitOutputName(source string, pages []int) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	r := docsdk.PageRange{From: pages[0], To: pages[len(pages)-1]}
	return fmt.Sprintf("%s_p%s.pdf", base, r)
}
