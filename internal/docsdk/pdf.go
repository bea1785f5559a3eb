package docsdk

import (
	"context"
	"net/http"
)

const (
	v1PDFInfo  = "/api/v1/pdf/{id}/info"
	v1PDFSplit = "/api/v1/pdf/{id}/split"
	v1PDFJob   = "/api/v1/pdf/jobs/{jobId}"
)

type PDFAPI struct {
	c *Client
}

func newPDFAPI(c *Client) *PDFAPI {
	return &PDFAPI{c: c}
}

// Info returns page count and metadata of a PDF document.
func (p *PDFAPI) Info(ctx context.Context, documentID string) (*PDFInfo, error) {
	return doJSON[*PDFInfo](ctx, p.c, "pdf info", apiCall{
		method:     http.MethodGet,
		path:       v1PDFInfo,
		pathParams: map[string]string{"id": documentID},
		auth:       true,
	})
}

// Split submits a split job. The request is validated locally without page bounds.
func (p *PDFAPI) Split(ctx context.Context, documentID string, params *SplitRequest) (*SplitJob, error) {
	if err := params.Validate(0); err != nil {
		return nil, wrapOp("pdf split", err)
	}

	return doJSON[*SplitJob](ctx, p.c, "pdf split", apiCall{
		method:     http.MethodPost,
		path:       v1PDFSplit,
		pathParams: map[string]string{"id": documentID},
		body:       params,
		auth:       true,
		noRetry:    true,
	})
}

func (p *PDFAPI) Job(ctx context.Context, jobID string) (*SplitJob, error) {
	return doJSON[*SplitJob](ctx, p.c, "pdf job", apiCall{
		method:     http.MethodGet,
		path:       v1PDFJob,
		pathParams: map[string]string{"jobId": jobID},
		auth:       true,
	})
}
