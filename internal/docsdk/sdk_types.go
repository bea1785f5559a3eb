package docsdk

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/docbox/internal/utils"
	"github.com/openmined/docbox/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Docbox-Version"
	HeaderDeviceID  = "X-Docbox-Device-Id"
)

var UserAgent = fmt.Sprintf("Docbox/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

func newHTTPClient(baseURL string) *req.Client {
	return req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(3).
		SetCommonRetryBackoffInterval(1*time.Second, 5*time.Second).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, utils.HWID).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
}

func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Join(ErrNoServerURL, fmt.Errorf("invalid url %q", baseURL))
	}
	return nil
}

// envelope is the response wrapper every endpoint returns.
type envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// ProgressCallback reports transferred and total bytes. total is -1 when unknown.
type ProgressCallback func(done int64, total int64)
