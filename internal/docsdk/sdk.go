package docsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// TokenSource hands out the current access token. It must not block on network I/O.
type TokenSource interface {
	AccessToken() string
}

// Refresher is called once when an authenticated request comes back 401.
type Refresher interface {
	PerformRefresh(ctx context.Context) (bool, error)
}

// Client is the entry point to the document API.
type Client struct {
	http      *req.Client
	baseURL   string
	tokens    TokenSource
	refresher Refresher
	stats     *httpStats

	Auth      *AuthAPI
	Folders   *FolderAPI
	Documents *DocumentAPI
	Uploads   *UploadAPI
	PDF       *PDFAPI
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches the bearer token provider.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRefresher enables the refresh-and-retry-once behaviour on 401 responses.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithRetry overrides the retry policy for idempotent requests.
func WithRetry(count int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.SetCommonRetryCount(count).SetCommonRetryBackoffInterval(minWait, maxWait)
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{
		http:    newHTTPClient(baseURL),
		baseURL: baseURL,
		stats:   newHTTPStats(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Auth = newAuthAPI(c)
	c.Folders = newFolderAPI(c)
	c.Documents = newDocumentAPI(c)
	c.Uploads = newUploadAPI(c)
	c.PDF = newPDFAPI(c)

	return c, nil
}

// SetTokenSource replaces the token provider. Used when the session manager is built
// after the client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// SetRefresher replaces the 401 refresher.
func (c *Client) SetRefresher(r Refresher) {
	c.refresher = r
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stats returns a snapshot of traffic counters.
func (c *Client) Stats() HTTPStatsSnapshot {
	return c.stats.snapshot()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.GetTransport().CloseIdleConnections()
}

func (c *Client) accessToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

type apiCall struct {
	method     string
	path       string
	body       any
	query      map[string]string
	pathParams map[string]string
	auth       bool
	noRetry    bool
	noRefresh  bool
}

// send executes call. Authenticated requests that fail with 401 are retried once after
// a refresh, when a refresher is configured and the token actually changed.
func (c *Client) send(ctx context.Context, call apiCall, setup func(*req.Request)) (*req.Response, error) {
	var usedToken string

	attempt := func() (*req.Response, error) {
		r := c.http.R().
			SetContext(ctx).
			SetErrorResult(&errorEnvelope{})

		if call.auth {
			usedToken = c.accessToken()
			if usedToken != "" {
				r.SetBearerAuthToken(usedToken)
			}
		}
		if call.noRetry {
			r.SetRetryCount(0)
		}
		if call.body != nil {
			r.SetBody(call.body)
		}
		if len(call.query) > 0 {
			r.SetQueryParams(call.query)
		}
		if len(call.pathParams) > 0 {
			r.SetPathParams(call.pathParams)
		}
		if setup != nil {
			setup(r)
		}
		return r.Send(call.method, call.path)
	}

	resp, err := attempt()
	if err != nil {
		c.stats.setLastError(err)
		return resp, err
	}

	if !call.auth || call.noRefresh || c.refresher == nil || resp.GetStatusCode() != http.StatusUnauthorized {
		return resp, nil
	}

	refreshed, rerr := c.refresher.PerformRefresh(ctx)
	if rerr != nil {
		slog.Warn("docsdk refresh after 401", "path", call.path, "error", rerr)
		return resp, nil
	}
	if !refreshed && c.accessToken() == usedToken {
		return resp, nil
	}

	if resp.Body != nil {
		resp.Body.Close()
	}

	slog.Debug("docsdk retrying after token refresh", "path", call.path)
	return attempt()
}

// doJSON sends call and decodes the envelope's data into T.
func doJSON[T any](ctx context.Context, c *Client, op string, call apiCall) (T, error) {
	return doJSONWith[T](ctx, c, op, call, nil)
}

// doJSONWith is doJSON with an extra request hook, e.g. for multipart bodies.
func doJSONWith[T any](ctx context.Context, c *Client, op string, call apiCall, setup func(*req.Request)) (T, error) {
	var zero T
	var env envelope[T]

	resp, err := c.send(ctx, call, func(r *req.Request) {
		r.SetSuccessResult(&env)
		if setup != nil {
			setup(r)
		}
	})
	if err := handleAPIError(resp, err, op); err != nil {
		return zero, err
	}

	if !env.Success {
		if env.Error != nil {
			env.Error.Status = resp.GetStatusCode()
			return zero, wrapOp(op, env.Error)
		}
		return zero, wrapOp(op, NewAPIError(CodeUnknownError, env.Message))
	}

	return env.Data, nil
}

// doEmpty is doJSON for endpoints whose data is irrelevant.
func doEmpty(ctx context.Context, c *Client, op string, call apiCall) error {
	_, err := doJSON[struct{}](ctx, c, op, call)
	return err
}
