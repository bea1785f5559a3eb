// Package client wires one session manager, the three transfer queues, their workers
// and the API client into the object the CLI talks to.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/openmined/docbox/internal/client/config"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/kv"
	"github.com/openmined/docbox/internal/session"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/openmined/docbox/internal/worker"
	"golang.org/x/sync/errgroup"
)

var ErrNoFiles = errors.New("client: no files to upload")

type Client struct {
	config *config.Config
	kv     kv.Store
	api    *docsdk.Client
	sess   *session.Manager

	Uploads    *transfer.UploadQueue
	Downloads  *transfer.DownloadQueue
	Processing *transfer.ProcessingQueue

	uploader   *worker.Uploader
	downloader *worker.Downloader
	processor  *worker.Processor

	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	store    kv.Store
	sdkOpts  []docsdk.Option
	sessOpts []session.ManagerOption
}

// WithStore replaces the kv backend named in the config.
func WithStore(s kv.Store) Option {
	return func(o *options) { o.store = s }
}

func WithSDKOptions(opts ...docsdk.Option) Option {
	return func(o *options) { o.sdkOpts = append(o.sdkOpts, opts...) }
}

func WithSessionOptions(opts ...session.ManagerOption) Option {
	return func(o *options) { o.sessOpts = append(o.sessOpts, opts...) }
}

func New(cfg *config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		s, err := kv.Open(cfg.KVBackend, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = s
	}

	api, err := docsdk.New(cfg.ServerURL, o.sdkOpts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create sdk: %w", err)
	}

	bridge := &authBridge{api: api.Auth}
	sessOpts := append([]session.ManagerOption{session.WithAccounts(bridge)}, o.sessOpts...)
	sess := session.NewManager(cfg.SessionConfig(), store, bridge, sessOpts...)

	// every authenticated request reads the current token and recovers from a 401 once
	api.SetTokenSource(sess)
	api.SetRefresher(sess)

	c := &Client{
		config:     cfg,
		kv:         store,
		api:        api,
		sess:       sess,
		Uploads:    transfer.NewUploadQueue(),
		Downloads:  transfer.NewDownloadQueue(),
		Processing: transfer.NewProcessingQueue(),
	}

	c.uploader = worker.NewUploader(c.Uploads, api.Uploads)
	c.uploader.OnComplete = c.onUploaded
	c.downloader = worker.NewDownloader(c.Downloads, api.Documents)
	c.processor = worker.NewProcessor(c.Processing, api.PDF)
	if cfg.JobPollInterval > 0 {
		c.processor.PollInterval = cfg.JobPollInterval
	}
	c.processor.OnComplete = c.onProcessed

	return c, nil
}

// Start loads the persisted session and starts the refresh scheduler.
func (c *Client) Start(ctx context.Context) error {
	slog.Debug("docbox client start", "server", c.config.ServerURL, "backend", c.config.KVBackend)
	return c.sess.Start(ctx)
}

// Close stops the scheduler and releases the store and idle connections.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sess.Stop()
		c.api.Close()
		err = c.kv.Close()
	})
	return err
}

func (c *Client) Config() *config.Config    { return c.config }
func (c *Client) API() *docsdk.Client       { return c.api }
func (c *Client) Session() *session.Manager { return c.sess }

// Guard returns a route guard reading this client's channel.
func (c *Client) Guard(cfg session.GuardConfig) *session.Guard {
	return session.NewGuard(c.sess.Channel(), nil, cfg)
}

// RunWorkers drains the three queues until ctx is done or, with untilIdle, until none of
// them has Pending or Active items.
func (c *Client) RunWorkers(ctx context.Context, untilIdle bool) error {
	n := c.config.Concurrency

	var g errgroup.Group
	g.Go(func() error {
		return worker.NewDispatcher(c.Uploads, c.uploader.Handle, n).Run(ctx, untilIdle)
	})
	g.Go(func() error {
		return worker.NewDispatcher(c.Downloads, c.downloader.Handle, n).Run(ctx, untilIdle)
	})
	g.Go(func() error {
		return worker.NewDispatcher(c.Processing, c.processor.Handle, n).Run(ctx, untilIdle)
	})
	return g.Wait()
}

// Busy reports whether any queue still has work.
func (c *Client) Busy() bool {
	return c.Uploads.IsActive() || c.Downloads.IsActive() || c.Processing.IsActive()
}

func (c *Client) onUploaded(ctx context.Context, r transfer.UploadResult) {
	if err := c.sess.ApplyStorageDelta(ctx, r.Size); err != nil {
		slog.Debug("storage delta", "error", err)
	}
}

func (c *Client) onProcessed(ctx context.Context, r transfer.ProcessingResult) {
	var delta int64
	for _, e := range r.Manifest {
		delta += e.Size
	}
	if delta == 0 {
		return
	}
	if err := c.sess.ApplyStorageDelta(ctx, delta); err != nil {
		slog.Debug("storage delta", "error", err)
	}
}
