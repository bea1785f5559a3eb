package devserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	ErrBlobExpired   = errors.New("request has expired")
	ErrBlobSignature = errors.New("signature does not match")
)

// BlobStore holds document bytes and hands out presigned upload urls.
type BlobStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error)
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Size(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

func NewBlobStore(cfg *BlobConfig, publicURL string) (BlobStore, error) {
	if cfg.Bucket == "" {
		return NewMemoryBlobs(publicURL, cfg.SigningKey, cfg.URLExpiry), nil
	}
	return NewS3Blobs(cfg)
}

// MemoryBlobs keeps objects in memory and signs upload urls that point back at the dev server.
type MemoryBlobs struct {
	baseURL    string
	signingKey []byte
	expiry     time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryBlobs(baseURL, signingKey string, expiry time.Duration) *MemoryBlobs {
	return &MemoryBlobs{
		baseURL:    baseURL,
		signingKey: []byte(signingKey),
		expiry:     expiry,
		now:        time.Now,
		objects:    make(map[string][]byte),
	}
}

func (m *MemoryBlobs) PresignPut(_ context.Context, key, _ string) (string, time.Time, error) {
	expiresAt := m.now().Add(m.expiry).UTC().Truncate(time.Second)
	expires := strconv.FormatInt(expiresAt.Unix(), 10)

	query := url.Values{}
	query.Set("expires", expires)
	query.Set("sig", m.sign(key, expires))
	return m.baseURL + blobRoutePrefix + key + "?" + query.Encode(), expiresAt, nil
}

// Verify checks the signature and expiry of an upload url.
func (m *MemoryBlobs) Verify(key, expires, sig string) error {
	if !hmac.Equal([]byte(sig), []byte(m.sign(key, expires))) {
		return ErrBlobSignature
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBlobSignature
	}
	if m.now().After(time.Unix(unix, 0)) {
		return ErrBlobExpired
	}
	return nil
}

func (m *MemoryBlobs) sign(key, expires string) string {
	mac := hmac.New(sha256.New, m.signingKey)
	mac.Write([]byte(http.MethodPut + "\n" + key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MemoryBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryBlobs) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, 0, fmt.Errorf("%w: blob %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *MemoryBlobs) Size(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return 0, fmt.Errorf("%w: blob %s", ErrNotFound, key)
	}
	return int64(len(data)), nil
}

func (m *MemoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// S3Blobs stores objects in an S3 compatible bucket. Upload urls are signed by S3 itself.
type S3Blobs struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

func NewS3Blobs(cfg *BlobConfig) (*S3Blobs, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Blobs{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		expiry:    cfg.URLExpiry,
	}, nil
}

func (s *S3Blobs) PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.expiry).UTC()
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return req.URL, expiresAt, nil
}

func (s *S3Blobs) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (s *S3Blobs) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, 0, fmt.Errorf("%w: blob %s", ErrNotFound, key)
		}
		return nil, 0, err
	}
	return resp.Body, aws.ToInt64(resp.ContentLength), nil
}

func (s *S3Blobs) Size(ctx context.Context, key string) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("%w: blob %s", ErrNotFound, key)
		}
		return 0, err
	}
	return aws.ToInt64(resp.ContentLength), nil
}

func (s *S3Blobs) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
