package devserver

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobs_SignedURL(t *testing.T) {
	blobs := NewMemoryBlobs("http://127.0.0.1:8080", "secret", time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	blobs.now = func() time.Time { return now }

	raw, expiresAt, err := blobs.PresignPut(context.Background(), "uploads/abc", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), expiresAt)
	assert.True(t, strings.HasPrefix(raw, "http://127.0.0.1:8080/blob/uploads/abc?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	expires, sig := u.Query().Get("expires"), u.Query().Get("sig")

	assert.NoError(t, blobs.Verify("uploads/abc", expires, sig))
	assert.ErrorIs(t, blobs.Verify("uploads/other", expires, sig), ErrBlobSignature)
	assert.ErrorIs(t, blobs.Verify("uploads/abc", "9999999999", sig), ErrBlobSignature)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, blobs.Verify("uploads/abc", expires, sig), ErrBlobExpired)
}

func TestMemoryBlobs_PutGetDelete(t *testing.T) {
	blobs := NewMemoryBlobs("http://127.0.0.1:8080", "secret", time.Minute)
	ctx := context.Background()

	_, err := blobs.Size(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, blobs.Put(ctx, "k", []byte("hello")))
	size, err := blobs.Size(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	body, n, err := blobs.Get(ctx, "k")
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int64(5), n)

	require.NoError(t, blobs.Delete(ctx, "k"))
	_, _, err = blobs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobConfigValidate(t *testing.T) {
	cfg := BlobConfig{Bucket: "docs"}
	assert.Error(t, cfg.Validate(), "region is required with a bucket")

	cfg = BlobConfig{Bucket: "docs", Region: "us-east-1", AccessKey: "a", SecretKey: "b", Endpoint: "not a url"}
	assert.Error(t, cfg.Validate())

	cfg = BlobConfig{}
	assert.Error(t, cfg.Validate(), "local urls need a signing key")

	cfg = BlobConfig{SigningKey: "k"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.URLExpiry)
}
