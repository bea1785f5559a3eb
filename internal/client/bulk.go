package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const bulkConcurrency = 4

// TargetKind tells folders and documents apart in bulk operations.
type TargetKind string

const (
	KindFolder   TargetKind = "folder"
	KindDocument TargetKind = "document"
)

type Target struct {
	ID   string     `json:"id" yaml:"id"`
	Kind TargetKind `json:"kind" yaml:"kind"`
}

func Folder(id string) Target   { return Target{ID: id, Kind: KindFolder} }
func Document(id string) Target { return Target{ID: id, Kind: KindDocument} }

// BulkFailure is one failed sub-operation.
type BulkFailure struct {
	Target Target `json:"target" yaml:"target"`
	Error  string `json:"error" yaml:"error"`
}

// BulkResult reports every sub-operation independently. Succeeded ones are never rolled
// back when others fail.
type BulkResult struct {
	Succeeded []Target      `json:"succeeded" yaml:"succeeded"`
	Failed    []BulkFailure `json:"failed" yaml:"failed"`
}

func (r *BulkResult) String() string {
	return fmt.Sprintf("%d succeeded, %d failed", len(r.Succeeded), len(r.Failed))
}

func (r *BulkResult) OK() bool {
	return len(r.Failed) == 0
}

// Delete removes targets concurrently. permanent skips the trash.
func (c *Client) Delete(ctx context.Context, targets []Target, permanent bool) *BulkResult {
	return c.bulk(ctx, targets, func(ctx context.Context, t Target) error {
		if t.Kind == KindFolder {
			return c.api.Folders.Delete(ctx, t.ID, permanent)
		}
		return c.api.Documents.Delete(ctx, t.ID, permanent)
	})
}

// Move moves targets into folderID; "" is the root.
func (c *Client) Move(ctx context.Context, targets []Target, folderID string) *BulkResult {
	return c.bulk(ctx, targets, func(ctx context.Context, t Target) error {
		var err error
		if t.Kind == KindFolder {
			_, err = c.api.Folders.Move(ctx, t.ID, folderID)
		} else {
			_, err = c.api.Documents.Move(ctx, t.ID, folderID)
		}
		return err
	})
}

func (c *Client) Restore(ctx context.Context, targets []Target) *BulkResult {
	return c.bulk(ctx, targets, func(ctx context.Context, t Target) error {
		var err error
		if t.Kind == KindFolder {
			_, err = c.api.Folders.Restore(ctx, t.ID)
		} else {
			_, err = c.api.Documents.Restore(ctx, t.ID)
		}
		return err
	})
}

func (c *Client) bulk(ctx context.Context, targets []Target, op func(context.Context, Target) error) *BulkResult {
	var (
		mu     sync.Mutex
		result = &BulkResult{}
		g      errgroup.Group
	)
	g.SetLimit(bulkConcurrency)

	for _, t := range targets {
		g.Go(func() error {
			err := op(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("bulk op failed", "kind", t.Kind, "id", t.ID, "error", err)
				result.Failed = append(result.Failed, BulkFailure{Target: t, Error: err.Error()})
			} else {
				result.Succeeded = append(result.Succeeded, t)
			}
			// sub-operations never abort each other
			return nil
		})
	}
	_ = g.Wait()

	return result
}
