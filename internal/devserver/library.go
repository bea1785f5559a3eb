package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/utils"
)

const (
	defaultPageLimit   = 50
	maxPageLimit       = 200
	defaultSearchLimit = 20
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrQuota    = errors.New("storage quota exceeded")
	ErrInvalid  = errors.New("invalid request")
)

type folderRecord struct {
	ID        string
	Owner     string
	Name      string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

type documentRecord struct {
	ID          string
	Owner       string
	Name        string
	FolderID    string
	ContentType string
	Size        int64
	PageCount   int
	BlobKey     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// NewDocument describes content that already sits in the blob store.
type NewDocument struct {
	Name        string
	FolderID    string
	ContentType string
	Size        int64
	PageCount   int
	BlobKey     string
}

// Library is the in-memory folder and document tree of every account. Trashed items keep
// counting against the owner's quota until they are deleted permanently.
type Library struct {
	blobs BlobStore
	limit int64

	mu       sync.RWMutex
	folders  map[string]*folderRecord
	docs     map[string]*documentRecord
	usage    map[string]int64
	blobRefs map[string]int
}

func NewLibrary(blobs BlobStore, storageLimit int64) *Library {
	return &Library{
		blobs:    blobs,
		limit:    storageLimit,
		folders:  make(map[string]*folderRecord),
		docs:     make(map[string]*documentRecord),
		usage:    make(map[string]int64),
		blobRefs: make(map[string]int),
	}
}

func (l *Library) StorageLimit() int64 {
	return l.limit
}

func (l *Library) Usage(owner string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usage[owner]
}

// Folders

func (l *Library) ListFolders(owner, parentID string) ([]*docsdk.Folder, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if parentID != "" {
		if _, err := l.liveFolder(owner, parentID); err != nil {
			return nil, err
		}
	}

	out := make([]*docsdk.Folder, 0)
	for _, f := range l.folders {
		if f.Owner == owner && f.ParentID == parentID && f.DeletedAt == nil {
			out = append(out, l.folderWire(f))
		}
	}
	slices.SortFunc(out, func(a, b *docsdk.Folder) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (l *Library) CreateFolder(owner, name, parentID string) (*docsdk.Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if parentID != "" {
		if _, err := l.liveFolder(owner, parentID); err != nil {
			return nil, err
		}
	}
	if l.folderNameTaken(owner, parentID, name, "") {
		return nil, fmt.Errorf("%w: folder %q already exists", ErrConflict, name)
	}

	now := time.Now().UTC()
	f := &folderRecord{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.folders[f.ID] = f
	return l.folderWire(f), nil
}

// GetFolder returns a folder, trashed or not.
func (l *Library) GetFolder(owner, id string) (*docsdk.Folder, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, err := l.folder(owner, id)
	if err != nil {
		return nil, err
	}
	return l.folderWire(f), nil
}

func (l *Library) UpdateFolder(owner, id string, params *docsdk.UpdateRequest) (*docsdk.Folder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.liveFolder(owner, id)
	if err != nil {
		return nil, err
	}

	name, parentID := f.Name, f.ParentID
	if params.Name != nil {
		if name, err = cleanName(*params.Name); err != nil {
			return nil, err
		}
	}
	if params.FolderID != nil {
		parentID = *params.FolderID
		if err := l.checkFolderTarget(owner, f.ID, parentID); err != nil {
			return nil, err
		}
	}
	if l.folderNameTaken(owner, parentID, name, f.ID) {
		return nil, fmt.Errorf("%w: folder %q already exists", ErrConflict, name)
	}

	f.Name, f.ParentID = name, parentID
	f.UpdatedAt = time.Now().UTC()
	return l.folderWire(f), nil
}

func (l *Library) MoveFolder(owner, id, targetID string) (*docsdk.Folder, error) {
	return l.UpdateFolder(owner, id, &docsdk.UpdateRequest{FolderID: &targetID})
}

// CopyFolder deep copies a folder into targetID. Documents share blobs with the originals.
func (l *Library) CopyFolder(owner, id string, params *docsdk.CopyRequest) (*docsdk.Folder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := l.liveFolder(owner, id)
	if err != nil {
		return nil, err
	}
	if err := l.checkFolderTarget(owner, src.ID, params.TargetFolderID); err != nil {
		return nil, err
	}

	name := src.Name
	if params.Name != "" {
		if name, err = cleanName(params.Name); err != nil {
			return nil, err
		}
	}
	name = l.availableFolderName(owner, params.TargetFolderID, name)

	var size int64
	for _, d := range l.docs {
		if d.DeletedAt == nil && l.inSubtree(d.FolderID, src.ID) {
			size += d.Size
		}
	}
	if err := l.reserve(owner, size); err != nil {
		return nil, err
	}

	root := l.copyFolderTree(src, params.TargetFolderID, name)
	return l.folderWire(root), nil
}

// DeleteFolder trashes a folder, which hides everything below it. Permanent deletion
// requires the folder to have no live children; trashed ones are restored to the root later.
func (l *Library) DeleteFolder(owner, id string, permanent bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.folder(owner, id)
	if err != nil {
		return err
	}

	if !permanent {
		if f.DeletedAt == nil {
			now := time.Now().UTC()
			f.DeletedAt = &now
		}
		return nil
	}

	for _, child := range l.folders {
		if child.ParentID == f.ID && child.DeletedAt == nil {
			return fmt.Errorf("%w: folder %q is not empty", ErrConflict, f.Name)
		}
	}
	for _, d := range l.docs {
		if d.FolderID == f.ID && d.DeletedAt == nil {
			return fmt.Errorf("%w: folder %q is not empty", ErrConflict, f.Name)
		}
	}
	delete(l.folders, f.ID)
	return nil
}

// RestoreFolder takes a folder out of the trash. A folder whose parent is gone lands in the root.
func (l *Library) RestoreFolder(owner, id string) (*docsdk.Folder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.folder(owner, id)
	if err != nil {
		return nil, err
	}
	if f.DeletedAt == nil {
		return l.folderWire(f), nil
	}

	if f.ParentID != "" {
		if _, err := l.liveFolder(owner, f.ParentID); err != nil {
			f.ParentID = ""
		}
	}
	f.Name = l.availableFolderName(owner, f.ParentID, f.Name)
	f.DeletedAt = nil
	f.UpdatedAt = time.Now().UTC()
	return l.folderWire(f), nil
}

// Documents

func (l *Library) ListDocuments(owner, folderID string, page, limit int) (*docsdk.Page[*docsdk.Document], error) {
	page = max(page, 1)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if folderID != "" {
		if _, err := l.liveFolder(owner, folderID); err != nil {
			return nil, err
		}
	}

	all := make([]*docsdk.Document, 0)
	for _, d := range l.docs {
		if d.Owner == owner && d.FolderID == folderID && d.DeletedAt == nil {
			all = append(all, d.wire())
		}
	}
	slices.SortFunc(all, func(a, b *docsdk.Document) int { return strings.Compare(a.Name, b.Name) })

	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return &docsdk.Page[*docsdk.Document]{
		Items: all[start:end],
		Page:  page,
		Limit: limit,
		Total: len(all),
	}, nil
}

// AddDocument records content already written to the blob store. Name clashes in the
// target folder are resolved by numbering.
func (l *Library) AddDocument(owner string, params *NewDocument) (*docsdk.Document, error) {
	name, err := cleanName(params.Name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if params.FolderID != "" {
		if _, err := l.liveFolder(owner, params.FolderID); err != nil {
			return nil, err
		}
	}
	if err := l.reserve(owner, params.Size); err != nil {
		return nil, err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = utils.DetectContentType(name)
	}

	now := time.Now().UTC()
	d := &documentRecord{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        l.availableDocumentName(owner, params.FolderID, name),
		FolderID:    params.FolderID,
		ContentType: contentType,
		Size:        params.Size,
		PageCount:   params.PageCount,
		BlobKey:     params.BlobKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.docs[d.ID] = d
	l.blobRefs[d.BlobKey]++
	return d.wire(), nil
}

// GetDocument returns a document, trashed or not.
func (l *Library) GetDocument(owner, id string) (*docsdk.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, err := l.document(owner, id)
	if err != nil {
		return nil, err
	}
	return d.wire(), nil
}

// Content returns the blob key of a live document.
func (l *Library) Content(owner, id string) (*docsdk.Document, string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, err := l.liveDocument(owner, id)
	if err != nil {
		return nil, "", err
	}
	return d.wire(), d.BlobKey, nil
}

func (l *Library) UpdateDocument(owner, id string, params *docsdk.UpdateRequest) (*docsdk.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.liveDocument(owner, id)
	if err != nil {
		return nil, err
	}

	name, folderID := d.Name, d.FolderID
	if params.Name != nil {
		if name, err = cleanName(*params.Name); err != nil {
			return nil, err
		}
	}
	if params.FolderID != nil {
		folderID = *params.FolderID
		if folderID != "" {
			if _, err := l.liveFolder(owner, folderID); err != nil {
				return nil, err
			}
		}
	}
	if l.documentNameTaken(owner, folderID, name, d.ID) {
		return nil, fmt.Errorf("%w: document %q already exists", ErrConflict, name)
	}

	d.Name, d.FolderID = name, folderID
	d.UpdatedAt = time.Now().UTC()
	return d.wire(), nil
}

func (l *Library) MoveDocument(owner, id, targetID string) (*docsdk.Document, error) {
	return l.UpdateDocument(owner, id, &docsdk.UpdateRequest{FolderID: &targetID})
}

func (l *Library) CopyDocument(owner, id string, params *docsdk.CopyRequest) (*docsdk.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := l.liveDocument(owner, id)
	if err != nil {
		return nil, err
	}
	if params.TargetFolderID != "" {
		if _, err := l.liveFolder(owner, params.TargetFolderID); err != nil {
			return nil, err
		}
	}

	name := src.Name
	if params.Name != "" {
		if name, err = cleanName(params.Name); err != nil {
			return nil, err
		}
	}
	if err := l.reserve(owner, src.Size); err != nil {
		return nil, err
	}

	dup := l.cloneDocument(src, params.TargetFolderID)
	dup.Name = l.availableDocumentName(owner, params.TargetFolderID, name)
	return dup.wire(), nil
}

func (l *Library) DeleteDocument(ctx context.Context, owner, id string, permanent bool) error {
	l.mu.Lock()

	d, err := l.document(owner, id)
	if err != nil {
		l.mu.Unlock()
		return err
	}

	if !permanent {
		if d.DeletedAt == nil {
			now := time.Now().UTC()
			d.DeletedAt = &now
		}
		l.mu.Unlock()
		return nil
	}

	delete(l.docs, d.ID)
	l.usage[owner] -= d.Size
	l.blobRefs[d.BlobKey]--
	orphan := l.blobRefs[d.BlobKey] <= 0
	if orphan {
		delete(l.blobRefs, d.BlobKey)
	}
	l.mu.Unlock()

	if orphan {
		if err := l.blobs.Delete(ctx, d.BlobKey); err != nil {
			slog.Warn("delete blob", "key", d.BlobKey, "error", err)
		}
	}
	return nil
}

func (l *Library) RestoreDocument(owner, id string) (*docsdk.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.document(owner, id)
	if err != nil {
		return nil, err
	}
	if d.DeletedAt == nil {
		return d.wire(), nil
	}

	if d.FolderID != "" {
		if _, err := l.liveFolder(owner, d.FolderID); err != nil {
			d.FolderID = ""
		}
	}
	d.Name = l.availableDocumentName(owner, d.FolderID, d.Name)
	d.DeletedAt = nil
	d.UpdatedAt = time.Now().UTC()
	return d.wire(), nil
}

// Search matches the query against document names, case insensitive. Every term must
// match; the score is the share of the name covered by the terms.
func (l *Library) Search(owner, query, sortBy, folderID string, limit int) (*docsdk.SearchResponse, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: query is required", ErrInvalid)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxPageLimit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := make([]*docsdk.SearchMatch, 0)
	for _, d := range l.docs {
		if d.Owner != owner || d.DeletedAt != nil || !l.folderAlive(d.FolderID) {
			continue
		}
		if folderID != "" && !l.inSubtree(d.FolderID, folderID) {
			continue
		}

		lower := strings.ToLower(d.Name)
		covered := 0
		for _, term := range terms {
			if !strings.Contains(lower, term) {
				covered = -1
				break
			}
			covered += len(term)
		}
		if covered < 0 {
			continue
		}

		matches = append(matches, &docsdk.SearchMatch{
			Document: d.wire(),
			Score:    min(float64(covered)/float64(len(lower)), 1),
			Snippet:  d.Name,
			Fields:   []string{"name"},
		})
	}

	slices.SortFunc(matches, func(a, b *docsdk.SearchMatch) int {
		if sortBy == docsdk.SortRelevance && a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Document.Name, b.Document.Name)
	})

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return &docsdk.SearchResponse{Query: query, Total: total, Matches: matches}, nil
}

// helpers, callers hold the lock

func (l *Library) folder(owner, id string) (*folderRecord, error) {
	f, ok := l.folders[id]
	if !ok || f.Owner != owner {
		return nil, fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	return f, nil
}

func (l *Library) liveFolder(owner, id string) (*folderRecord, error) {
	f, err := l.folder(owner, id)
	if err != nil {
		return nil, err
	}
	if !l.folderAlive(id) {
		return nil, fmt.Errorf("%w: folder %s is in the trash", ErrNotFound, id)
	}
	return f, nil
}

// folderAlive reports whether id and all of its ancestors are out of the trash.
func (l *Library) folderAlive(id string) bool {
	for id != "" {
		f, ok := l.folders[id]
		if !ok || f.DeletedAt != nil {
			return false
		}
		id = f.ParentID
	}
	return true
}

func (l *Library) document(owner, id string) (*documentRecord, error) {
	d, ok := l.docs[id]
	if !ok || d.Owner != owner {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return d, nil
}

func (l *Library) liveDocument(owner, id string) (*documentRecord, error) {
	d, err := l.document(owner, id)
	if err != nil {
		return nil, err
	}
	if d.DeletedAt != nil || !l.folderAlive(d.FolderID) {
		return nil, fmt.Errorf("%w: document %s is in the trash", ErrNotFound, id)
	}
	return d, nil
}

// inSubtree reports whether folderID is root or a descendant of root.
func (l *Library) inSubtree(folderID, root string) bool {
	for id := folderID; id != ""; {
		if id == root {
			return true
		}
		f, ok := l.folders[id]
		if !ok {
			return false
		}
		id = f.ParentID
	}
	return false
}

// checkFolderTarget rejects moving id under itself.
func (l *Library) checkFolderTarget(owner, id, targetID string) error {
	if targetID == "" {
		return nil
	}
	if _, err := l.liveFolder(owner, targetID); err != nil {
		return err
	}
	if l.inSubtree(targetID, id) {
		return fmt.Errorf("%w: cannot move a folder into itself", ErrInvalid)
	}
	return nil
}

func (l *Library) reserve(owner string, size int64) error {
	if l.limit > 0 && l.usage[owner]+size > l.limit {
		return fmt.Errorf("%w: %d of %d bytes used", ErrQuota, l.usage[owner], l.limit)
	}
	l.usage[owner] += size
	return nil
}

func (l *Library) folderNames(owner, parentID, except string) mapset.Set[string] {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, f := range l.folders {
		if f.Owner == owner && f.ParentID == parentID && f.DeletedAt == nil && f.ID != except {
			names.Add(f.Name)
		}
	}
	return names
}

func (l *Library) documentNames(owner, folderID, except string) mapset.Set[string] {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, d := range l.docs {
		if d.Owner == owner && d.FolderID == folderID && d.DeletedAt == nil && d.ID != except {
			names.Add(d.Name)
		}
	}
	return names
}

func (l *Library) folderNameTaken(owner, parentID, name, except string) bool {
	return l.folderNames(owner, parentID, except).Contains(name)
}

func (l *Library) documentNameTaken(owner, folderID, name, except string) bool {
	return l.documentNames(owner, folderID, except).Contains(name)
}

func (l *Library) availableFolderName(owner, parentID, name string) string {
	return firstFree(l.folderNames(owner, parentID, ""), name)
}

func (l *Library) availableDocumentName(owner, folderID, name string) string {
	return firstFree(l.documentNames(owner, folderID, ""), name)
}

func firstFree(taken mapset.Set[string], name string) string {
	for n := 0; ; n++ {
		if candidate := utils.NumberedName(name, n); !taken.Contains(candidate) {
			return candidate
		}
	}
}

func (l *Library) copyFolderTree(src *folderRecord, parentID, name string) *folderRecord {
	now := time.Now().UTC()
	dst := &folderRecord{
		ID:        uuid.NewString(),
		Owner:     src.Owner,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// snapshot children before inserting the copy so a copy into a descendant terminates
	var children []*folderRecord
	for _, f := range l.folders {
		if f.ParentID == src.ID && f.DeletedAt == nil {
			children = append(children, f)
		}
	}
	var docs []*documentRecord
	for _, d := range l.docs {
		if d.FolderID == src.ID && d.DeletedAt == nil {
			docs = append(docs, d)
		}
	}

	l.folders[dst.ID] = dst
	for _, d := range docs {
		l.cloneDocument(d, dst.ID)
	}
	for _, child := range children {
		l.copyFolderTree(child, dst.ID, child.Name)
	}
	return dst
}

func (l *Library) cloneDocument(src *documentRecord, folderID string) *documentRecord {
	now := time.Now().UTC()
	dup := *src
	dup.ID = uuid.NewString()
	dup.FolderID = folderID
	dup.CreatedAt = now
	dup.UpdatedAt = now
	dup.DeletedAt = nil
	l.docs[dup.ID] = &dup
	l.blobRefs[dup.BlobKey]++
	return &dup
}

func (l *Library) folderWire(f *folderRecord) *docsdk.Folder {
	parts := []string{f.Name}
	for id := f.ParentID; id != ""; {
		parent, ok := l.folders[id]
		if !ok {
			break
		}
		parts = append(parts, parent.Name)
		id = parent.ParentID
	}
	slices.Reverse(parts)

	return &docsdk.Folder{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		Path:      "/" + strings.Join(parts, "/"),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
		DeletedAt: f.DeletedAt,
	}
}

func (d *documentRecord) wire() *docsdk.Document {
	return &docsdk.Document{
		ID:          d.ID,
		Name:        d.Name,
		FolderID:    d.FolderID,
		Size:        d.Size,
		ContentType: d.ContentType,
		PageCount:   d.PageCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   d.DeletedAt,
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: name is required", ErrInvalid)
	case strings.ContainsAny(name, "/\\"):
		return "", fmt.Errorf("%w: name %q contains a path separator", ErrInvalid, name)
	}
	return name, nil
}
