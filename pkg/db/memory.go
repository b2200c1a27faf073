package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// MemoryFileStore is an in-memory FileStore used by tests and local
// development. All operations run inside one critical section, which gives
// the same atomicity FindOrCreate gets from the conditional insert in
// Postgres.
type MemoryFileStore struct {
	mu     sync.Mutex
	byID   map[string]*Document
	byRoom map[string]string
	seq    map[string]int64 // write sequence, tie-break for recency ordering
	clock  int64
}

// NewMemoryFileStore creates an empty in-memory store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{
		byID:   make(map[string]*Document),
		byRoom: make(map[string]string),
		seq:    make(map[string]int64),
	}
}

func (s *MemoryFileStore) touch(doc *Document) {
	doc.UpdatedAt = time.Now()
	s.clock++
	s.seq[doc.ID] = s.clock
}

func copyDocument(doc *Document) *Document {
	out := *doc
	out.Collaborators = append([]string(nil), doc.Collaborators...)
	return &out
}

func (s *MemoryFileStore) FindOrCreate(ctx context.Context, roomID, ownerID, language string) (*Document, bool, error) {
	if err := ValidateLanguage(language); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byRoom[roomID]; ok {
		return copyDocument(s.byID[id]), false, nil
	}

	now := time.Now()
	doc := &Document{
		ID:            ksuid.New().String(),
		RoomID:        roomID,
		OwnerID:       ownerID,
		Collaborators: []string{},
		Filename:      "main." + ExtensionForLanguage(language),
		Language:      language,
		Folder:        "root",
		Code:          StarterTemplate(language),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[doc.ID] = doc
	s.byRoom[roomID] = doc.ID
	s.clock++
	s.seq[doc.ID] = s.clock

	return copyDocument(doc), true, nil
}

// find resolves a ref; the caller must hold the lock.
func (s *MemoryFileStore) find(ref Ref) (*Document, bool) {
	id := ref.Value
	if ref.Kind == RefByRoom {
		var ok bool
		if id, ok = s.byRoom[ref.Value]; !ok {
			return nil, false
		}
	}
	doc, ok := s.byID[id]
	return doc, ok
}

func (s *MemoryFileStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.find(ref)
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (s *MemoryFileStore) Open(ctx context.Context, ref Ref, userID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.find(ref)
	if !ok || doc.IsDeleted {
		return nil, ErrNotFound
	}
	if !HasViewAccess(doc, userID) {
		return nil, ErrAccessDenied
	}
	if !HasEditAccess(doc, userID) {
		// Collaborator adds do not touch UpdatedAt: opening a file is not an
		// edit, so it must not move the file in recency ordering. The
		// Postgres store makes the same choice.
		doc.Collaborators = append(doc.Collaborators, userID)
	}
	return copyDocument(doc), nil
}

func (s *MemoryFileStore) Save(ctx context.Context, id, code, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byID[id]
	if !ok || doc.IsDeleted {
		return 0, ErrNotFound
	}
	if !HasEditAccess(doc, userID) {
		return 0, ErrAccessDenied
	}

	doc.Code = code
	doc.Version++
	s.touch(doc)
	return doc.Version, nil
}

func (s *MemoryFileStore) AutoSave(ctx context.Context, ref Ref, code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.find(ref)
	if !ok || doc.IsDeleted {
		return ErrNotFound
	}
	if !HasEditAccess(doc, userID) {
		return ErrAccessDenied
	}
	if doc.Code == code {
		return nil
	}

	doc.Code = code
	s.touch(doc)
	return nil
}

func (s *MemoryFileStore) Rename(ctx context.Context, id, newName, userID string) (*Document, error) {
	return s.updateFilename(id, userID, func(doc *Document) (string, string) {
		return newName + "." + currentExtension(doc.Filename), doc.Language
	})
}

func (s *MemoryFileStore) ChangeLanguage(ctx context.Context, id, language, userID string) (*Document, error) {
	if err := ValidateLanguage(language); err != nil {
		return nil, err
	}
	return s.updateFilename(id, userID, func(doc *Document) (string, string) {
		return baseName(doc.Filename) + "." + ExtensionForLanguage(language), language
	})
}

func (s *MemoryFileStore) ChangeExtension(ctx context.Context, id, ext, userID string) (*Document, error) {
	if err := ValidateExtension(ext); err != nil {
		return nil, err
	}
	return s.updateFilename(id, userID, func(doc *Document) (string, string) {
		return baseName(doc.Filename) + "." + ext, doc.Language
	})
}

func (s *MemoryFileStore) updateFilename(id, userID string, derive func(*Document) (string, string)) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byID[id]
	if !ok || doc.IsDeleted {
		return nil, ErrNotFound
	}
	if !HasEditAccess(doc, userID) {
		return nil, ErrAccessDenied
	}

	doc.Filename, doc.Language = derive(doc)
	s.touch(doc)
	return copyDocument(doc), nil
}

func (s *MemoryFileStore) SoftDelete(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if doc.OwnerID != userID {
		return ErrAccessDenied
	}
	doc.IsDeleted = true
	return nil
}

func (s *MemoryFileStore) Restore(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !HasEditAccess(doc, userID) {
		return ErrAccessDenied
	}
	doc.IsDeleted = false
	return nil
}

func (s *MemoryFileStore) ListForUser(ctx context.Context, userID string, recentOnly bool) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var documents []*Document
	for _, doc := range s.byID {
		if doc.IsDeleted {
			continue
		}
		if HasEditAccess(doc, userID) {
			documents = append(documents, copyDocument(doc))
		}
	}

	sort.Slice(documents, func(i, j int) bool {
		if !documents[i].UpdatedAt.Equal(documents[j].UpdatedAt) {
			return documents[i].UpdatedAt.After(documents[j].UpdatedAt)
		}
		return s.seq[documents[i].ID] > s.seq[documents[j].ID]
	})

	if recentOnly && len(documents) > RecentLimit {
		documents = documents[:RecentLimit]
	}
	return documents, nil
}

// Compile-time check that MemoryFileStore implements FileStore.
var _ FileStore = (*MemoryFileStore)(nil)
