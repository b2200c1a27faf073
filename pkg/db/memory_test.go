package db

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestFindOrCreatePython(t *testing.T) {
	store := NewMemoryFileStore()
	roomID := uuid.New().String()

	doc, created, err := store.FindOrCreate(context.Background(), roomID, "owner", "python")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}
	if doc.Filename != "main.py" {
		t.Errorf("filename = %q, want main.py", doc.Filename)
	}
	if doc.Code != `print("Hello World")` {
		t.Errorf("unexpected starter code: %q", doc.Code)
	}
	if doc.Version != 1 {
		t.Errorf("version = %d, want 1", doc.Version)
	}
	if doc.OwnerID != "owner" {
		t.Errorf("owner = %q", doc.OwnerID)
	}
}

func TestFindOrCreateRejectsUnknownLanguage(t *testing.T) {
	store := NewMemoryFileStore()
	_, _, err := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "cobol")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestFindOrCreateConcurrent(t *testing.T) {
	store := NewMemoryFileStore()
	roomID := uuid.New().String()

	const n = 50
	ids := make([]string, n)
	createdCount := make([]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, created, err := store.FindOrCreate(context.Background(), roomID, "owner", "go")
			if err != nil {
				t.Errorf("FindOrCreate failed: %v", err)
				return
			}
			ids[i] = doc.ID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	creates := 0
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got id %q, caller 0 got %q", i, ids[i], ids[0])
		}
	}
	for _, c := range createdCount {
		if c {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("expected exactly 1 creation, got %d", creates)
	}
}

func TestOpenAddsCollaboratorOnce(t *testing.T) {
	store := NewMemoryFileStore()
	roomID := uuid.New().String()
	doc, _, _ := store.FindOrCreate(context.Background(), roomID, "owner", "go")

	// Stranger access only works on public files.
	store.byID[doc.ID].IsPublic = true
	before, _ := store.Get(context.Background(), ByID(doc.ID))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Open(context.Background(), ByRoom(roomID), "visitor"); err != nil {
				t.Errorf("Open failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.Get(context.Background(), ByID(doc.ID))
	count := 0
	for _, id := range got.Collaborators {
		if id == "visitor" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("visitor appears %d times in collaborators, want 1", count)
	}

	// The visitor now has edit access through the collaborator set.
	if !HasEditAccess(got, "visitor") {
		t.Error("visitor should have edit access after open")
	}

	// Opening is not an edit, so it must not move the file in recency
	// ordering.
	if !got.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("open must not touch UpdatedAt")
	}
}

func TestOpenDeniesStrangerOnPrivateFile(t *testing.T) {
	store := NewMemoryFileStore()
	roomID := uuid.New().String()
	store.FindOrCreate(context.Background(), roomID, "owner", "go")

	_, err := store.Open(context.Background(), ByRoom(roomID), "stranger")
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestSaveIncrementsVersion(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "go")

	v1, err := store.Save(context.Background(), doc.ID, "package main", "owner")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	v2, err := store.Save(context.Background(), doc.ID, "package main\n", "owner")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if v1 != 2 || v2 != 3 {
		t.Errorf("versions = %d, %d; want 2, 3", v1, v2)
	}
}

func TestSaveDeniedForStranger(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "go")

	if _, err := store.Save(context.Background(), doc.ID, "x", "stranger"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestAutoSaveKeepsVersion(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "python")

	if err := store.AutoSave(context.Background(), ByID(doc.ID), "print(1)", "owner"); err != nil {
		t.Fatalf("AutoSave failed: %v", err)
	}

	got, _ := store.Get(context.Background(), ByID(doc.ID))
	if got.Code != "print(1)" {
		t.Errorf("code = %q", got.Code)
	}
	if got.Version != 1 {
		t.Errorf("auto-save must not bump version, got %d", got.Version)
	}
}

func TestAutoSaveNoOpOnIdenticalCode(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "python")

	before, _ := store.Get(context.Background(), ByID(doc.ID))
	if err := store.AutoSave(context.Background(), ByID(doc.ID), before.Code, "owner"); err != nil {
		t.Fatalf("AutoSave failed: %v", err)
	}
	after, _ := store.Get(context.Background(), ByID(doc.ID))

	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("identical code should not touch the document")
	}
}

func TestRenameKeepsExtension(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "python")

	renamed, err := store.Rename(context.Background(), doc.ID, "solver", "owner")
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if renamed.Filename != "solver.py" {
		t.Errorf("filename = %q, want solver.py", renamed.Filename)
	}
}

func TestChangeLanguageRegeneratesExtension(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "python")

	changed, err := store.ChangeLanguage(context.Background(), doc.ID, "rust", "owner")
	if err != nil {
		t.Fatalf("ChangeLanguage failed: %v", err)
	}
	if changed.Filename != "main.rs" {
		t.Errorf("filename = %q, want main.rs", changed.Filename)
	}
	if changed.Language != "rust" {
		t.Errorf("language = %q, want rust", changed.Language)
	}
}

func TestChangeExtensionAllowList(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "python")

	changed, err := store.ChangeExtension(context.Background(), doc.ID, "txt", "owner")
	if err != nil {
		t.Fatalf("ChangeExtension failed: %v", err)
	}
	if changed.Filename != "main.txt" {
		t.Errorf("filename = %q, want main.txt", changed.Filename)
	}

	if _, err := store.ChangeExtension(context.Background(), doc.ID, "exe", "owner"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSoftDeleteHidesDocument(t *testing.T) {
	store := NewMemoryFileStore()
	roomID := uuid.New().String()
	doc, _, _ := store.FindOrCreate(context.Background(), roomID, "owner", "go")

	if err := store.SoftDelete(context.Background(), doc.ID, "stranger"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("non-owner delete: expected ErrAccessDenied, got %v", err)
	}
	if err := store.SoftDelete(context.Background(), doc.ID, "owner"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	// Deleted documents disappear from open, for the owner too.
	if _, err := store.Open(context.Background(), ByID(doc.ID), "owner"); !errors.Is(err, ErrNotFound) {
		t.Errorf("open after delete: expected ErrNotFound, got %v", err)
	}

	docs, _ := store.ListForUser(context.Background(), "owner", false)
	if len(docs) != 0 {
		t.Errorf("deleted document still listed: %d", len(docs))
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	store := NewMemoryFileStore()
	doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "go")

	store.SoftDelete(context.Background(), doc.ID, "owner")
	if err := store.Restore(context.Background(), doc.ID, "owner"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, err := store.Open(context.Background(), ByID(doc.ID), "owner"); err != nil {
		t.Errorf("open after restore failed: %v", err)
	}

	// Restoring a live document succeeds and changes nothing.
	if err := store.Restore(context.Background(), doc.ID, "owner"); err != nil {
		t.Errorf("restore on live document failed: %v", err)
	}
}

func TestListForUserOrderingAndCap(t *testing.T) {
	store := NewMemoryFileStore()

	var ids []string
	for i := 0; i < RecentLimit+3; i++ {
		doc, _, _ := store.FindOrCreate(context.Background(), uuid.New().String(), "owner", "go")
		ids = append(ids, doc.ID)
	}

	// Touch the first document so it becomes the most recent.
	if _, err := store.Save(context.Background(), ids[0], "fresh", "owner"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	docs, err := store.ListForUser(context.Background(), "owner", false)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(docs) != RecentLimit+3 {
		t.Fatalf("listed %d documents, want %d", len(docs), RecentLimit+3)
	}
	if docs[0].ID != ids[0] {
		t.Errorf("most recently modified should come first")
	}

	recent, err := store.ListForUser(context.Background(), "owner", true)
	if err != nil {
		t.Fatalf("ListForUser(recent) failed: %v", err)
	}
	if len(recent) != RecentLimit {
		t.Errorf("recent listing has %d entries, want %d", len(recent), RecentLimit)
	}

	// Other users see nothing.
	other, _ := store.ListForUser(context.Background(), "someone-else", false)
	if len(other) != 0 {
		t.Errorf("stranger sees %d documents", len(other))
	}
}
