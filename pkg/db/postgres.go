package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
)

// PostgresFileStore implements FileStore using PostgreSQL.
type PostgresFileStore struct {
	db *sql.DB
}

// NewPostgresFileStore opens the database and ensures the schema exists.
func NewPostgresFileStore(connStr string) (*PostgresFileStore, error) {
	database, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresFileStore{db: database}

	if err := store.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *PostgresFileStore) Close() error {
	return s.db.Close()
}

const docColumns = `id, room_id, owner_id, collaborators, filename, language, folder, code, version, is_deleted, is_public, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var collaborators pq.StringArray
	err := row.Scan(
		&doc.ID,
		&doc.RoomID,
		&doc.OwnerID,
		&collaborators,
		&doc.Filename,
		&doc.Language,
		&doc.Folder,
		&doc.Code,
		&doc.Version,
		&doc.IsDeleted,
		&doc.IsPublic,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Collaborators = collaborators
	return doc, nil
}

// FindOrCreate inserts a new document for roomID or returns the existing
// one. The insert uses a single conditional upsert so that concurrent
// callers for the same room always converge on one record, with exactly one
// caller observing created=true.
func (s *PostgresFileStore) FindOrCreate(ctx context.Context, roomID, ownerID, language string) (*Document, bool, error) {
	if err := ValidateLanguage(language); err != nil {
		return nil, false, err
	}

	ext := ExtensionForLanguage(language)
	now := time.Now()

	query := fmt.Sprintf(`
		INSERT INTO documents (%s)
		VALUES ($1, $2, $3, $4, $5, $6, 'root', $7, 1, FALSE, FALSE, $8, $8)
		ON CONFLICT (room_id) DO NOTHING
		RETURNING %s
	`, docColumns, docColumns)

	row := s.db.QueryRowContext(ctx, query,
		ksuid.New().String(),
		roomID,
		ownerID,
		pq.StringArray{},
		"main."+ext,
		language,
		StarterTemplate(language),
		now,
	)

	doc, err := scanDocument(row)
	if err == nil {
		return doc, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create document: %w", err)
	}

	// Conflict: another caller won the insert.
	doc, err = s.get(ctx, ByRoom(roomID), true)
	if err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

// get resolves a document by durable or room identifier. Soft-deleted rows
// are reported as ErrNotFound unless includeDeleted is set.
func (s *PostgresFileStore) get(ctx context.Context, ref Ref, includeDeleted bool) (*Document, error) {
	column := "id"
	if ref.Kind == RefByRoom {
		column = "room_id"
	}

	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s = $1`, docColumns, column)

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, ref.Value))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc.IsDeleted && !includeDeleted {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Get resolves a document without visibility filtering.
func (s *PostgresFileStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	return s.get(ctx, ref, true)
}

// Open resolves the document, enforces view access and records the
// requester as a collaborator when they are neither owner nor already in
// the set. The conditional update keeps set semantics under concurrency:
// the row lock serializes writers and the second one re-evaluates the
// predicate against the grown array.
func (s *PostgresFileStore) Open(ctx context.Context, ref Ref, userID string) (*Document, error) {
	doc, err := s.get(ctx, ref, false)
	if err != nil {
		return nil, err
	}
	if !HasViewAccess(doc, userID) {
		return nil, ErrAccessDenied
	}
	if HasEditAccess(doc, userID) {
		return doc, nil
	}

	// updated_at stays untouched: opening a file is not an edit, so it must
	// not move the file in recency ordering. The memory store makes the same
	// choice.
	query := `
		UPDATE documents
		SET collaborators = array_append(collaborators, $2)
		WHERE id = $1 AND owner_id <> $2 AND NOT ($2 = ANY(collaborators))
		RETURNING collaborators
	`

	var collaborators pq.StringArray
	err = s.db.QueryRowContext(ctx, query, doc.ID, userID).Scan(&collaborators)
	if err == sql.ErrNoRows {
		// A concurrent open already added the requester.
		return s.get(ctx, ByID(doc.ID), false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add collaborator: %w", err)
	}

	doc.Collaborators = collaborators
	return doc, nil
}

// Save replaces the code and increments the version.
func (s *PostgresFileStore) Save(ctx context.Context, id, code, userID string) (int, error) {
	doc, err := s.get(ctx, ByID(id), false)
	if err != nil {
		return 0, err
	}
	if !HasEditAccess(doc, userID) {
		return 0, ErrAccessDenied
	}

	query := `
		UPDATE documents
		SET code = $2, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING version
	`

	var version int
	if err := s.db.QueryRowContext(ctx, query, id, code, time.Now()).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to save document: %w", err)
	}
	return version, nil
}

// AutoSave persists code without incrementing the version. Identical code
// is a no-op.
func (s *PostgresFileStore) AutoSave(ctx context.Context, ref Ref, code, userID string) error {
	doc, err := s.get(ctx, ref, false)
	if err != nil {
		return err
	}
	if !HasEditAccess(doc, userID) {
		return ErrAccessDenied
	}
	if doc.Code == code {
		return nil
	}

	query := `
		UPDATE documents
		SET code = $2, updated_at = $3
		WHERE id = $1 AND code IS DISTINCT FROM $2
	`

	if _, err := s.db.ExecContext(ctx, query, doc.ID, code, time.Now()); err != nil {
		return fmt.Errorf("failed to auto-save document: %w", err)
	}
	return nil
}

// Rename replaces the filename stem, keeping the current extension.
func (s *PostgresFileStore) Rename(ctx context.Context, id, newName, userID string) (*Document, error) {
	return s.updateFilename(ctx, id, userID, func(doc *Document) (string, string) {
		return newName + "." + currentExtension(doc.Filename), doc.Language
	})
}

// ChangeLanguage switches the language and regenerates the extension.
func (s *PostgresFileStore) ChangeLanguage(ctx context.Context, id, language, userID string) (*Document, error) {
	if err := ValidateLanguage(language); err != nil {
		return nil, err
	}
	return s.updateFilename(ctx, id, userID, func(doc *Document) (string, string) {
		return baseName(doc.Filename) + "." + ExtensionForLanguage(language), language
	})
}

// ChangeExtension sets the extension directly, restricted to the allow-list.
func (s *PostgresFileStore) ChangeExtension(ctx context.Context, id, ext, userID string) (*Document, error) {
	if err := ValidateExtension(ext); err != nil {
		return nil, err
	}
	return s.updateFilename(ctx, id, userID, func(doc *Document) (string, string) {
		return baseName(doc.Filename) + "." + ext, doc.Language
	})
}

func (s *PostgresFileStore) updateFilename(ctx context.Context, id, userID string, derive func(*Document) (string, string)) (*Document, error) {
	doc, err := s.get(ctx, ByID(id), false)
	if err != nil {
		return nil, err
	}
	if !HasEditAccess(doc, userID) {
		return nil, ErrAccessDenied
	}

	filename, language := derive(doc)

	query := fmt.Sprintf(`
		UPDATE documents
		SET filename = $2, language = $3, updated_at = $4
		WHERE id = $1
		RETURNING %s
	`, docColumns)

	updated, err := scanDocument(s.db.QueryRowContext(ctx, query, id, filename, language, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return updated, nil
}

// SoftDelete marks the document deleted. Owner only.
func (s *PostgresFileStore) SoftDelete(ctx context.Context, id, userID string) error {
	doc, err := s.get(ctx, ByID(id), true)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return ErrAccessDenied
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET is_deleted = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Restore clears the deleted flag. Idempotent for non-deleted documents.
func (s *PostgresFileStore) Restore(ctx context.Context, id, userID string) error {
	doc, err := s.get(ctx, ByID(id), true)
	if err != nil {
		return err
	}
	if !HasEditAccess(doc, userID) {
		return ErrAccessDenied
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET is_deleted = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to restore document: %w", err)
	}
	return nil
}

// ListForUser returns the non-deleted documents the user owns or
// collaborates on, most recently modified first.
func (s *PostgresFileStore) ListForUser(ctx context.Context, userID string, recentOnly bool) ([]*Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE is_deleted = FALSE AND (owner_id = $1 OR $1 = ANY(collaborators))
		ORDER BY updated_at DESC
	`, docColumns)
	if recentOnly {
		query += fmt.Sprintf(" LIMIT %d", RecentLimit)
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return documents, nil
}

// Compile-time check that PostgresFileStore implements FileStore.
var _ FileStore = (*PostgresFileStore)(nil)
