package db

// createTable creates the documents table if it doesn't exist. The unique
// index on room_id is what makes FindOrCreate's conditional insert atomic.
func (s *PostgresFileStore) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id CHAR(27) PRIMARY KEY,
		room_id UUID NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		collaborators TEXT[] NOT NULL DEFAULT '{}',
		filename TEXT NOT NULL,
		language TEXT NOT NULL,
		folder TEXT NOT NULL DEFAULT 'root',
		code TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
	`

	_, err := s.db.Exec(query)
	return err
}
