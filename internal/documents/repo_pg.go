package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PGRepo is a Postgres-backed DocumentsRepo.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a document row.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, user_id, file_name, file_type, mime_type, size_bytes, storage_provider, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.FileType,
		doc.MimeType,
		doc.SizeBytes,
		nullableString(doc.StorageProvider),
		doc.StorageKey,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID returns a document owned by the user.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	const query = `
SELECT id, user_id, file_name, file_type, mime_type, size_bytes, storage_provider, storage_key, created_at
FROM documents
WHERE id = $1 AND user_id = $2
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, documentID, userID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// GetManyByIDs returns the requested documents in the requested order. A
// missing or foreign document fails the whole lookup.
func (r *PGRepo) GetManyByIDs(ctx context.Context, userID string, documentIDs []string) ([]Document, error) {
	if len(documentIDs) == 0 {
		return []Document{}, nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]any, 0, len(documentIDs)+1)
	args = append(args, userID)
	for i, id := range documentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
SELECT id, user_id, file_name, file_type, mime_type, size_bytes, storage_provider, storage_key, created_at
FROM documents
WHERE user_id = $1 AND id IN (%s)`, strings.Join(placeholders, ", "))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Document, len(documentIDs))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	out := make([]Document, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, doc)
	}
	return out, nil
}

// ListByUser returns documents for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	const query = `
SELECT id, user_id, file_name, file_type, mime_type, size_bytes, storage_provider, storage_key, created_at
FROM documents
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var provider sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.FileType,
		&doc.MimeType,
		&doc.SizeBytes,
		&provider,
		&doc.StorageKey,
		&doc.CreatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if provider.Valid {
		doc.StorageProvider = provider.String
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ DocumentsRepo = (*PGRepo)(nil)
