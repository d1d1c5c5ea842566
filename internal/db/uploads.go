package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Upload struct {
	ID        uuid.UUID
	Username  string
	Source    string
	SourceRef string
	SecureUrl string
	PublicID  string
	Attempts  int32
	Bytes     int64
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
}

const uploadColumns = `id, username, source, source_ref, secure_url, public_id, attempts, bytes, metadata, created_at`

func scanUpload(row interface{ Scan(...interface{}) error }) (Upload, error) {
	var i Upload
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Source,
		&i.SourceRef,
		&i.SecureUrl,
		&i.PublicID,
		&i.Attempts,
		&i.Bytes,
		&i.Metadata,
		&i.CreatedAt,
	)
	return i, err
}

const insertUpload = `-- name: InsertUpload :one
INSERT INTO uploads (id, username, source, source_ref, secure_url, public_id, attempts, bytes, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + uploadColumns

type InsertUploadParams struct {
	ID        uuid.UUID
	Username  string
	Source    string
	SourceRef string
	SecureUrl string
	PublicID  string
	Attempts  int32
	Bytes     int64
	Metadata  pqtype.NullRawMessage
}

func (q *Queries) InsertUpload(ctx context.Context, arg InsertUploadParams) (Upload, error) {
	row := q.db.QueryRowContext(ctx, insertUpload,
		arg.ID,
		arg.Username,
		arg.Source,
		arg.SourceRef,
		arg.SecureUrl,
		arg.PublicID,
		arg.Attempts,
		arg.Bytes,
		arg.Metadata,
	)
	return scanUpload(row)
}

const listUploadsByUser = `-- name: ListUploadsByUser :many
SELECT ` + uploadColumns + `
FROM uploads
WHERE username = $1
ORDER BY created_at DESC
LIMIT $2`

type ListUploadsByUserParams struct {
	Username string
	Limit    int32
}

func (q *Queries) ListUploadsByUser(ctx context.Context, arg ListUploadsByUserParams) ([]Upload, error) {
	rows, err := q.db.QueryContext(ctx, listUploadsByUser, arg.Username, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Upload
	for rows.Next() {
		i, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUploadByPublicID = `-- name: GetUploadByPublicID :one
SELECT ` + uploadColumns + `
FROM uploads
WHERE public_id = $1
ORDER BY created_at DESC
LIMIT 1`

func (q *Queries) GetUploadByPublicID(ctx context.Context, publicID string) (Upload, error) {
	row := q.db.QueryRowContext(ctx, getUploadByPublicID, publicID)
	return scanUpload(row)
}

const deleteUploadsBefore = `-- name: DeleteUploadsBefore :execrows
DELETE FROM uploads
WHERE created_at < $1`

func (q *Queries) DeleteUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteUploadsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
