package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"podshorts/internal/db"
	"podshorts/internal/model"
)

// ErrNotFound is returned when no ledger row matches.
var ErrNotFound = errors.New("upload not found")

// Store wraps access to the upload ledger via the db Queries.
type Store struct {
	DB *sql.DB
}

// Open creates a pooled *sql.DB using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(30 * time.Minute)
	return database, nil
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

func (s *Store) withQueries(ctx context.Context, fn func(ctx context.Context, q *db.Queries) error) error {
	return fn(ctx, db.New(s.DB))
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// InsertUpload records a successful upload. A missing id is generated.
func (s *Store) InsertUpload(ctx context.Context, rec model.UploadRecord) (model.UploadRecord, error) {
	id := uuid.New()
	if rec.ID != "" {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return model.UploadRecord{}, fmt.Errorf("upload id: %w", err)
		}
		id = parsed
	}

	var out model.UploadRecord
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		row, err := q.InsertUpload(ctx, db.InsertUploadParams{
			ID:        id,
			Username:  rec.Username,
			Source:    string(rec.Source),
			SourceRef: rec.SourceRef,
			SecureUrl: rec.SecureURL,
			PublicID:  rec.PublicID,
			Attempts:  int32(rec.Attempts),
			Bytes:     rec.Bytes,
			Metadata:  nullRaw(rec.Metadata),
		})
		if err != nil {
			return err
		}
		out = toRecord(row)
		return nil
	})
	return out, err
}

// ListUploadsByUser returns the newest uploads for username first.
func (s *Store) ListUploadsByUser(ctx context.Context, username string, limit int) ([]model.UploadRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.UploadRecord
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		rows, err := q.ListUploadsByUser(ctx, db.ListUploadsByUserParams{Username: username, Limit: int32(limit)})
		if err != nil {
			return err
		}
		out = make([]model.UploadRecord, 0, len(rows))
		for _, r := range rows {
			out = append(out, toRecord(r))
		}
		return nil
	})
	return out, err
}

// GetUploadByPublicID returns the latest upload of a Cloudinary asset.
func (s *Store) GetUploadByPublicID(ctx context.Context, publicID string) (model.UploadRecord, error) {
	var out model.UploadRecord
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		row, err := q.GetUploadByPublicID(ctx, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = toRecord(row)
		return nil
	})
	return out, err
}

// DeleteUploadsBefore removes ledger rows created before cutoff.
func (s *Store) DeleteUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		n, err = q.DeleteUploadsBefore(ctx, cutoff)
		return err
	})
	return n, err
}

func nullRaw(m json.RawMessage) pqtype.NullRawMessage {
	if len(m) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: m, Valid: true}
}

func toRecord(u db.Upload) model.UploadRecord {
	rec := model.UploadRecord{
		ID:        u.ID.String(),
		Username:  u.Username,
		Source:    model.UploadSource(u.Source),
		SourceRef: u.SourceRef,
		SecureURL: u.SecureUrl,
		PublicID:  u.PublicID,
		Attempts:  int(u.Attempts),
		Bytes:     u.Bytes,
		CreatedAt: u.CreatedAt,
	}
	if u.Metadata.Valid {
		rec.Metadata = u.Metadata.RawMessage
	}
	return rec
}
