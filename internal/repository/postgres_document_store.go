package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresDocumentStore keeps documents in a jsonb column. Partial updates
// are merged by the database in a single statement.
type PostgresDocumentStore struct {
	pool     *pgxpool.Pool
	watchers *watchers
}

func NewPostgresDocumentStore(pool *pgxpool.Pool) *PostgresDocumentStore {
	return &PostgresDocumentStore{pool: pool, watchers: newWatchers()}
}

func (r *PostgresDocumentStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := r.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (r *PostgresDocumentStore) CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO documents (collection, id, fields, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, now(), now())
		 RETURNING id, fields, created_at, updated_at`,
		collection,
		id,
		string(body),
	)
	doc, err := scanPgDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create %s document: %w", collection, err)
	}

	r.watchers.notify(collection, *doc, true)
	return nil
}

func (r *PostgresDocumentStore) Read(ctx context.Context, collection, id string) (*Document, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, fields, created_at, updated_at
		 FROM documents
		 WHERE collection = $1 AND id = $2`,
		collection,
		id,
	)
	return scanPgDocument(row)
}

func (r *PostgresDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", collection, err)
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE documents
		 SET fields = fields || $3::jsonb,
		     updated_at = now()
		 WHERE collection = $1 AND id = $2
		 RETURNING id, fields, created_at, updated_at`,
		collection,
		id,
		string(body),
	)
	doc, err := scanPgDocument(row)
	if err != nil {
		return nil, err
	}

	r.watchers.notify(collection, *doc, true)
	return doc, nil
}

func (r *PostgresDocumentStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := r.pool.Exec(
		ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete %s document: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.watchers.notify(collection, Document{ID: id}, false)
	return nil
}

func (r *PostgresDocumentStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, fields, created_at, updated_at
		 FROM documents
		 WHERE collection = $1
		 ORDER BY created_at, id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, scanErr := scanPgDocument(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (r *PostgresDocumentStore) Subscribe(collection, id string, fn ChangeFunc) func() {
	return r.watchers.subscribe(collection, id, fn)
}

func scanPgDocument(row pgx.Row) (*Document, error) {
	doc := Document{}
	var body []byte
	var createdAt, updatedAt time.Time
	if err := row.Scan(&doc.ID, &body, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal(body, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	doc.CreatedAt = createdAt.UTC()
	doc.UpdatedAt = updatedAt.UTC()
	return &doc, nil
}
