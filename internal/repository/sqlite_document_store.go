package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLiteDocumentStore struct {
	db       *sql.DB
	watchers *watchers
}

func NewSQLiteDocumentStore(db *sql.DB) *SQLiteDocumentStore {
	return &SQLiteDocumentStore{db: db, watchers: newWatchers()}
}

func (r *SQLiteDocumentStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := r.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLiteDocumentStore) CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	now := time.Now().UTC()
	stamp := formatTime(now)
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO documents (collection, id, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		collection,
		id,
		string(body),
		stamp,
		stamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create %s document: %w", collection, err)
	}

	r.watchers.notify(collection, Document{ID: id, Fields: fields, CreatedAt: now, UpdatedAt: now}, true)
	return nil
}

func (r *SQLiteDocumentStore) Read(ctx context.Context, collection, id string) (*Document, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, fields, created_at, updated_at
		 FROM documents
		 WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	return scanDocument(row)
}

func (r *SQLiteDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id, fields, created_at, updated_at
		 FROM documents
		 WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	doc.Fields = mergeFields(doc.Fields, fields)
	doc.UpdatedAt = time.Now().UTC()
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", collection, err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE documents
		 SET fields = ?,
		     updated_at = ?
		 WHERE collection = ? AND id = ?`,
		string(body),
		formatTime(doc.UpdatedAt),
		collection,
		id,
	); err != nil {
		return nil, fmt.Errorf("update %s document: %w", collection, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	r.watchers.notify(collection, *doc, true)
	return doc, nil
}

func (r *SQLiteDocumentStore) Delete(ctx context.Context, collection, id string) error {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete %s document: %w", collection, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s document: %w", collection, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.watchers.notify(collection, Document{ID: id}, false)
	return nil
}

func (r *SQLiteDocumentStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, fields, created_at, updated_at
		 FROM documents
		 WHERE collection = ?
		 ORDER BY created_at, id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
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

func (r *SQLiteDocumentStore) Subscribe(collection, id string, fn ChangeFunc) func() {
	return r.watchers.subscribe(collection, id, fn)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*Document, error) {
	doc := Document{}
	var body string
	var createdAt string
	var updatedAt string
	if err := s.Scan(&doc.ID, &body, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse document created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse document updated_at: %w", err)
	}
	doc.CreatedAt = parsedCreatedAt
	doc.UpdatedAt = parsedUpdatedAt

	return &doc, nil
}
