package repository

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Document struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ChangeFunc receives the document after a write. exists is false once the
// document has been deleted.
type ChangeFunc func(doc Document, exists bool)

// DocumentStore is a collection-keyed store of flat JSON documents.
type DocumentStore interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error
	Read(ctx context.Context, collection, id string) (*Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]Document, error)
	Subscribe(collection, id string, fn ChangeFunc) (unsubscribe func())
}

func mergeFields(current, partial map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(partial))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}
