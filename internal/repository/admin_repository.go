package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warnet/backend/internal/model"
)

type AdminRepository struct {
	docs DocumentStore
}

func NewAdminRepository(docs DocumentStore) *AdminRepository {
	return &AdminRepository{docs: docs}
}

func (r *AdminRepository) Create(ctx context.Context, admin *model.Admin) error {
	if err := r.docs.CreateWithID(ctx, model.CollectionAdmins, admin.Email, admin.Fields()); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("create admin: %w", err)
	}
	admin.ID = admin.Email
	return nil
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	doc, err := r.docs.Read(ctx, model.CollectionAdmins, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}

	admin, err := model.AdminFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *AdminRepository) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	err := r.docs.CreateWithID(ctx, model.CollectionRevoked, tokenID, map[string]any{
		"expiresAt": model.FormatTimestamp(expiresAt),
	})
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *AdminRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := r.docs.Read(ctx, model.CollectionRevoked, tokenID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return true, nil
}
