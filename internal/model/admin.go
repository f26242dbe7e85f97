package model

import (
	"fmt"
	"time"
)

// Admin is a signed-in operator. Admins are keyed by normalized email.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a Admin) Fields() map[string]any {
	return map[string]any{
		"email":        a.Email,
		"passwordHash": a.PasswordHash,
		"createdAt":    FormatTimestamp(a.CreatedAt),
	}
}

func AdminFromFields(id string, fields map[string]any) (Admin, error) {
	r := fieldReader{fields: fields}
	admin := Admin{
		ID:           id,
		Email:        r.string("email"),
		PasswordHash: r.string("passwordHash"),
		CreatedAt:    r.time("createdAt"),
	}
	if r.err != nil {
		return Admin{}, fmt.Errorf("decode admin %s: %w", id, r.err)
	}
	return admin, nil
}
