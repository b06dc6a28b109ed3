package users

import "context"

// Repo reads and writes identity-service user records.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	SetStatus(ctx context.Context, id string, status Status) error
}
