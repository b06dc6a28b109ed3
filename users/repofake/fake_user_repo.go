package repofake

import (
	"context"
	"errors"
	"sync"

	"github.com/questlog/identity/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory user store for tests.
type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (r *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	copied := *user
	return &copied, nil
}

func (r *FakeUserRepo) SetStatus(_ context.Context, id string, status users.Status) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	user.Status = status
	return nil
}
