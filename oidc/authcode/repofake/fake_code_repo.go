package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/questlog/identity/oidc/authcode"
)

var _ authcode.Repo = (*FakeCodeRepo)(nil)

// FakeCodeRepo is an in-memory code store for tests. Consume mirrors the
// SQL implementation's compare-and-swap on used_at under a single lock.
type FakeCodeRepo struct {
	codes map[string]*authcode.Code
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[string]*authcode.Code),
	}
}

func (r *FakeCodeRepo) Create(_ context.Context, code *authcode.Code) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *code
	r.codes[code.Code] = &copied
	return nil
}

func (r *FakeCodeRepo) Consume(_ context.Context, code string, now time.Time) (*authcode.Code, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	stored, ok := r.codes[code]
	if !ok {
		return nil, authcode.ErrNotFound
	}
	if stored.UsedAt != nil {
		return nil, authcode.ErrAlreadyUsed
	}
	used := now
	stored.UsedAt = &used
	copied := *stored
	return &copied, nil
}
