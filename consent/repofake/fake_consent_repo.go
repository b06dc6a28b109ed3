package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/questlog/identity/consent"
)

var _ consent.Repo = (*FakeConsentRepo)(nil)

// FakeConsentRepo is an in-memory consent store for tests.
type FakeConsentRepo struct {
	consents map[string]*consent.Consent
	lock     sync.RWMutex
}

func NewFakeConsentRepo() *FakeConsentRepo {
	return &FakeConsentRepo{
		consents: make(map[string]*consent.Consent),
	}
}

func key(userID, clientID string) string {
	return userID + "\x00" + clientID
}

func (r *FakeConsentRepo) Get(_ context.Context, userID, clientID string) (*consent.Consent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.consents[key(userID, clientID)]
	if !ok {
		return nil, consent.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *FakeConsentRepo) Upsert(_ context.Context, c *consent.Consent) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *c
	r.consents[key(c.UserID, c.ClientID)] = &copied
	return nil
}

func (r *FakeConsentRepo) Touch(_ context.Context, userID, clientID string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c, ok := r.consents[key(userID, clientID)]
	if !ok {
		return consent.ErrNotFound
	}
	c.LastUsedAt = at
	return nil
}
