package authrequest

import (
	"context"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo keeps pending requests in process memory. Suitable for a
// single-instance deployment and for tests; multi-instance deployments use
// the Redis repo so any instance can resolve the approve/deny call.
type InMemoryRepo struct {
	requests map[string]*Request
	lock     sync.RWMutex
	nowFunc  func() time.Time
}

type InMemoryOption func(*InMemoryRepo)

// WithNowFunc overrides the clock, primarily for tests.
func WithNowFunc(now func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

func NewInMemoryRepo(options ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		requests: make(map[string]*Request),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Put(_ context.Context, req *Request) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *req
	r.requests[req.ID] = &copied
	return nil
}

// Get returns the request if it exists and is still live. Expired entries
// are dropped lazily at read time and reported as ErrExpired; there is no
// background sweep.
func (r *InMemoryRepo) Get(_ context.Context, id string) (*Request, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Expired(r.nowFunc()) {
		delete(r.requests, id)
		return nil, ErrExpired
	}
	copied := *req
	return &copied, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.requests, id)
	return nil
}
