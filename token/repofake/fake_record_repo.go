package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/questlog/identity/token"
)

var _ token.RecordRepo = (*FakeRecordRepo)(nil)

// FakeRecordRepo is an in-memory issued-token store for tests. Rotate holds
// the lock across revoke and create, mirroring the SQL transaction.
type FakeRecordRepo struct {
	records []*token.IssuedTokenRecord
	lock    sync.Mutex

	// BeforeRotate, when set, runs before Rotate takes the lock. Tests use
	// it to interleave a competing revocation or rotation.
	BeforeRotate func()
}

func NewFakeRecordRepo() *FakeRecordRepo {
	return &FakeRecordRepo{}
}

func (r *FakeRecordRepo) Create(_ context.Context, record *token.IssuedTokenRecord) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *record
	r.records = append(r.records, &copied)
	return nil
}

func (r *FakeRecordRepo) GetByRefreshHash(_ context.Context, clientID, hash string) (*token.IssuedTokenRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if hash == "" {
		return nil, token.ErrRecordNotFound
	}

	// Newest first: records append in creation order.
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.ClientID == clientID && rec.RefreshHash == hash && !rec.Revoked() {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, token.ErrRecordNotFound
}

func (r *FakeRecordRepo) FindByRefreshHash(_ context.Context, hash string) (*token.IssuedTokenRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if hash == "" {
		return nil, token.ErrRecordNotFound
	}
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.RefreshHash == hash && !rec.Revoked() {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, token.ErrRecordNotFound
}

func (r *FakeRecordRepo) GetByJTI(_ context.Context, jti string) (*token.IssuedTokenRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, rec := range r.records {
		if rec.AccessJTI == jti || rec.IDJTI == jti {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, token.ErrRecordNotFound
}

func (r *FakeRecordRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.revokeLocked(id, at)
}

func (r *FakeRecordRepo) Rotate(_ context.Context, oldID string, at time.Time, next *token.IssuedTokenRecord) error {
	if r.BeforeRotate != nil {
		r.BeforeRotate()
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, rec := range r.records {
		if rec.ID != oldID {
			continue
		}
		if rec.RevokedAt != nil {
			// Lost the race: someone rotated or revoked this record first.
			return token.ErrRecordNotFound
		}
		revoked := at
		rec.RevokedAt = &revoked
		copied := *next
		r.records = append(r.records, &copied)
		return nil
	}
	return token.ErrRecordNotFound
}

func (r *FakeRecordRepo) revokeLocked(id string, at time.Time) error {
	for _, rec := range r.records {
		if rec.ID == id {
			if rec.RevokedAt == nil {
				revoked := at
				rec.RevokedAt = &revoked
			}
			return nil
		}
	}
	return token.ErrRecordNotFound
}
