package authrequest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authreq:"

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores pending requests in Redis so that any instance behind a
// load balancer can serve the approve/deny call. Expiry rides on the key TTL.
type RedisRepo struct {
	client  *redis.Client
	nowFunc func() time.Time
}

type RedisOption func(*RedisRepo)

// WithRedisNowFunc overrides the clock used to derive key TTLs.
func WithRedisNowFunc(now func() time.Time) RedisOption {
	return func(r *RedisRepo) {
		r.nowFunc = now
	}
}

func NewRedisRepo(client *redis.Client, options ...RedisOption) *RedisRepo {
	r := &RedisRepo{
		client:  client,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *RedisRepo) Put(ctx context.Context, req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Put] marshal request")
	}

	ttl := req.ExpiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		return errors.New("[RedisRepo.Put] request already expired")
	}

	if err := r.client.Set(ctx, redisKeyPrefix+req.ID, payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Put] redis set")
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*Request, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] redis get")
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] unmarshal request")
	}

	// The key TTL normally handles expiry; the wall-clock check covers a
	// paused clock or an instance with a skewed view of time.
	if req.Expired(r.nowFunc()) {
		_ = r.client.Del(ctx, redisKeyPrefix+id).Err()
		return nil, ErrExpired
	}
	return &req, nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Delete] redis del")
	}
	return nil
}
