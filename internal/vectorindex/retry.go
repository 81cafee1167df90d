package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds the exponential backoff applied to index operations.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the embedded algorithm defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// retryingIndex decorates an Index with bounded exponential retry. Exhausted
// retries surface as ErrIndexOperation so callers can tell a transient index
// failure from a permanent algorithmic error.
type retryingIndex struct {
	inner  Index
	policy RetryPolicy
	log    zerolog.Logger
}

// WithRetry wraps an index with the retry policy.
func WithRetry(inner Index, policy RetryPolicy, log zerolog.Logger) Index {
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	return &retryingIndex{inner: inner, policy: policy, log: log}
}

func (r *retryingIndex) retry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialInterval
	bo.MaxInterval = r.policy.MaxInterval

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := fn(); err != nil {
			r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("vector index operation failed")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, r.policy.MaxAttempts-1), ctx))
	if err != nil {
		return fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, ErrIndexOperation, err)
	}
	return nil
}

func (r *retryingIndex) Upsert(ctx context.Context, id string, vector []float32, payload Payload) error {
	return r.retry(ctx, "upsert", func() error {
		return r.inner.Upsert(ctx, id, vector, payload)
	})
}

func (r *retryingIndex) Search(ctx context.Context, query []float32, filter Filter, limit int, minScore float64) ([]Match, error) {
	var matches []Match
	err := r.retry(ctx, "search", func() error {
		var err error
		matches, err = r.inner.Search(ctx, query, filter, limit, minScore)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *retryingIndex) Delete(ctx context.Context, id string) error {
	return r.retry(ctx, "delete", func() error {
		return r.inner.Delete(ctx, id)
	})
}
