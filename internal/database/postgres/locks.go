package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// lockPollInterval is how often a waiter re-attempts the advisory lock.
const lockPollInterval = 50 * time.Millisecond

// lockID maps a staleness key to a PostgreSQL advisory lock ID.
func lockID(key database.StalenessKey) int64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", key.PersonID, key.ModelVersion, key.CentroidVersion)))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// WithKeyLock runs fn while holding a session-level advisory lock for the
// key, pinned to a dedicated connection. Session level rather than
// transaction level: the guarded rebuild talks to the vector index between
// database writes, so no single transaction can span it. When ctx expires
// before the lock is acquired, the error wraps database.ErrLockContention.
func (r *CentroidRepository) WithKeyLock(ctx context.Context, key database.StalenessKey, fn func(ctx context.Context) error) error {
	conn, err := r.pool.DB().Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer conn.Close()

	id := lockID(key)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", database.ErrLockContention, ctx.Err())
			}
			return fmt.Errorf("try advisory lock: %w", err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", database.ErrLockContention, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	defer func() {
		// Release even when ctx is already cancelled; closing the
		// connection would drop the lock anyway, but an explicit unlock
		// returns the connection to the pool clean.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		var released bool
		_ = conn.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", id).Scan(&released)
	}()

	return fn(ctx)
}
