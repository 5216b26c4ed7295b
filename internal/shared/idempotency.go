package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

// Querier is the subset of pgx.Tx used by stores that run inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a key reused with a different payload.
var ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")

// IdempotencyReplayError reports a key that was already processed for the same payload.
type IdempotencyReplayError struct {
	Module     string
	ResourceID int64
}

func (e *IdempotencyReplayError) Error() string {
	return fmt.Sprintf("idempotent request already processed (%s %d)", e.Module, e.ResourceID)
}

// IdempotencyClaim identifies one keyed request.
type IdempotencyClaim struct {
	Key         string
	Module      string
	Fingerprint string
}

// NewIdempotencyClaim validates the header value and fingerprints the payload.
// An empty key yields a zero claim, which callers skip.
func NewIdempotencyClaim(key, module string, payload []byte) (IdempotencyClaim, error) {
	if key == "" {
		return IdempotencyClaim{}, nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return IdempotencyClaim{}, Validation("Idempotency-Key", "must be a UUID")
	}
	return IdempotencyClaim{Key: key, Module: module, Fingerprint: Fingerprint(payload)}, nil
}

// IsZero reports whether no key was supplied.
func (c IdempotencyClaim) IsZero() bool {
	return c.Key == ""
}

// Fingerprint hashes a request payload.
func Fingerprint(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Claim reserves the key inside q's transaction. A rollback releases it.
func (s *IdempotencyStore) Claim(ctx context.Context, q Querier, claim IdempotencyClaim) error {
	if claim.IsZero() {
		return nil
	}
	if claim.Module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := q.Exec(ctx, `INSERT INTO idempotency_keys (key, module, fingerprint, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (key, module) DO NOTHING`,
		claim.Key, claim.Module, claim.Fingerprint, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var fingerprint string
	var resourceID *int64
	if err := q.QueryRow(ctx, `SELECT fingerprint, resource_id FROM idempotency_keys WHERE key = $1 AND module = $2`,
		claim.Key, claim.Module).Scan(&fingerprint, &resourceID); err != nil {
		return err
	}
	if fingerprint != claim.Fingerprint {
		return ErrIdempotencyConflict
	}
	replay := &IdempotencyReplayError{Module: claim.Module}
	if resourceID != nil {
		replay.ResourceID = *resourceID
	}
	return replay
}

// Complete records the resource created for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, q Querier, claim IdempotencyClaim, resourceID int64) error {
	if claim.IsZero() {
		return nil
	}
	_, err := q.Exec(ctx, `UPDATE idempotency_keys SET resource_id = $3 WHERE key = $1 AND module = $2`,
		claim.Key, claim.Module, resourceID)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
