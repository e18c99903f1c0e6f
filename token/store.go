package token

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const consumeMaxRetries = 4

var (
	// ErrNotFound covers unknown tokens and, through the lookup paths,
	// everything that is no longer live.
	ErrNotFound = errors.New("token not found")
	// ErrExpired is returned by Consume when the validity window lapsed.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned by Consume for explicitly invalidated tokens.
	ErrRevoked = errors.New("token revoked")
	// ErrExhausted is returned when the usage quota is already spent.
	ErrExhausted = errors.New("token quota exhausted")
	// ErrNotStarted is returned when a ticket window has not opened yet.
	ErrNotStarted = errors.New("token validity not started")
	// ErrTerminal is returned by Revoke when the token already reached a
	// terminal state other than REVOKED.
	ErrTerminal = errors.New("token already terminal")
	// ErrShortCodeCollision is returned by Save when the short code is
	// already claimed by another live token.
	ErrShortCodeCollision = errors.New("short code already claimed")
	// ErrRedisUnavailable wraps any Redis transport failure.
	ErrRedisUnavailable = errors.New("token store redis unavailable")
)

// Store is the Redis-backed token repository.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] with the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ct"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) tokenKey(id string) string {
	return s.prefix + ":tok:" + id
}

func (s *Store) bearerKey(hash [32]byte) string {
	return s.prefix + ":bearer:" + hex.EncodeToString(hash[:])
}

func (s *Store) codeKey(code string) string {
	return s.prefix + ":code:" + code
}

func (s *Store) dupKey(tokenID, actor string) string {
	return s.prefix + ":dup:" + tokenID + ":" + actor
}

func (s *Store) auditKey(tokenID string) string {
	return s.prefix + ":audit:" + tokenID
}

// Save persists a freshly issued token and its bearer index. When the token
// carries a short code the code slot is claimed first with SET NX; a live
// collision surfaces as [ErrShortCodeCollision] so the issuer can draw a
// new code.
func (s *Store) Save(ctx context.Context, t *Token, ttl time.Duration) error {
	encoded, err := encodeRecord(t)
	if err != nil {
		return err
	}

	if t.ShortCode != "" {
		claimed, err := s.redis.SetNX(ctx, s.codeKey(t.ShortCode), t.ID, ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !claimed {
			return ErrShortCodeCollision
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(t.ID), encoded, ttl)
		pipe.Set(ctx, s.bearerKey(t.BearerHash), t.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// GetByID returns the raw record regardless of status. Prefer the lookup
// methods on hot paths; this is the diagnostic read used by Probe and the
// sweep.
func (s *Store) GetByID(ctx context.Context, id string) (*Token, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeRecord(data)
}

// LookupByBearer resolves a bearer hash to its token. The record is
// returned with its true state, lapsed and terminal tokens included, so
// callers can report why a presentation fails instead of a blanket miss.
// Enforcement stays in Consume.
func (s *Store) LookupByBearer(ctx context.Context, bearerHash [32]byte) (*Token, error) {
	return s.lookupIndexed(ctx, s.bearerKey(bearerHash))
}

// LookupByShortCode resolves a short code the same way. A miss is a miss:
// there is deliberately no fallback to "most recently issued" tokens, which
// would let an unrelated concurrent pairing be hijacked.
func (s *Store) LookupByShortCode(ctx context.Context, code string) (*Token, error) {
	return s.lookupIndexed(ctx, s.codeKey(code))
}

func (s *Store) lookupIndexed(ctx context.Context, indexKey string) (*Token, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.GetByID(ctx, id)
}

// Consume atomically spends one use of the token. The record is re-read and
// re-checked under WATCH, so concurrent consumers racing on the last use
// are serialized: exactly one wins, the rest observe the post-transition
// state. The returned token reflects the state after this consumption.
func (s *Store) Consume(ctx context.Context, id, consumer string, now time.Time) (*Token, error) {
	key := s.tokenKey(id)

	for i := 0; i < consumeMaxRetries; i++ {
		var consumed *Token

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			t, err := decodeRecord(data)
			if err != nil {
				return err
			}

			switch t.Status {
			case StatusRevoked:
				return ErrRevoked
			case StatusUsed:
				return ErrExhausted
			case StatusExpired:
				return ErrExpired
			}

			if now.Unix() >= t.ExpiresAt {
				// Lapsed but not yet swept: flip to EXPIRED in passing so
				// reporting sees the real state.
				t.Status = StatusExpired
				return s.rewrite(ctx, tx, key, t, ErrExpired)
			}
			if t.ValidFrom > 0 && now.Unix() < t.ValidFrom {
				return ErrNotStarted
			}
			if t.UsageCount >= t.UsageLimit {
				return ErrExhausted
			}

			t.UsageCount++
			t.LastConsumedAt = now.Unix()
			t.LastConsumedBy = consumer
			if t.UsageCount >= t.UsageLimit {
				t.Status = StatusUsed
			} else {
				t.Status = StatusActive
			}

			if err := s.rewrite(ctx, tx, key, t, nil); err != nil {
				return err
			}
			consumed = t
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, classifyStoreError(err)
		}
		return consumed, nil
	}

	return nil, fmt.Errorf("%w: consume contention not resolved", ErrRedisUnavailable)
}

// Revoke idempotently moves a live token to REVOKED. Revoking an already
// revoked token succeeds without effect; USED and EXPIRED are reported as
// [ErrTerminal] because they must never revert or relabel.
func (s *Store) Revoke(ctx context.Context, id string, now time.Time) (*Token, error) {
	key := s.tokenKey(id)

	for i := 0; i < consumeMaxRetries; i++ {
		var revoked *Token

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			t, err := decodeRecord(data)
			if err != nil {
				return err
			}

			switch t.Status {
			case StatusRevoked:
				revoked = t
				return nil
			case StatusUsed, StatusExpired:
				return ErrTerminal
			}

			t.Status = StatusRevoked
			if err := s.rewrite(ctx, tx, key, t, nil); err != nil {
				return err
			}
			revoked = t
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, classifyStoreError(err)
		}
		return revoked, nil
	}

	return nil, fmt.Errorf("%w: revoke contention not resolved", ErrRedisUnavailable)
}

// SweepExpired scans for lapsed UNUSED/ACTIVE tokens and marks them
// EXPIRED. Housekeeping only: lookups and Consume already enforce expiry,
// this keeps reporting honest.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var swept int

	iter := s.redis.Scan(ctx, 0, s.prefix+":tok:*", 64).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.redis.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return swept, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		t, err := decodeRecord(data)
		if err != nil {
			continue
		}
		if t.Status.Terminal() || now.Unix() < t.ExpiresAt {
			continue
		}

		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			fresh, err := decodeRecord(current)
			if err != nil {
				return err
			}
			if fresh.Status.Terminal() {
				return nil
			}
			fresh.Status = StatusExpired
			return s.rewrite(ctx, tx, key, fresh, nil)
		}, key)
		switch {
		case err == nil:
			swept++
		case errors.Is(err, redis.TxFailedErr), errors.Is(err, redis.Nil):
			// Lost the race to a concurrent consume or expiry; nothing to sweep.
		default:
			return swept, classifyStoreError(err)
		}
	}
	if err := iter.Err(); err != nil {
		return swept, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return swept, nil
}

// CheckDuplicate reports whether the (token, actor) pair passed within the
// suppression window, and the remaining quota recorded at that time.
func (s *Store) CheckDuplicate(ctx context.Context, tokenID, actor string) (uint32, bool, error) {
	val, err := s.redis.Get(ctx, s.dupKey(tokenID, actor)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	remaining, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, false, nil
	}
	return uint32(remaining), true, nil
}

// MarkDuplicate records a successful consumption so retries within the
// window replay the original outcome instead of re-charging quota.
func (s *Store) MarkDuplicate(ctx context.Context, tokenID, actor string, remaining uint32, window time.Duration) error {
	err := s.redis.Set(ctx, s.dupKey(tokenID, actor), strconv.FormatUint(uint64(remaining), 10), window).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AppendAudit appends one attempt record to the token's append-only trail.
// Required for fraud review: callers must treat a failure here as an
// infrastructure error, not as best-effort logging.
func (s *Store) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.redis.RPush(ctx, s.auditKey(entry.TokenID), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AuditTrail returns the full attempt history of a token in append order.
func (s *Store) AuditTrail(ctx context.Context, tokenID string) ([]AuditEntry, error) {
	raw, err := s.redis.LRange(ctx, s.auditKey(tokenID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries := make([]AuditEntry, 0, len(raw))
	for _, item := range raw {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, errRecordCorrupt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// rewrite persists the mutated record inside the transaction, preserving
// the key's TTL, and returns outcome as the transaction result.
func (s *Store) rewrite(ctx context.Context, tx *redis.Tx, key string, t *Token, outcome error) error {
	updated, err := encodeRecord(t)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, updated, redis.KeepTTL)
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRevoked),
		errors.Is(err, ErrExhausted),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrTerminal),
		errors.Is(err, errRecordCorrupt):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}
