package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "rag:session:"
	redisIndexKey  = "rag:sessions"
)

// RedisPersister stores each record as a JSON string and indexes ids in a
// sorted set scored by last activity.
type RedisPersister struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Persister = (*RedisPersister)(nil)

// NewRedisPersister keeps records for ttl; zero keeps them until deleted.
func NewRedisPersister(rdb *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{rdb: rdb, ttl: ttl}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (p *RedisPersister) Save(ctx context.Context, rec Record) error {
	if !ValidID(rec.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, rec.SessionID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey(rec.SessionID), data, p.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(rec.LastActive.Unix()), Member: rec.SessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context, id string) (Record, error) {
	data, err := p.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis load session %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

// List walks the index newest first. Ids whose record expired are pruned
// from the index on the way.
func (p *RedisPersister) List(ctx context.Context, userID string) ([]Info, error) {
	ids, err := p.rdb.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	out := []Info{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}
	values, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load sessions: %w", err)
	}

	var gone []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			gone = append(gone, ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		if userID == "" || rec.UserID == userID {
			out = append(out, rec.Info())
		}
	}
	if len(gone) > 0 {
		p.rdb.ZRem(ctx, redisIndexKey, gone...)
	}
	return out, nil
}

func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisKey(id))
		pipe.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *RedisPersister) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := p.rdb.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis stale sessions: %w", err)
	}
	removed := 0
	for _, id := range ids {
		if err := p.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
