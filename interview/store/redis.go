package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints in Redis for shared deployments where
// several coordinator processes serve the same interviews.
//
// Layout per interview:
//
//	cp:{interview_id}            ZSET  score=version, member=version
//	cp:{interview_id}:{version}  STRING  {created_at, blob} JSON envelope
//
// Blob keys are written with SETNX, so a concurrent writer landing on
// the same version loses the race cleanly and retries with the next one.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to the Redis instance at addr ("host:port") and
// verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an already-configured client. The store
// takes ownership: Close closes the client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisCheckpoint is the stored form of one version: the opaque blob plus
// its creation time, since Redis rows carry no metadata of their own.
type redisCheckpoint struct {
	CreatedAt time.Time `json:"created_at"`
	Blob      []byte    `json:"blob"`
}

func indexKey(interviewID string) string {
	return "cp:" + interviewID
}

func blobKey(interviewID string, version int) string {
	return "cp:" + interviewID + ":" + strconv.Itoa(version)
}

// Save implements Store. The next version comes from the top of the
// version ZSET; SETNX on the blob key detects a concurrent writer, in
// which case the write retries with the following version.
func (s *RedisStore) Save(ctx context.Context, interviewID string, blob []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	payload, err := json.Marshal(redisCheckpoint{
		CreatedAt: time.Now().UTC(),
		Blob:      blob,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: encode checkpoint: %v", ErrUnavailable, err)
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		version, err := s.nextVersion(ctx, interviewID)
		if err != nil {
			return 0, err
		}

		ok, err := s.client.SetNX(ctx, blobKey(interviewID, version), payload, 0).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: setnx checkpoint: %v", ErrUnavailable, err)
		}
		if !ok {
			continue // lost the race, take the next version
		}

		err = s.client.ZAdd(ctx, indexKey(interviewID), redis.Z{
			Score:  float64(version),
			Member: strconv.Itoa(version),
		}).Err()
		if err != nil {
			return 0, fmt.Errorf("%w: index checkpoint: %v", ErrUnavailable, err)
		}
		return version, nil
	}
	return 0, fmt.Errorf("%w: version collisions persisted through %d attempts", ErrUnavailable, saveAttempts)
}

// LoadLatest implements Store.
func (s *RedisStore) LoadLatest(ctx context.Context, interviewID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}

	members, err := s.client.ZRevRangeWithScores(ctx, indexKey(interviewID), 0, 0).Result()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: latest version: %v", ErrUnavailable, err)
	}
	if len(members) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	return s.fetch(ctx, interviewID, int(members[0].Score))
}

// LoadVersion implements Store.
func (s *RedisStore) LoadVersion(ctx context.Context, interviewID string, version int) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}
	return s.fetch(ctx, interviewID, version)
}

// Purge implements Store. The blob keys and the version index go in one
// pipeline round trip.
func (s *RedisStore) Purge(ctx context.Context, interviewID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	versions, err := s.client.ZRange(ctx, indexKey(interviewID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: list versions: %v", ErrUnavailable, err)
	}
	if len(versions) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, v := range versions {
		version, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		pipe.Del(ctx, blobKey(interviewID, version))
	}
	pipe.Del(ctx, indexKey(interviewID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrUnavailable, err)
	}
	return len(versions), nil
}

// Close shuts the connection. Further calls return ErrClosed.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisStore) nextVersion(ctx context.Context, interviewID string) (int, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, indexKey(interviewID), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: next version: %v", ErrUnavailable, err)
	}
	if len(members) == 0 {
		return 1, nil
	}
	return int(members[0].Score) + 1, nil
}

func (s *RedisStore) fetch(ctx context.Context, interviewID string, version int) (Checkpoint, error) {
	payload, err := s.client.Get(ctx, blobKey(interviewID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: fetch checkpoint: %v", ErrUnavailable, err)
	}
	var cp redisCheckpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: decode checkpoint: %v", ErrUnavailable, err)
	}
	return Checkpoint{
		InterviewID: interviewID,
		Version:     version,
		Blob:        cp.Blob,
		CreatedAt:   cp.CreatedAt,
	}, nil
}
