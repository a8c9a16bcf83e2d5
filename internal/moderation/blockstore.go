package moderation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BlockStore holds the set of blocked users per lecture.
type BlockStore interface {
	Add(ctx context.Context, lectureID uuid.UUID, userIDs ...uuid.UUID) error
	Remove(ctx context.Context, lectureID, userID uuid.UUID) error
	Members(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error)
	IsBlocked(ctx context.Context, lectureID, userID uuid.UUID) (bool, error)
	// Clear empties the set and returns what it held.
	Clear(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error)
}

// MemoryBlockStore is the coordinator-local block set. It is lost on restart.
type MemoryBlockStore struct {
	mu  sync.Mutex
	set map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewMemoryBlockStore creates an empty in-process block store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{set: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

func (s *MemoryBlockStore) Add(_ context.Context, lectureID uuid.UUID, userIDs ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.set[lectureID]
	if m == nil {
		m = make(map[uuid.UUID]struct{})
		s.set[lectureID] = m
	}
	for _, id := range userIDs {
		m[id] = struct{}{}
	}
	return nil
}

func (s *MemoryBlockStore) Remove(_ context.Context, lectureID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.set[lectureID]; m != nil {
		delete(m, userID)
		if len(m) == 0 {
			delete(s.set, lectureID)
		}
	}
	return nil
}

func (s *MemoryBlockStore) Members(_ context.Context, lectureID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.set[lectureID]), nil
}

func (s *MemoryBlockStore) IsBlocked(_ context.Context, lectureID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[lectureID][userID]
	return ok, nil
}

func (s *MemoryBlockStore) Clear(_ context.Context, lectureID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := sortedIDs(s.set[lectureID])
	delete(s.set, lectureID)
	return prev, nil
}

func sortedIDs(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sortUUIDs(out)
	return out
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

const blockKeyPrefix = "lecture:blocked:"

// RedisBlockStore keeps each lecture's blocked set in a Redis set so it survives restarts
// and is shared between coordinator instances.
type RedisBlockStore struct {
	client *redis.Client
}

// NewRedisBlockStore creates a Redis-backed block store.
func NewRedisBlockStore(client *redis.Client) *RedisBlockStore {
	return &RedisBlockStore{client: client}
}

func blockKey(lectureID uuid.UUID) string {
	return blockKeyPrefix + lectureID.String()
}

func (s *RedisBlockStore) Add(ctx context.Context, lectureID uuid.UUID, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id.String()
	}
	if err := s.client.SAdd(ctx, blockKey(lectureID), members...).Err(); err != nil {
		return fmt.Errorf("sadd: %w", err)
	}
	return nil
}

func (s *RedisBlockStore) Remove(ctx context.Context, lectureID, userID uuid.UUID) error {
	if err := s.client.SRem(ctx, blockKey(lectureID), userID.String()).Err(); err != nil {
		return fmt.Errorf("srem: %w", err)
	}
	return nil
}

func (s *RedisBlockStore) Members(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error) {
	raw, err := s.client.SMembers(ctx, blockKey(lectureID)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	return parseIDs(raw), nil
}

func (s *RedisBlockStore) IsBlocked(ctx context.Context, lectureID, userID uuid.UUID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, blockKey(lectureID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("sismember: %w", err)
	}
	return ok, nil
}

func (s *RedisBlockStore) Clear(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error) {
	key := blockKey(lectureID)
	var members *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SMembers(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clear blocked set: %w", err)
	}
	return parseIDs(members.Val()), nil
}

func parseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	sortUUIDs(out)
	return out
}
