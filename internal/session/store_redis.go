package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps session snapshots in Redis so a restarted node can answer
// resync requests and an operator can inspect live sessions. The worker
// remains the source of truth while a session is open.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keySession(id string) string { return "arena:game:" + strings.TrimSpace(id) }

func (s *Store) keyPlayerIdx(player string) string {
	return "arena:index:player:" + strings.TrimSpace(player)
}

// Save writes the snapshot and refreshes the player index sets.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keySession(snap.ID), raw, s.ttl).Err(); err != nil {
		return err
	}
	for _, pid := range []string{snap.WhiteID, snap.BlackID} {
		if strings.TrimSpace(pid) == "" {
			continue
		}
		if err := s.rdb.SAdd(ctx, s.keyPlayerIdx(pid), snap.ID).Err(); err != nil {
			return err
		}
		_ = s.rdb.Expire(ctx, s.keyPlayerIdx(pid), s.ttl).Err()
	}
	return nil
}

// Load returns the snapshot, nil when absent.
func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SessionsFor lists the session ids indexed for a player.
func (s *Store) SessionsFor(ctx context.Context, playerID string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyPlayerIdx(playerID)).Result()
}

// Remove drops the snapshot and unlinks it from the player indexes.
func (s *Store) Remove(ctx context.Context, snap Snapshot) error {
	if err := s.rdb.Del(ctx, s.keySession(snap.ID)).Err(); err != nil {
		return err
	}
	for _, pid := range []string{snap.WhiteID, snap.BlackID} {
		if strings.TrimSpace(pid) == "" {
			continue
		}
		_ = s.rdb.SRem(ctx, s.keyPlayerIdx(pid), snap.ID).Err()
	}
	return nil
}

// ParseRedisURL turns a redis:// or rediss:// URL into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
