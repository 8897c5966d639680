// Package redis is the key-value backend. Each room serializes to one JSON
// record under a namespaced key; updates are read-modify-write against that
// record. A set index tracks live room ids for listing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

const (
	roomKeyPrefix = "parlor:room:"
	indexKey      = "parlor:rooms"
)

func roomKey(roomID string) string { return roomKeyPrefix + roomID }

// Store is a redis-backed implementation of the storage contract.
type Store struct {
	client *redis.Client
}

var _ storage.Store = (*Store)(nil)

// Connect dials the given address and verifies it with a ping.
func Connect(ctx context.Context, addr string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client (for tests).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) load(ctx context.Context, roomID string) (*storage.Record, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read room %s: %w", roomID, err)
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &rec, nil
}

func (s *Store) save(ctx context.Context, rec *storage.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", rec.RoomID, err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, roomKey(rec.RoomID), data, 0)
	pipe.SAdd(ctx, indexKey, rec.RoomID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("write room %s: %w", rec.RoomID, err)
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, desc storage.Descriptor) (*storage.Record, error) {
	rec := storage.NewRecord(desc, time.Now().UTC())
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", desc.RoomID, err)
	}

	set, err := s.client.SetNX(ctx, roomKey(desc.RoomID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", desc.RoomID, err)
	}
	if !set {
		// Lost the race or the record predates us; return what is stored.
		existing, err := s.load(ctx, desc.RoomID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		// Key vanished between SetNX and Get; fall through with our record.
	}
	if err := s.client.SAdd(ctx, indexKey, desc.RoomID).Err(); err != nil {
		return nil, fmt.Errorf("index room %s: %w", desc.RoomID, err)
	}
	return rec, nil
}

func (s *Store) Rooms(ctx context.Context) ([]*storage.Record, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	var out []*storage.Record
	for _, id := range ids {
		rec, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) UpdatePlayerList(ctx context.Context, roomID string, players []room.RoomPlayer) error {
	rec, err := s.load(ctx, roomID)
	if err != nil || rec == nil {
		return err
	}
	rec.Players = players
	rec.UpdatedAt = time.Now().UTC()
	return s.save(ctx, rec)
}

func (s *Store) SaveGameData(ctx context.Context, roomID string, blob json.RawMessage) error {
	rec, err := s.load(ctx, roomID)
	if err != nil || rec == nil {
		return err
	}
	rec.GameData = blob
	rec.UpdatedAt = time.Now().UTC()
	return s.save(ctx, rec)
}

func (s *Store) GameData(ctx context.Context, roomID string) (json.RawMessage, error) {
	rec, err := s.load(ctx, roomID)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.GameData, nil
}

func (s *Store) CloseRoom(ctx context.Context, roomID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, roomKey(roomID))
	pipe.SRem(ctx, indexKey, roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
