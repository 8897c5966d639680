// Package memory is the default transient backend: records live in a map
// for the process lifetime, no durability.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

// Store is an in-memory implementation of the storage contract.
type Store struct {
	mu      sync.RWMutex
	records map[string]*storage.Record
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*storage.Record)}
}

func clone(rec *storage.Record) *storage.Record {
	cp := *rec
	cp.Players = append([]room.RoomPlayer(nil), rec.Players...)
	cp.GameData = append(json.RawMessage(nil), rec.GameData...)
	return &cp
}

func (s *Store) CreateRoom(ctx context.Context, desc storage.Descriptor) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[desc.RoomID]; ok {
		return clone(rec), nil
	}
	rec := storage.NewRecord(desc, time.Now().UTC())
	s.records[desc.RoomID] = rec
	return clone(rec), nil
}

func (s *Store) Rooms(ctx context.Context) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	return out, nil
}

func (s *Store) UpdatePlayerList(ctx context.Context, roomID string, players []room.RoomPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[roomID]
	if !ok {
		return nil
	}
	rec.Players = append([]room.RoomPlayer(nil), players...)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SaveGameData(ctx context.Context, roomID string, blob json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[roomID]
	if !ok {
		return nil
	}
	rec.GameData = append(json.RawMessage(nil), blob...)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GameData(ctx context.Context, roomID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[roomID]
	if !ok || rec.GameData == nil {
		return nil, nil
	}
	return append(json.RawMessage(nil), rec.GameData...), nil
}

func (s *Store) CloseRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, roomID)
	return nil
}

func (s *Store) Close() error { return nil }
