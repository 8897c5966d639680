// Package postgres is the relational backend, built on pgx. Create
// collisions resolve through ON CONFLICT: a unique-key hit means a
// concurrent writer already created the record, so the existing row is
// returned instead of an error.
//
// Expected schema:
//
//	CREATE TABLE rooms (
//	    room_id    text PRIMARY KEY,
//	    type       text NOT NULL DEFAULT '',
//	    name       text NOT NULL DEFAULT '',
//	    size       int  NOT NULL,
//	    min_size   int  NOT NULL,
//	    players    jsonb NOT NULL DEFAULT '[]',
//	    game_data  jsonb,
//	    created_at timestamptz NOT NULL,
//	    updated_at timestamptz NOT NULL
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

// Store is a postgres-backed implementation of the storage contract.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Connect opens a pool against the given URL and verifies it with a ping.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool (for tests).
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCols = `room_id, type, name, size, min_size, players, game_data, created_at, updated_at`

func scanRecord(row pgx.Row) (*storage.Record, error) {
	var rec storage.Record
	var players []byte
	var gameData []byte
	err := row.Scan(
		&rec.RoomID, &rec.Type, &rec.Name, &rec.Size, &rec.MinSize,
		&players, &gameData, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &rec.Players); err != nil {
		return nil, fmt.Errorf("decode player list: %w", err)
	}
	rec.GameData = gameData
	return &rec, nil
}

func (s *Store) CreateRoom(ctx context.Context, desc storage.Descriptor) (*storage.Record, error) {
	players, err := json.Marshal(desc.Players)
	if err != nil {
		return nil, fmt.Errorf("encode player list: %w", err)
	}
	now := time.Now().UTC()

	q := `
	INSERT INTO rooms (room_id, type, name, size, min_size, players, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (room_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, q,
		desc.RoomID, desc.Type, desc.Name, desc.Size, desc.MinSize, players, now,
	); err != nil {
		return nil, fmt.Errorf("insert room %s: %w", desc.RoomID, err)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+selectCols+` FROM rooms WHERE room_id = $1`, desc.RoomID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("read back room %s: %w", desc.RoomID, err)
	}
	return rec, nil
}

func (s *Store) Rooms(ctx context.Context) ([]*storage.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectCols+` FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePlayerList(ctx context.Context, roomID string, players []room.RoomPlayer) error {
	data, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("encode player list: %w", err)
	}
	// Zero rows affected means the room was never persisted; that is fine.
	_, err = s.pool.Exec(ctx,
		`UPDATE rooms SET players = $2, updated_at = $3 WHERE room_id = $1`,
		roomID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update players for %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) SaveGameData(ctx context.Context, roomID string, blob json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE rooms SET game_data = $2, updated_at = $3 WHERE room_id = $1`,
		roomID, []byte(blob), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save game data for %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) GameData(ctx context.Context, roomID string) (json.RawMessage, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT game_data FROM rooms WHERE room_id = $1`, roomID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("game data for %s: %w", roomID, err)
	}
	return blob, nil
}

func (s *Store) CloseRoom(ctx context.Context, roomID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
