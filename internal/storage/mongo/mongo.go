// Package mongo is the document-store backend. Creation idempotency uses a
// native upsert with $setOnInsert, so a concurrent first insert degrades to
// reading the winner's document.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

const collectionName = "rooms"

// Store is a mongo-backed implementation of the storage contract.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

// Connect dials the given URI and verifies it with a ping.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}, nil
}

func (s *Store) CreateRoom(ctx context.Context, desc storage.Descriptor) (*storage.Record, error) {
	rec := storage.NewRecord(desc, time.Now().UTC())

	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": desc.RoomID},
		bson.M{"$setOnInsert": rec},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	var stored storage.Record
	if err := res.Decode(&stored); err != nil {
		return nil, fmt.Errorf("upsert room %s: %w", desc.RoomID, err)
	}
	return &stored, nil
}

func (s *Store) Rooms(ctx context.Context) ([]*storage.Record, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer cur.Close(ctx)

	var out []*storage.Record
	for cur.Next(ctx) {
		var rec storage.Record
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode room record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

func (s *Store) UpdatePlayerList(ctx context.Context, roomID string, players []room.RoomPlayer) error {
	// No upsert: an unknown room id matches nothing and stays a no-op.
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"players": players, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update players for %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) SaveGameData(ctx context.Context, roomID string, blob json.RawMessage) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"game_data": []byte(blob), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("save game data for %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) GameData(ctx context.Context, roomID string) (json.RawMessage, error) {
	res := s.coll.FindOne(ctx, bson.M{"_id": roomID},
		options.FindOne().SetProjection(bson.M{"game_data": 1}))

	var doc struct {
		GameData []byte `bson:"game_data"`
	}
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("game data for %s: %w", roomID, err)
	}
	if doc.GameData == nil {
		return nil, nil
	}
	return doc.GameData, nil
}

func (s *Store) CloseRoom(ctx context.Context, roomID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": roomID}); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
