package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blockdoc/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoSnapshotStore implements domain.SnapshotStore on a MongoDB collection,
// one document per block document keyed by its id.
type MongoSnapshotStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ domain.SnapshotStore = (*MongoSnapshotStore)(nil)

type mongoSnapshot struct {
	DocID     string    `bson:"_id"`
	PageID    string    `bson:"pageId"`
	Version   int64     `bson:"version"`
	Snapshot  string    `bson:"snapshot"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// OpenMongo connects to uri and uses the "snapshots" collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoSnapshotStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoSnapshotStore{client: client, coll: client.Database(database).Collection("snapshots")}, nil
}

func (s *MongoSnapshotStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoSnapshotStore) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.DocID, err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	doc := mongoSnapshot{
		DocID:     snap.DocID,
		PageID:    snap.PageID,
		Version:   int64(snap.Version),
		Snapshot:  string(raw),
		UpdatedAt: updated.UTC(),
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": snap.DocID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.DocID, err)
	}
	return nil
}

func (s *MongoSnapshotStore) LoadSnapshot(ctx context.Context, docID string) (*domain.Snapshot, error) {
	var doc mongoSnapshot
	err := s.coll.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("snapshot %s: %w", docID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", docID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(doc.Snapshot), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", docID, err)
	}
	return &snap, nil
}

func (s *MongoSnapshotStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	opts := options.Find().
		SetProjection(bson.M{"snapshot": 0}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []domain.DocumentInfo
	for cursor.Next(ctx) {
		var doc mongoSnapshot
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, domain.DocumentInfo{
			DocID:     doc.DocID,
			PageID:    doc.PageID,
			Version:   uint64(doc.Version),
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return docs, cursor.Err()
}

func (s *MongoSnapshotStore) DeleteDocument(ctx context.Context, docID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": docID})
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", docID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("snapshot %s: %w", docID, domain.ErrNotFound)
	}
	return nil
}
