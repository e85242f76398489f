// Package mongostore implements the operational document store on MongoDB.
// Conditional writes use single-document filters so status swaps and
// inventory decrements stay atomic without multi-document transactions.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	courtsCollection       = "courts"
	reservationsCollection = "reservations"
	ordersCollection       = "orders"
	catalogCollection      = "services"
	ratesCollection        = "court_prices"
)

// Connect opens a client against uri and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(50).
		SetMinPoolSize(2)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, wrapError(err, "connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, wrapError(err, "ping")
	}
	return client.Database(database), nil
}

// Store implements the persistence repositories on one database.
type Store struct {
	db           *mongo.Database
	courts       *mongo.Collection
	reservations *mongo.Collection
	orders       *mongo.Collection
	catalog      *mongo.Collection
	rates        *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:           db,
		courts:       db.Collection(courtsCollection),
		reservations: db.Collection(reservationsCollection),
		orders:       db.Collection(ordersCollection),
		catalog:      db.Collection(catalogCollection),
		rates:        db.Collection(ratesCollection),
	}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes queries and invariants rely on. The
// partial unique index on orders allows one active order per court.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.reservations, []mongo.IndexModel{
			{Keys: bson.D{{Key: "court_id", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		}},
		{s.orders, []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "court_id", Value: 1}},
				Options: options.Index().
					SetName("one_active_order_per_court").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"active": true}),
			},
			{Keys: bson.D{{Key: "end_time", Value: 1}}},
		}},
		{s.courts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "label", Value: 1}}},
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return wrapError(err, "create indexes on %s", idx.coll.Name())
		}
	}
	return nil
}
