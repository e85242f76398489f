package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/courtbooking/internal/persistence"
)

// maxMergeAttempts bounds the inc-or-push loop of one line when concurrent
// writers keep adding the same service.
const maxMergeAttempts = 3

func (s *Store) CreateOrder(ctx context.Context, order persistence.Order) error {
	if _, err := s.orders.InsertOne(ctx, orderToDocument(order)); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (persistence.Order, error) {
	var doc orderDocument
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.Order{}, mapError(err)
	}
	return doc.model(), nil
}

func (s *Store) FindActiveOrder(ctx context.Context, courtID string) (persistence.Order, error) {
	var doc orderDocument
	err := s.orders.FindOne(ctx,
		bson.M{"court_id": courtID, "end_time": nil},
		options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		return persistence.Order{}, mapError(err)
	}
	return doc.model(), nil
}

func (s *Store) FindUnsettledOrder(ctx context.Context, courtID string) (persistence.Order, error) {
	var doc orderDocument
	err := s.orders.FindOne(ctx,
		bson.M{"court_id": courtID, "total_price": nil},
		options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		return persistence.Order{}, mapError(err)
	}
	return doc.model(), nil
}

// AppendOrderLines merges each line with a positional $inc when the service
// is already on the order and a guarded $push otherwise.
func (s *Store) AppendOrderLines(ctx context.Context, orderID string, lines []persistence.OrderLine, at time.Time) (persistence.Order, error) {
	for _, line := range lines {
		if err := s.mergeLine(ctx, orderID, line, at); err != nil {
			return persistence.Order{}, err
		}
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) mergeLine(ctx context.Context, orderID string, line persistence.OrderLine, at time.Time) error {
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		result, err := s.orders.UpdateOne(ctx,
			bson.M{"_id": orderID, "end_time": nil},
			bson.M{
				"$inc": bson.M{"services.$[elem].quantity": line.Quantity},
				"$set": bson.M{"updated_at": at},
			},
			options.Update().SetArrayFilters(options.ArrayFilters{
				Filters: []interface{}{bson.M{"elem.service_id": line.ServiceID}},
			}),
		)
		if err != nil {
			return wrapError(err, "increment line %s on order %s", line.ServiceID, orderID)
		}
		if result.MatchedCount == 0 {
			return s.inactiveOrderError(ctx, orderID)
		}
		if result.ModifiedCount > 0 {
			return nil
		}

		result, err = s.orders.UpdateOne(ctx,
			bson.M{"_id": orderID, "end_time": nil, "services.service_id": bson.M{"$ne": line.ServiceID}},
			bson.M{
				"$push": bson.M{"services": lineToDocument(line)},
				"$set":  bson.M{"updated_at": at},
			},
		)
		if err != nil {
			return wrapError(err, "push line %s on order %s", line.ServiceID, orderID)
		}
		if result.MatchedCount > 0 {
			return nil
		}
		// another writer pushed the same service first; retry as an increment
	}
	return fmt.Errorf("mongo: merge line %s on order %s: %w", line.ServiceID, orderID, persistence.ErrStaleState)
}

func (s *Store) inactiveOrderError(ctx context.Context, orderID string) error {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return err
	}
	return persistence.ErrStaleState
}

func (s *Store) CloseOrder(ctx context.Context, orderID string, endTime time.Time) (persistence.Order, error) {
	_, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": orderID, "end_time": nil},
		bson.M{"$set": bson.M{"end_time": endTime, "active": false, "updated_at": endTime}},
	)
	if err != nil {
		return persistence.Order{}, wrapError(err, "close order %s", orderID)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) SettleOrder(ctx context.Context, orderID string, total int64, endTime time.Time) (persistence.Order, error) {
	var doc orderDocument
	err := s.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": orderID, "total_price": nil},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"total_price": total,
				"end_time":    bson.M{"$ifNull": bson.A{"$end_time", endTime}},
				"active":      false,
				"updated_at":  endTime,
			}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Order{}, wrapError(err, "settle order %s", orderID)
	}
	current, getErr := s.GetOrder(ctx, orderID)
	if getErr != nil {
		return persistence.Order{}, getErr
	}
	return current, persistence.ErrStaleState
}

func (s *Store) ListClosedOrders(ctx context.Context, from, to time.Time) ([]persistence.Order, error) {
	cursor, err := s.orders.Find(ctx,
		bson.M{"end_time": bson.M{"$gte": from, "$lte": to}},
		options.Find().SetSort(bson.D{{Key: "end_time", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, wrapError(err, "list closed orders")
	}
	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err, "decode orders")
	}
	orders := make([]persistence.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.model())
	}
	return orders, nil
}
