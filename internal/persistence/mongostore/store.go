package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
)

// --- Seeder implementation ---

func (s *Store) UpsertCourt(ctx context.Context, court persistence.Court) error {
	doc := courtToDocument(court)
	_, err := s.courts.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapError(err, "upsert court %s", court.ID)
	}
	return nil
}

func (s *Store) UpsertCatalogItem(ctx context.Context, item persistence.CatalogItem) error {
	doc := catalogToDocument(item)
	_, err := s.catalog.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapError(err, "upsert catalog item %s", item.ID)
	}
	return nil
}

func (s *Store) UpsertRateTable(ctx context.Context, table pricing.RateTable) error {
	doc := rateToDocument(table)
	_, err := s.rates.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapError(err, "upsert rate table %s", table.ID)
	}
	return nil
}

// --- CourtRepository implementation ---

func (s *Store) ListCourts(ctx context.Context) ([]persistence.Court, error) {
	cursor, err := s.courts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "label", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapError(err, "list courts")
	}
	var docs []courtDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err, "decode courts")
	}
	courts := make([]persistence.Court, 0, len(docs))
	for _, doc := range docs {
		courts = append(courts, doc.model())
	}
	return courts, nil
}

func (s *Store) GetCourt(ctx context.Context, id string) (persistence.Court, error) {
	var doc courtDocument
	if err := s.courts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.Court{}, mapError(err)
	}
	return doc.model(), nil
}

func (s *Store) SwapCourtStatus(ctx context.Context, id string, from, to lifecycle.CourtStatus, at time.Time) (persistence.Court, error) {
	var doc courtDocument
	err := s.courts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Court{}, wrapError(err, "swap court %s status", id)
	}
	current, getErr := s.GetCourt(ctx, id)
	if getErr != nil {
		return persistence.Court{}, getErr
	}
	return current, persistence.ErrStaleState
}

// --- ReservationRepository implementation ---

func (s *Store) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	if _, err := s.reservations.InsertOne(ctx, reservationToDocument(reservation)); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	var doc reservationDocument
	if err := s.reservations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	return doc.model(), nil
}

func (s *Store) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	query := bson.M{}
	if filter.CourtID != "" {
		query["court_id"] = filter.CourtID
	}
	if filter.Date != "" {
		query["date"] = filter.Date
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query["status"] = bson.M{"$in": statuses}
	}
	if filter.CreatedBefore != nil {
		query["created_at"] = bson.M{"$lt": *filter.CreatedBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_hour", Value: 1}, {Key: "created_at", Value: 1}})
	cursor, err := s.reservations.Find(ctx, query, opts)
	if err != nil {
		return nil, wrapError(err, "list reservations")
	}
	var docs []reservationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err, "decode reservations")
	}
	result := make([]persistence.Reservation, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.model())
	}
	return result, nil
}

func (s *Store) SwapReservationStatus(ctx context.Context, id string, from, to lifecycle.ReservationStatus, at time.Time) (persistence.Reservation, error) {
	var doc reservationDocument
	err := s.reservations.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Reservation{}, wrapError(err, "swap reservation %s status", id)
	}
	current, getErr := s.GetReservation(ctx, id)
	if getErr != nil {
		return persistence.Reservation{}, getErr
	}
	return current, persistence.ErrStaleState
}

// --- CatalogRepository implementation ---

func (s *Store) ListCatalog(ctx context.Context) ([]persistence.CatalogItem, error) {
	cursor, err := s.catalog.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapError(err, "list catalog")
	}
	var docs []catalogDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err, "decode catalog")
	}
	items := make([]persistence.CatalogItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.model())
	}
	return items, nil
}

func (s *Store) GetCatalogItem(ctx context.Context, id string) (persistence.CatalogItem, error) {
	var doc catalogDocument
	if err := s.catalog.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.CatalogItem{}, mapError(err)
	}
	return doc.model(), nil
}

// DecrementInventory applies $inc with a guard filter so the stock can never
// drop below zero under concurrent writers.
func (s *Store) DecrementInventory(ctx context.Context, id string, qty int, at time.Time) (persistence.CatalogItem, error) {
	var doc catalogDocument
	err := s.catalog.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "inventory": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"inventory": -qty}, "$set": bson.M{"updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.CatalogItem{}, wrapError(err, "decrement inventory of %s", id)
	}
	current, getErr := s.GetCatalogItem(ctx, id)
	if getErr != nil {
		return persistence.CatalogItem{}, getErr
	}
	return current, persistence.ErrInsufficientInventory
}

func (s *Store) IncrementInventory(ctx context.Context, id string, qty int, at time.Time) (persistence.CatalogItem, error) {
	var doc catalogDocument
	err := s.catalog.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"inventory": qty}, "$set": bson.M{"updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return persistence.CatalogItem{}, mapError(err)
	}
	return doc.model(), nil
}

// --- RateRepository implementation ---

func (s *Store) GetRateTable(ctx context.Context, id string) (pricing.RateTable, error) {
	var doc rateDocument
	if err := s.rates.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return pricing.RateTable{}, mapError(err)
	}
	return doc.model(), nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return persistence.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case unavailable(err):
		return fmt.Errorf("mongo: %w: %w", persistence.ErrUnavailable, err)
	}
	return fmt.Errorf("mongo: %w", err)
}

// wrapError prefixes err with the failed operation and marks network and
// timeout failures with persistence.ErrUnavailable.
func wrapError(err error, format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	if unavailable(err) {
		return fmt.Errorf("mongo: %s: %w: %w", op, persistence.ErrUnavailable, err)
	}
	return fmt.Errorf("mongo: %s: %w", op, err)
}

func unavailable(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
