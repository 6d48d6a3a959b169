package filterstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"switchyard/pkg/migrations"
	"switchyard/pkg/retry"
)

type filterSet struct {
	IntegrationID string          `bson:"_id"`
	Version       int64           `bson:"version"`
	Filters       []ChannelFilter `bson:"filters"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func (s *filterSet) owned() []ChannelFilter {
	for i := range s.Filters {
		s.Filters[i].IntegrationID = s.IntegrationID
	}
	return s.Filters
}

// MongoStore keeps one document per integration holding the ranked filter
// array. Writers replace the array under a version check and retry on
// conflict.
type MongoStore struct {
	collection *mongo.Collection
	policy     retry.Policy
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(migrations.ChannelFilterSetsCollection),
		policy: retry.Policy{
			MaxAttempts:     20,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
}

func (s *MongoStore) CreateOwner(ctx context.Context, integrationID string, defaultFilter *ChannelFilter) error {
	prepareNew(defaultFilter, integrationID)
	defaultFilter.IsDefault = true
	defaultFilter.Order = 0

	doc := filterSet{
		IntegrationID: integrationID,
		Version:       1,
		Filters:       []ChannelFilter{defaultFilter.Clone()},
		CreatedAt:     defaultFilter.CreatedAt,
		UpdatedAt:     defaultFilter.CreatedAt,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrOwnerExists
		}
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

func (s *MongoStore) load(ctx context.Context, filter bson.M) (*filterSet, error) {
	var doc filterSet
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, mongo.ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel filters: %w", err)
	}
	doc.owned()
	return &doc, nil
}

// mutate loads the owner's document, applies fn and writes the result back
// if nobody else has in the meantime.
func (s *MongoStore) mutate(ctx context.Context, selector bson.M, missing error, fn func(current []ChannelFilter) ([]ChannelFilter, error)) error {
	return retry.Retry(ctx, s.policy, func() error {
		doc, err := s.load(ctx, selector)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return retry.NewFatalError(missing)
		}
		if err != nil {
			return err
		}

		next, err := fn(doc.Filters)
		if err != nil {
			return retry.NewFatalError(err)
		}
		if err := CheckOrdering(next); err != nil {
			return retry.NewFatalError(err)
		}

		res, err := s.collection.UpdateOne(ctx,
			bson.M{"_id": doc.IntegrationID, "version": doc.Version},
			bson.M{"$set": bson.M{
				"filters":    next,
				"version":    doc.Version + 1,
				"updated_at": time.Now(),
			}},
		)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return retry.NewFatalError(ErrFilterExists)
			}
			return fmt.Errorf("failed to store channel filters: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}
		return nil
	})
}

func (s *MongoStore) InsertAt(ctx context.Context, filter *ChannelFilter, index int) error {
	prepareNew(filter, filter.IntegrationID)
	return s.mutate(ctx, bson.M{"_id": filter.IntegrationID}, ErrOwnerNotFound, func(current []ChannelFilter) ([]ChannelFilter, error) {
		for _, f := range current {
			if f.ID == filter.ID {
				return nil, ErrFilterExists
			}
		}
		next, err := applyInsert(current, filter.Clone(), index)
		if err != nil {
			return nil, err
		}
		for _, f := range next {
			if f.ID == filter.ID {
				filter.Order = f.Order
			}
		}
		return next, nil
	})
}

func (s *MongoStore) MoveTo(ctx context.Context, filterID string, index int) error {
	return s.mutate(ctx, bson.M{"filters.id": filterID}, ErrNotFound, func(current []ChannelFilter) ([]ChannelFilter, error) {
		next, err := applyMove(current, filterID, index)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		changed := changedOrders(current, next)
		for i := range next {
			for _, c := range changed {
				if c.ID == next[i].ID {
					next[i].UpdatedAt = now
				}
			}
		}
		return next, nil
	})
}

func (s *MongoStore) Remove(ctx context.Context, filterID string) error {
	return s.mutate(ctx, bson.M{"filters.id": filterID}, ErrNotFound, func(current []ChannelFilter) ([]ChannelFilter, error) {
		return applyRemove(current, filterID)
	})
}

func (s *MongoStore) Update(ctx context.Context, filter *ChannelFilter) error {
	var updated ChannelFilter
	err := s.mutate(ctx, bson.M{"filters.id": filter.ID}, ErrNotFound, func(current []ChannelFilter) ([]ChannelFilter, error) {
		next := make([]ChannelFilter, len(current))
		copy(next, current)
		for i := range next {
			if next[i].ID != filter.ID {
				continue
			}
			updated = filter.Clone()
			updated.IntegrationID = next[i].IntegrationID
			updated.Order = next[i].Order
			updated.IsDefault = next[i].IsDefault
			updated.CreatedAt = next[i].CreatedAt
			updated.UpdatedAt = time.Now()
			next[i] = updated
			return next, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return err
	}
	*filter = updated
	return nil
}

func (s *MongoStore) Get(ctx context.Context, filterID string) (*ChannelFilter, error) {
	doc, err := s.load(ctx, bson.M{"filters.id": filterID})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, f := range doc.Filters {
		if f.ID == filterID {
			return &f, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MongoStore) List(ctx context.Context, integrationID string) ([]ChannelFilter, error) {
	doc, err := s.load(ctx, bson.M{"_id": integrationID})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Filters == nil {
		return []ChannelFilter{}, nil
	}
	return doc.Filters, nil
}

func (s *MongoStore) ListIntegrations(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode integration: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}
