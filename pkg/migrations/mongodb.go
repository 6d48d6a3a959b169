package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ChannelFilterSetsCollection = "channel_filter_sets"
	AuditLogsCollection         = "channel_filter_audit_logs"
)

// EnsureMongoCollections creates the indexes the channel filter store
// relies on. Collections themselves are created on first insert.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database) error {
	sets := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "filters.id", Value: 1}},
			Options: options.Index().SetName("uq_channel_filter_sets_filter_id").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_channel_filter_sets_updated_at"),
		},
	}
	if err := createIndexes(ctx, db.Collection(ChannelFilterSetsCollection), sets); err != nil {
		return err
	}

	audit := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel_filter_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_channel_filter_audit_filter"),
		},
	}
	return createIndexes(ctx, db.Collection(AuditLogsCollection), audit)
}

func createIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel) error {
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes on %s: %w", collection.Name(), err)
	}
	return nil
}
