package channelfilter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"switchyard/pkg/migrations"
)

const (
	AuditActionCreate  = "create"
	AuditActionUpdate  = "update"
	AuditActionDelete  = "delete"
	AuditActionMove    = "move"
	AuditActionConvert = "convert_to_jinja2"
)

// AuditRepository records channel filter changes.
type AuditRepository interface {
	Record(ctx context.Context, entry *AuditLog) error
	// List returns the newest entries for a filter first.
	List(ctx context.Context, channelFilterID string, limit int) ([]AuditLog, error)
}

func prepareEntry(entry *AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
}

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Record(ctx context.Context, entry *AuditLog) error {
	prepareEntry(entry)

	oldValue, err := marshalNullable(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalNullable(entry.NewValue)
	if err != nil {
		return err
	}

	var ipAddress *string
	if entry.IPAddress != "" {
		ipAddress = &entry.IPAddress
	}

	query := `
		INSERT INTO channel_filter_audit_logs (id, channel_filter_id, integration_id, action, old_value, new_value, changed_by, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.ChannelFilterID, entry.IntegrationID, entry.Action,
		oldValue, newValue, entry.ChangedBy, ipAddress, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepository) List(ctx context.Context, channelFilterID string, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, channel_filter_id, integration_id, action, old_value, new_value, changed_by, ip_address, timestamp
		FROM channel_filter_audit_logs
		WHERE channel_filter_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, channelFilterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var (
			entry              AuditLog
			oldValue, newValue []byte
			ipAddress          sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.ChannelFilterID, &entry.IntegrationID, &entry.Action,
			&oldValue, &newValue, &entry.ChangedBy, &ipAddress, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if entry.OldValue, err = unmarshalNullable(oldValue); err != nil {
			return nil, err
		}
		if entry.NewValue, err = unmarshalNullable(newValue); err != nil {
			return nil, err
		}
		entry.IPAddress = ipAddress.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func marshalNullable(v map[string]interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit value: %w", err)
	}
	out := string(data)
	return &out, nil
}

func unmarshalNullable(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v map[string]interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit value: %w", err)
	}
	return v, nil
}

type MongoAuditRepository struct {
	collection *mongo.Collection
}

func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{collection: db.Collection(migrations.AuditLogsCollection)}
}

func (r *MongoAuditRepository) Record(ctx context.Context, entry *AuditLog) error {
	prepareEntry(entry)
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}
	return nil
}

func (r *MongoAuditRepository) List(ctx context.Context, channelFilterID string, limit int) ([]AuditLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"channel_filter_id": channelFilterID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer cursor.Close(ctx)

	logs := []AuditLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode audit logs: %w", err)
	}
	return logs, nil
}

// MemoryAuditRepository keeps audit entries in process.
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries map[string][]AuditLog
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{entries: make(map[string][]AuditLog)}
}

func (r *MemoryAuditRepository) Record(_ context.Context, entry *AuditLog) error {
	prepareEntry(entry)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ChannelFilterID] = append(r.entries[entry.ChannelFilterID], *entry)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, channelFilterID string, limit int) ([]AuditLog, error) {
	r.mu.RLock()
	entries := r.entries[channelFilterID]
	logs := make([]AuditLog, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		logs = append(logs, entries[i])
	}
	r.mu.RUnlock()

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
