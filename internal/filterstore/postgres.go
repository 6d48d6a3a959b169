package filterstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const filterColumns = `id, integration_id, position, is_default, filtering_term_type, filtering_term,
	filtering_labels, escalation_chain_id, slack_channel_id, telegram_channel_id,
	notify_in_slack, notify_in_telegram, notification_backends, created_at, updated_at`

// PostgresStore keeps one row per filter. Mutations of one integration
// serialise on a transaction-scoped advisory lock; the unique
// (integration_id, position) constraint is deferred to commit so rows can
// be re-ranked in any order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilter(row rowScanner) (ChannelFilter, error) {
	var (
		f                                      ChannelFilter
		labels, backends                       []byte
		escalationChain, slackChan, telegramCh sql.NullString
	)
	err := row.Scan(
		&f.ID, &f.IntegrationID, &f.Order, &f.IsDefault, &f.FilteringTermType, &f.FilteringTerm,
		&labels, &escalationChain, &slackChan, &telegramCh,
		&f.NotifyInSlack, &f.NotifyInTelegram, &backends, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return f, err
	}
	f.EscalationChainID = escalationChain.String
	f.SlackChannelID = slackChan.String
	f.TelegramChannelID = telegramCh.String
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &f.FilteringLabels); err != nil {
			return f, fmt.Errorf("failed to decode filtering labels: %w", err)
		}
	}
	if len(backends) > 0 {
		if err := json.Unmarshal(backends, &f.NotificationBackends); err != nil {
			return f, fmt.Errorf("failed to decode notification backends: %w", err)
		}
	}
	return f, nil
}

func encodeJSONColumns(f *ChannelFilter) (labels string, backends any, err error) {
	labels = "[]"
	if len(f.FilteringLabels) > 0 {
		raw, err := json.Marshal(f.FilteringLabels)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filtering labels: %w", err)
		}
		labels = string(raw)
	}
	if f.NotificationBackends != nil {
		raw, err := json.Marshal(f.NotificationBackends)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode notification backends: %w", err)
		}
		backends = string(raw)
	}
	return labels, backends, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) CreateOwner(ctx context.Context, integrationID string, defaultFilter *ChannelFilter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prepareNew(defaultFilter, integrationID)
	defaultFilter.IsDefault = true
	defaultFilter.Order = 0

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO integrations (id, created_at) VALUES ($1, $2)`,
		integrationID, defaultFilter.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrOwnerExists
		}
		return fmt.Errorf("failed to create integration: %w", err)
	}

	if err := insertFilter(ctx, tx, defaultFilter); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertFilter(ctx context.Context, tx *sql.Tx, f *ChannelFilter) error {
	labels, backends, err := encodeJSONColumns(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO channel_filters (` + filterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = tx.ExecContext(ctx, query,
		f.ID, f.IntegrationID, f.Order, f.IsDefault, f.FilteringTermType, f.FilteringTerm,
		labels, nullString(f.EscalationChainID), nullString(f.SlackChannelID), nullString(f.TelegramChannelID),
		f.NotifyInSlack, f.NotifyInTelegram, backends, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFilterExists
		}
		return fmt.Errorf("failed to insert channel filter: %w", err)
	}
	return nil
}

// withOwnerLock runs fn inside a transaction holding the integration's
// advisory lock, handing it the current ranking.
func (s *PostgresStore) withOwnerLock(ctx context.Context, integrationID string, fn func(tx *sql.Tx, current []ChannelFilter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, integrationID); err != nil {
		return fmt.Errorf("failed to lock integration: %w", err)
	}

	current, err := listFilters(ctx, tx, integrationID)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		return ErrOwnerNotFound
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listFilters(ctx context.Context, q queryer, integrationID string) ([]ChannelFilter, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+filterColumns+` FROM channel_filters WHERE integration_id = $1 ORDER BY position`,
		integrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel filters: %w", err)
	}
	defer rows.Close()

	var filters []ChannelFilter
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		f, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel filter: %w", err)
		}
		filters = append(filters, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel filters: %w", err)
	}
	return filters, nil
}

func writePositions(ctx context.Context, tx *sql.Tx, changed []ChannelFilter, now time.Time) error {
	for _, f := range changed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE channel_filters SET position = $1, updated_at = $2 WHERE id = $3`,
			f.Order, now, f.ID,
		); err != nil {
			return fmt.Errorf("failed to update position of %s: %w", f.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) integrationOf(ctx context.Context, filterID string) (string, error) {
	var integrationID string
	err := s.db.QueryRowContext(ctx,
		`SELECT integration_id FROM channel_filters WHERE id = $1`, filterID,
	).Scan(&integrationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get channel filter: %w", err)
	}
	return integrationID, nil
}

func (s *PostgresStore) InsertAt(ctx context.Context, filter *ChannelFilter, index int) error {
	return s.withOwnerLock(ctx, filter.IntegrationID, func(tx *sql.Tx, current []ChannelFilter) error {
		prepareNew(filter, filter.IntegrationID)
		next, err := applyInsert(current, filter.Clone(), index)
		if err != nil {
			return err
		}
		if err := CheckOrdering(next); err != nil {
			return err
		}

		if err := writePositions(ctx, tx, changedOrders(current, next), filter.CreatedAt); err != nil {
			return err
		}
		for _, f := range next {
			if f.ID == filter.ID {
				filter.Order = f.Order
			}
		}
		return insertFilter(ctx, tx, filter)
	})
}

func (s *PostgresStore) MoveTo(ctx context.Context, filterID string, index int) error {
	integrationID, err := s.integrationOf(ctx, filterID)
	if err != nil {
		return err
	}

	return s.withOwnerLock(ctx, integrationID, func(tx *sql.Tx, current []ChannelFilter) error {
		next, err := applyMove(current, filterID, index)
		if err != nil {
			return err
		}
		if err := CheckOrdering(next); err != nil {
			return err
		}
		return writePositions(ctx, tx, changedOrders(current, next), time.Now())
	})
}

func (s *PostgresStore) Remove(ctx context.Context, filterID string) error {
	integrationID, err := s.integrationOf(ctx, filterID)
	if err != nil {
		return err
	}

	return s.withOwnerLock(ctx, integrationID, func(tx *sql.Tx, current []ChannelFilter) error {
		next, err := applyRemove(current, filterID)
		if err != nil {
			return err
		}
		if err := CheckOrdering(next); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM channel_filters WHERE id = $1`, filterID); err != nil {
			return fmt.Errorf("failed to delete channel filter: %w", err)
		}
		return writePositions(ctx, tx, changedOrders(current, next), time.Now())
	})
}

func (s *PostgresStore) Update(ctx context.Context, filter *ChannelFilter) error {
	labels, backends, err := encodeJSONColumns(filter)
	if err != nil {
		return err
	}
	filter.UpdatedAt = time.Now()

	query := `
		UPDATE channel_filters
		SET filtering_term_type = $1, filtering_term = $2, filtering_labels = $3,
			escalation_chain_id = $4, slack_channel_id = $5, telegram_channel_id = $6,
			notify_in_slack = $7, notify_in_telegram = $8, notification_backends = $9, updated_at = $10
		WHERE id = $11
		RETURNING integration_id, position, is_default, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		filter.FilteringTermType, filter.FilteringTerm, labels,
		nullString(filter.EscalationChainID), nullString(filter.SlackChannelID), nullString(filter.TelegramChannelID),
		filter.NotifyInSlack, filter.NotifyInTelegram, backends, filter.UpdatedAt, filter.ID,
	).Scan(&filter.IntegrationID, &filter.Order, &filter.IsDefault, &filter.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update channel filter: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, filterID string) (*ChannelFilter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+filterColumns+` FROM channel_filters WHERE id = $1`, filterID,
	)
	f, err := scanFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel filter: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) List(ctx context.Context, integrationID string) ([]ChannelFilter, error) {
	filters, err := listFilters(ctx, s.db, integrationID)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		return filters, nil
	}

	// An integration without rows is still known; routing reports it as
	// missing its default filter.
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM integrations WHERE id = $1)`, integrationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up integration: %w", err)
	}
	if !exists {
		return nil, ErrOwnerNotFound
	}
	return []ChannelFilter{}, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM integrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
