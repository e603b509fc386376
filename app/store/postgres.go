package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Toumari/NorthStar/app/config"
	"github.com/Toumari/NorthStar/app/models"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id                       TEXT PRIMARY KEY,
		subscription_tier        TEXT NOT NULL DEFAULT 'free',
		subscription_status      TEXT NOT NULL DEFAULT 'none',
		subscription_id          TEXT,
		subscription_plan_type   TEXT,
		subscription_customer_id TEXT,
		subscription_end_date    BIGINT,
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS users_subscription_id_idx ON users (subscription_id);
	CREATE INDEX IF NOT EXISTS users_subscription_customer_id_idx ON users (subscription_customer_id);
`

// mergeColumns maps document fields to columns, in the order they are written.
var mergeColumns = []struct {
	field  string
	column string
}{
	{models.FieldTier, "subscription_tier"},
	{models.FieldStatus, "subscription_status"},
	{models.FieldSubscriptionID, "subscription_id"},
	{models.FieldPlanType, "subscription_plan_type"},
	{models.FieldCustomerID, "subscription_customer_id"},
	{models.FieldEndDate, "subscription_end_date"},
}

// PostgresStore keeps one row per user with the record flattened into columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	d, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	log.Info().Msg("Connected to Postgres")

	s := &PostgresStore{db: d}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing pool.
func NewPostgresStoreFromDB(d *sql.DB) *PostgresStore {
	return &PostgresStore{db: d}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	var (
		tier, status                string
		subID, planType, customerID sql.NullString
		endDate                     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT subscription_tier, subscription_status, subscription_id,
		       subscription_plan_type, subscription_customer_id, subscription_end_date
		FROM users
		WHERE id = $1;
	`, userID).Scan(&tier, &status, &subID, &planType, &customerID, &endDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SubscriptionRecord{}, ErrNotFound
		}
		return models.SubscriptionRecord{}, fmt.Errorf("get user %s: %w", userID, err)
	}

	r := models.SubscriptionRecord{
		Tier:   models.Tier(tier),
		Status: models.Status(status),
	}
	if subID.Valid {
		r.SubscriptionID = &subID.String
	}
	if planType.Valid {
		pt := models.PlanType(planType.String)
		r.PlanType = &pt
	}
	if customerID.Valid {
		r.CustomerID = &customerID.String
	}
	if endDate.Valid {
		r.EndDate = &endDate.Int64
	}
	return r.Normalize(), nil
}

func (s *PostgresStore) EnsureProfile(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, subscription_tier, subscription_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`, userID, models.TierFree, models.StatusNone)
	if err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return s.GetSubscription(ctx, userID)
}

func (s *PostgresStore) MergeSubscription(ctx context.Context, userID string, patch models.SubscriptionPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	query, args := buildMergeQuery(userID, patch.Fields())
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("merge user %s: %w", userID, err)
	}
	return nil
}

// buildMergeQuery upserts only the columns present in fields, so untouched
// columns keep their stored values.
func buildMergeQuery(userID string, fields map[string]any) (string, []any) {
	cols := []string{"id"}
	placeholders := []string{"$1"}
	updates := []string{"updated_at = now()"}
	args := []any{userID}

	for _, mc := range mergeColumns {
		val, ok := fields[mc.field]
		if !ok {
			continue
		}
		if val == nil {
			switch mc.field {
			case models.FieldTier:
				val = models.TierFree
			case models.FieldStatus:
				val = models.StatusNone
			}
		}
		args = append(args, val)
		cols = append(cols, mc.column)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", mc.column, mc.column))
	}

	query := fmt.Sprintf(
		"INSERT INTO users (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s;",
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	return query, args
}

func (s *PostgresStore) FindUsersBySubscriptionID(ctx context.Context, subscriptionID string, limit int) ([]string, error) {
	return s.findBy(ctx, "subscription_id", subscriptionID, limit)
}

func (s *PostgresStore) FindUsersByCustomerID(ctx context.Context, customerID string, limit int) ([]string, error) {
	return s.findBy(ctx, "subscription_customer_id", customerID, limit)
}

// column is always one of the fixed names above, never caller input.
func (s *PostgresStore) findBy(ctx context.Context, column, value string, limit int) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = LookupLimit
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id
		FROM users
		WHERE %s = $1
		ORDER BY id
		LIMIT $2;
	`, column), value, limit)
	if err != nil {
		return nil, fmt.Errorf("query users by %s: %w", column, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
