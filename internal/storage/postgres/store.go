package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"walletTracker/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id            BIGSERIAL PRIMARY KEY,
	group_id      TEXT        NOT NULL UNIQUE,
	tx_hash       TEXT        NOT NULL,
	network       TEXT        NOT NULL,
	target        TEXT        NOT NULL,
	category      TEXT        NOT NULL,
	kinds_present TEXT[]      NOT NULL,
	kinds_missing TEXT[]      NOT NULL DEFAULT '{}',
	recipients    TEXT[]      NOT NULL,
	message       TEXT        NOT NULL,
	delivered     INTEGER     NOT NULL,
	failed        INTEGER     NOT NULL,
	settled_at    TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS notifications_tx_hash_idx ON notifications (tx_hash);
`

// Store persists the notification ledger in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutNotification inserts one ledger row. Re-inserting a group id is a no-op.
func (s *Store) PutNotification(ctx context.Context, rec model.NotificationRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			group_id, tx_hash, network, target, category, kinds_present, kinds_missing,
			recipients, message, delivered, failed, settled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (group_id) DO NOTHING
	`,
		rec.GroupID,
		rec.TxHash,
		string(rec.Network),
		rec.Target,
		rec.Category.String(),
		kindNames(rec.KindsPresent),
		kindNames(rec.KindsMissing),
		rec.Recipients,
		rec.Message,
		rec.Delivered,
		rec.Failed,
		rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", rec.GroupID, err)
	}
	return nil
}

func kindNames(kinds []model.AssetKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}
