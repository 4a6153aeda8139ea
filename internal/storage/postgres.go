package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgChangesChannel = "storefront_changes"

func DBPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// PG keeps values in the storefront_kv table and announces writes with
// NOTIFY on storefront_changes.
type PG struct {
	pool   *pgxpool.Pool
	origin string
	logger *zap.Logger
	subs   *registry
}

func NewPG(pool *pgxpool.Pool, logger *zap.Logger) *PG {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PG{
		pool:   pool,
		origin: uuid.NewString(),
		logger: logger,
		subs:   newRegistry(),
	}
}

func (p *PG) ApplyMigration(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS storefront_kv (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create storefront_kv table: %w", err)
	}
	return nil
}

func (p *PG) Origin() string {
	return p.origin
}

func (p *PG) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `
		SELECT value
		FROM storefront_kv
		WHERE key = $1
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PG) Set(ctx context.Context, key string, value []byte) error {
	return p.write(ctx, key, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO storefront_kv (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, key, value)
		return err
	})
}

func (p *PG) Clear(ctx context.Context, key string) error {
	return p.write(ctx, key, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM storefront_kv WHERE key = $1`, key)
		return err
	})
}

func (p *PG) Subscribe(key string, fn func(Change)) func() {
	return p.subs.add(key, p.origin, fn)
}

// Listen dispatches change notifications until ctx is done.
func (p *PG) Listen(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgChangesChannel); err != nil {
		return fmt.Errorf("listen %s: %w", pgChangesChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var change Change
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			p.logger.Warn("ignoring malformed change event", zap.Error(err))
			continue
		}
		p.subs.dispatch(change)
	}
}

func (p *PG) write(ctx context.Context, key string, op func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func(ctx context.Context) {
		_ = tx.Rollback(ctx)
	}(ctx)

	if err := op(tx); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	payload, err := json.Marshal(Change{Key: key, Origin: p.origin})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChangesChannel, string(payload)); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
