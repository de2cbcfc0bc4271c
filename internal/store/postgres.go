package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/login-pii-pipeline/internal/models"
)

// schemaSQL is embedded so the worker can self-bootstrap the user_logins table.
//
//go:embed schema.sql
var schemaSQL string

// ErrRejected marks records the database refused because of their content.
// Retrying the same record fails the same way.
var ErrRejected = errors.New("record rejected by database")

// ConnectOptions controls startup connection attempts.
type ConnectOptions struct {
	Attempts int
	Delay    time.Duration
	// OnRetry is called after each failed attempt with the attempts left.
	OnRetry func(err error, remaining int)
}

// DefaultConnectOptions tries five times, five seconds apart.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{Attempts: 5, Delay: 5 * time.Second}
}

// PostgresStore is the durable sink for masked login records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and retries until the DB answers a ping.
func NewPostgresStore(ctx context.Context, dbURL string, opts ConnectOptions) (*PostgresStore, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		pool, err := connect(ctx, dbURL)
		if err == nil {
			return &PostgresStore{pool: pool}, nil
		}
		lastErr = err

		remaining := opts.Attempts - attempt
		if remaining == 0 {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(err, remaining)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", opts.Attempts, lastErr)
}

func connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertLogin writes one record in its own transaction and commits before returning.
// The connection goes back to the pool on every path, including rollback.
func (p *PostgresStore) InsertLogin(ctx context.Context, rec models.MaskedRecord) (err error) {
	if rec.MaskedDeviceID == "" || rec.MaskedIP == "" {
		return fmt.Errorf("%w: masked_device_id/masked_ip required", ErrRejected)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO user_logins(user_id, device_type, masked_ip, masked_device_id, locale, app_version, create_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.UserID, rec.DeviceType, rec.MaskedIP, rec.MaskedDeviceID, rec.Locale, rec.AppVersion, rec.CreateDate)
	if err != nil {
		return fmt.Errorf("insert user_logins: %w", classify(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// classify tags data exceptions (class 22) and integrity violations (class 23)
// with ErrRejected. Everything else is left as a possibly transient failure.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return err
}

// CountLogins returns the number of rows with create_date in [from,to).
// An empty deviceType counts all device types.
func (p *PostgresStore) CountLogins(
	ctx context.Context,
	from time.Time,
	to time.Time,
	deviceType string,
) (int64, error) {

	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_logins
		WHERE create_date >= $1
		  AND create_date <  $2
		  AND ($3::text = '' OR device_type = $3::text)
	`, from, to, deviceType).Scan(&count)

	return count, err
}
