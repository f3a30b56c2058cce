package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createRevokedTableSQL = `
CREATE TABLE IF NOT EXISTS revoked_credentials (
	token_id        TEXT PRIMARY KEY,
	principal_id    TEXT NOT NULL,
	token_class     TEXT NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	revoked_reason  TEXT NOT NULL,
	revoked_from_ip TEXT NOT NULL DEFAULT '',
	revoked_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS revoked_credentials_expires_at_idx
	ON revoked_credentials (expires_at);
`

	createIssuedTableSQL = `
CREATE TABLE IF NOT EXISTS issued_credentials (
	token_id     TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	token_class  TEXT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS issued_credentials_principal_idx
	ON issued_credentials (principal_id);
CREATE INDEX IF NOT EXISTS issued_credentials_expires_at_idx
	ON issued_credentials (expires_at);
`
)

// PostgresStoreConfig configures the PostgreSQL credential store.
type PostgresStoreConfig struct {
	// ConnectionURL is a pgx connection string.
	ConnectionURL string

	// SkipCreateTables disables schema bootstrap, for deployments that
	// manage migrations externally.
	SkipCreateTables bool
}

// PostgresStore is a Store backed by PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(ctx context.Context, config PostgresStoreConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, config.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !config.SkipCreateTables {
		for _, ddl := range []string{createRevokedTableSQL, createIssuedTableSQL} {
			if _, err := pool.Exec(ctx, ddl); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to create schema: %w", err)
			}
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, record *CredentialRecord) (*CredentialRecord, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO revoked_credentials
			(token_id, principal_id, token_class, expires_at, revoked_reason, revoked_from_ip, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token_id) DO NOTHING`,
		record.TokenID, record.PrincipalID, string(record.TokenClass),
		record.ExpiresAt, record.RevokedReason, record.RevokedFromIP, record.RevokedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if tag.RowsAffected() == 1 {
		clone := *record
		return &clone, true, nil
	}

	// Lost the race or already revoked: return the original record.
	existing, err := s.Get(ctx, record.TokenID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) Get(ctx context.Context, tokenID string) (*CredentialRecord, error) {
	var record CredentialRecord
	var class string
	err := s.pool.QueryRow(ctx, `
		SELECT token_id, principal_id, token_class, expires_at, revoked_reason, revoked_from_ip, revoked_at
		FROM revoked_credentials WHERE token_id = $1`, tokenID,
	).Scan(&record.TokenID, &record.PrincipalID, &class,
		&record.ExpiresAt, &record.RevokedReason, &record.RevokedFromIP, &record.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record.TokenClass = TokenClass(class)
	return &record, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM revoked_credentials WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM issued_credentials WHERE expires_at < $1`, now); err != nil {
		return int(tag.RowsAffected()), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordIssued(ctx context.Context, issued *IssuedRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO issued_credentials (token_id, principal_id, token_class, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING`,
		issued.TokenID, issued.PrincipalID, string(issued.TokenClass), issued.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) ListOutstanding(ctx context.Context, principalID string, now time.Time) ([]*IssuedRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, principal_id, token_class, expires_at
		FROM issued_credentials
		WHERE principal_id = $1 AND expires_at >= $2`, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var outstanding []*IssuedRecord
	for rows.Next() {
		var record IssuedRecord
		var class string
		if err := rows.Scan(&record.TokenID, &record.PrincipalID, &class, &record.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record.TokenClass = TokenClass(class)
		outstanding = append(outstanding, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return outstanding, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
