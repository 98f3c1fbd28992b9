// Package pg implementa los repositorios sobre PostgreSQL con pgx.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idbridge/internal/domain"
)

// Store agrupa los repositorios pg sobre un pool compartido.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Users() domain.UserRepository             { return &userRepo{pool: s.pool} }
func (s *Store) Accounts() domain.AccountRepository       { return &accountRepo{pool: s.pool} }
func (s *Store) Credentials() domain.CredentialRepository { return &credRepo{pool: s.pool} }

// ─── users ───

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, realm, username, email, email_verified, created_at
		FROM app_user WHERE id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Realm, &u.Username, &u.Email, &u.EmailVerified, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *domain.User) error {
	const query = `
		INSERT INTO app_user (id, realm, username, email, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		u.ID, u.Realm, u.Username, u.Email, u.EmailVerified, u.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRegistered
	}
	return nil
}

// ─── accounts ───

type accountRepo struct{ pool *pgxpool.Pool }

func (r *accountRepo) Get(ctx context.Context, repositoryID, accountID string) (*domain.Account, error) {
	const query = `
		SELECT repository_id, account_id, uuid, COALESCE(user_id, ''), realm,
		       authority, provider, username, email, email_verified, status,
		       attributes, created_at, updated_at
		FROM upstream_account WHERE repository_id = $1 AND account_id = $2
	`
	var a domain.Account
	err := r.pool.QueryRow(ctx, query, repositoryID, accountID).Scan(
		&a.RepositoryID, &a.AccountID, &a.UUID, &a.UserID, &a.Realm,
		&a.Authority, &a.Provider, &a.Username, &a.Email, &a.EmailVerified,
		&a.Status, &a.Attributes, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) Save(ctx context.Context, a *domain.Account) error {
	const query = `
		INSERT INTO upstream_account (
			repository_id, account_id, uuid, user_id, realm, authority,
			provider, username, email, email_verified, status, attributes,
			created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (repository_id, account_id) DO UPDATE SET
			user_id = NULLIF($4, ''), username = $8, email = $9,
			email_verified = $10, status = $11, attributes = $12,
			updated_at = $14
	`
	_, err := r.pool.Exec(ctx, query,
		a.RepositoryID, a.AccountID, a.UUID, a.UserID, a.Realm, a.Authority,
		a.Provider, a.Username, a.Email, a.EmailVerified, a.Status, a.Attributes,
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *accountRepo) SetUserID(ctx context.Context, repositoryID, accountID, userID string) error {
	const query = `
		UPDATE upstream_account SET user_id = $3, updated_at = NOW()
		WHERE repository_id = $1 AND account_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, repositoryID, accountID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) SetStatus(ctx context.Context, repositoryID, accountID string, st domain.Status) error {
	const query = `
		UPDATE upstream_account SET status = $3, updated_at = NOW()
		WHERE repository_id = $1 AND account_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, repositoryID, accountID, string(st))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ─── credentials ───

type credRepo struct{ pool *pgxpool.Pool }

func (r *credRepo) Get(ctx context.Context, repositoryID, id string) (*domain.Credential, error) {
	const query = `
		SELECT id, repository_id, user_id, kind, secret_hash, status,
		       created_at, revoked_at
		FROM credential WHERE repository_id = $1 AND id = $2
	`
	var c domain.Credential
	err := r.pool.QueryRow(ctx, query, repositoryID, id).Scan(
		&c.ID, &c.RepositoryID, &c.UserID, &c.Kind, &c.SecretHash, &c.Status,
		&c.CreatedAt, &c.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credRepo) Save(ctx context.Context, c *domain.Credential) error {
	const query = `
		INSERT INTO credential (
			id, repository_id, user_id, kind, secret_hash, status,
			created_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (repository_id, id) DO UPDATE SET
			secret_hash = $5, status = $6, revoked_at = $8
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.RepositoryID, c.UserID, c.Kind, c.SecretHash, c.Status,
		c.CreatedAt, c.RevokedAt)
	return err
}

// ─── provider configs (authority.ConfigStore) ───

func (s *Store) Get(ctx context.Context, providerID string) ([]byte, error) {
	const query = `SELECT blob FROM provider_config WHERE provider_id = $1`
	var b []byte
	err := s.pool.QueryRow(ctx, query, providerID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (s *Store) Put(ctx context.Context, providerID string, blob []byte) error {
	const query = `
		INSERT INTO provider_config (provider_id, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (provider_id) DO UPDATE SET blob = $2, updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query, providerID, blob)
	return err
}

func (s *Store) Delete(ctx context.Context, providerID string) error {
	const query = `DELETE FROM provider_config WHERE provider_id = $1`
	tag, err := s.pool.Exec(ctx, query, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) (map[string][]byte, error) {
	const query = `SELECT provider_id, blob FROM provider_config`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var b []byte
		if err := rows.Scan(&id, &b); err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, rows.Err()
}
