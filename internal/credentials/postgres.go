package credentials

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by PostgresRepository.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository stores credentials in the credential table. Digest and
// salt are kept base64-encoded in text columns.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, login string) (*Credential, error) {
	query :=
		`SELECT password, salt FROM credential
		 WHERE login = $1
		 `

	var digest, salt sql.NullString
	err := r.db.QueryRowContext(ctx, query, login).Scan(&digest, &salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if !digest.Valid || !salt.Valid {
		return nil, fmt.Errorf("%w: null digest or salt for %q", ErrInconsistent, login)
	}

	c := &Credential{Login: login}
	if c.Digest, err = base64.StdEncoding.DecodeString(digest.String); err != nil {
		return nil, fmt.Errorf("%w: digest: %v", ErrInconsistent, err)
	}
	if c.Salt, err = base64.StdEncoding.DecodeString(salt.String); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrInconsistent, err)
	}
	return c, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, login string) (bool, error) {
	query :=
		`SELECT 1 FROM credential
		 WHERE login = $1
		 LIMIT 1
		 `

	var one int
	err := r.db.QueryRowContext(ctx, query, login).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, c *Credential) error {
	query :=
		`INSERT INTO credential (login, password, salt)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query,
		c.Login,
		base64.StdEncoding.EncodeToString(c.Digest),
		base64.StdEncoding.EncodeToString(c.Salt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
