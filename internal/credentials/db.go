package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Tyrowin/linechat/internal/credentials/migrations"
)

// sqlOpen and gooseUpContext are seams for tests.
var (
	sqlOpen        = sql.Open
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
)

// OpenPostgres opens a pgx-backed *sql.DB and pings it, retrying up to
// attempts times with interval between tries.
func OpenPostgres(ctx context.Context, dsn string, attempts int, interval time.Duration) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if attempts <= 0 {
		attempts = 1
	}

	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if i >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("db ping error after %d attempts: %w", attempts, err)
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
