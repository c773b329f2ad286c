package stats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // sqlite driver
)

// DefaultSQLitePath is used when the sqlite backend has no path configured.
const DefaultSQLitePath = "scan_stats.db"

var migrations = []string{
	`create table if not exists scans (
	id text primary key,
	scanned_at bigint not null
)`,
	`create table if not exists scan_totals (
	id integer primary key,
	total bigint not null
)`,
	`insert into scan_totals(id, total)
select 1, count(*) from scans
where not exists (select 1 from scan_totals where id = 1)`,
}

// SQLStore keeps a running total and the newest keep scan timestamps in a
// database/sql database.
type SQLStore struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	dialect string
	keep    int
}

// OpenSQLite opens (and migrates) a sqlite database at path. keep bounds
// the stored history; zero or less keeps every row.
func OpenSQLite(ctx context.Context, path string, keep int) (*SQLStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, dialect: BackendSQLite, keep: keep}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects a pgx pool and exposes it through database/sql.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse stats database dsn", "error", err)
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "idscan"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dctx, pc)
	if err != nil {
		logger.Error("failed to connect to stats database", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &SQLStore{db: stdlib.OpenDBFromPool(pool), pool: pool, dialect: BackendPostgres, keep: cfg.Keep}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("connected to stats database")
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate stats tables: %w", err)
		}
	}
	return nil
}

// bind returns the n-th positional placeholder for the store's dialect.
func (s *SQLStore) bind(n int) string {
	if s.dialect == BackendPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Increment bumps the total, records at and trims the history to the
// newest keep rows in one transaction.
func (s *SQLStore) Increment(ctx context.Context, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan record: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `update scan_totals set total = total + 1 where id = 1`); err != nil {
		return fmt.Errorf("bump scan total: %w", err)
	}
	insert := fmt.Sprintf(`insert into scans(id, scanned_at) values (%s, %s)`, s.bind(1), s.bind(2))
	if _, err = tx.ExecContext(ctx, insert, uuid.NewString(), at.UnixNano()); err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	if s.keep > 0 {
		prune := fmt.Sprintf(`delete from scans where id not in (
	select id from scans order by scanned_at desc, id desc limit %s
)`, s.bind(1))
		if _, err = tx.ExecContext(ctx, prune, s.keep); err != nil {
			return fmt.Errorf("prune scan history: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit scan record: %w", err)
	}
	return nil
}

func (s *SQLStore) RecentTimestamps(ctx context.Context, n int) ([]time.Time, error) {
	q := `select scanned_at from scans order by scanned_at desc`
	args := []any{}
	if n > 0 {
		q += " limit " + s.bind(1)
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []time.Time
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, time.Unix(0, ns))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLStore) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `select total from scan_totals where id = 1`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return total, nil
}

func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
