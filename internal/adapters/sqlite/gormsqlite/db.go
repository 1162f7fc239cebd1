package gormsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	gormdriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

const defaultSlowThreshold = 200 * time.Millisecond

// DB pairs a single-connection writer with a pool of query-only readers on
// the same SQLite file.
type DB struct {
	R *gorm.DB
	W *gorm.DB
}

type Tx struct {
	*gorm.DB
}

type cbfn func(tx *Tx) error

func (db *DB) ReadTX(ctx context.Context, fn cbfn) error {
	return db.R.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

// WriteTX runs fn on the single writer connection, so write transactions on
// one file never interleave inside this process.
func (db *DB) WriteTX(ctx context.Context, fn cbfn) error {
	return db.W.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	})
}

func (db *DB) WriteSQLDB() (*sql.DB, error) {
	return db.W.DB()
}

func (db *DB) ReadSQLDB() (*sql.DB, error) {
	return db.R.DB()
}

// Close closes readers and the writer, reporting every failure.
func (db *DB) Close() error {
	return multierr.Combine(closeGORM(db.R), closeGORM(db.W))
}

var _ io.Closer = (*DB)(nil)

type options struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

type Option func(*options)

// WithLogger routes gorm's query log to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSlowThreshold sets the duration above which a query is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.slowThreshold = d
		}
	}
}

// Open opens file with one writer connection and a pool of query-only
// readers. Parent directories are created when missing.
func Open(file string, opts ...Option) (*DB, error) {
	o := options{logger: zap.NewNop(), slowThreshold: defaultSlowThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	queries := newQueryLogger(o.logger.With(zap.String("db", filepath.Base(file))), o.slowThreshold)
	// gorm keeps and mutates its config, so each handle gets its own.
	gormConfig := func() *gorm.Config {
		return &gorm.Config{PrepareStmt: true, Logger: queries}
	}

	// The writer goes first so the file exists and is in WAL mode before a
	// query-only connection touches it.
	writer, err := gorm.Open(gormdriver.Dialector{DriverName: "sqlite", DSN: buildDSN(file, false)}, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	wdb, err := writer.DB()
	if err != nil {
		_ = closeGORM(writer)
		return nil, fmt.Errorf("writer sql db: %w", err)
	}
	configurePool(wdb, 1)
	if err := wdb.Ping(); err != nil {
		_ = closeGORM(writer)
		return nil, fmt.Errorf("ping write db: %w", err)
	}

	reader, err := gorm.Open(gormdriver.Dialector{DriverName: "sqlite", DSN: buildDSN(file, true)}, gormConfig())
	if err != nil {
		_ = closeGORM(writer)
		return nil, fmt.Errorf("open read db: %w", err)
	}
	rdb, err := reader.DB()
	if err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("reader sql db: %w", err)
	}
	configurePool(rdb, runtime.NumCPU())

	return &DB{R: reader, W: writer}, nil
}

func configurePool(db *sql.DB, size int) {
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
}

var basePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"wal_autocheckpoint(1000)",
	"cache_size(-20000)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"trusted_schema(OFF)",
}

// buildDSN encodes the pragmas as _pragma parameters so that every pooled
// connection gets them, not just the first one.
func buildDSN(file string, readOnly bool) string {
	pragmas := append([]string(nil), basePragmas...)
	if readOnly {
		pragmas = append(pragmas, "query_only(1)")
	} else {
		pragmas = append(pragmas, "query_only(0)")
	}

	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	return "file:" + file + "?" + strings.Join(params, "&")
}

func closeGORM(g *gorm.DB) error {
	if g == nil {
		return nil
	}
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
