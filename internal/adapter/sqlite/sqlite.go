// Package sqlite is the SQLite adapter, built on mattn/go-sqlite3.
//
// Dates are stored as unix milliseconds and structured values as JSON
// text. A REGEXP function is registered on every connection so like and
// nlike keep regular-expression semantics.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/sqlcore"
	"github.com/roach88/caminte/internal/querysql"
	"github.com/roach88/caminte/internal/schema"
)

// Name is the registry name of the SQLite backend.
const Name = "sqlite"

// driverName is the database/sql driver with the REGEXP hook installed.
const driverName = "sqlite3_caminte"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", regexpMatch, true)
		},
	})
	adapter.Register(Name, func(s adapter.Settings) (adapter.Adapter, error) {
		return New(s), nil
	}, "sqlite3")
}

// Adapter is a SQLite-backed adapter.
type Adapter struct {
	*sqlcore.Backend

	settings adapter.Settings

	mu sync.Mutex
	db *sql.DB
}

// New creates a disconnected SQLite adapter. Settings.Database (or URL) is
// the file path; empty means a private in-memory database.
func New(s adapter.Settings) *Adapter {
	return &Adapter{
		Backend: sqlcore.NewBackend(sqlcore.Config{
			Name:    Name,
			IDKind:  schema.TypeInt,
			Dialect: querysql.SQLite,
			Codec:   adapter.Codec{Time: adapter.TimeMillis, JSONText: true},
			Logger:  s.Logger,
		}),
		settings: s,
	}
}

func (a *Adapter) path() string {
	switch {
	case a.settings.Database != "":
		return a.settings.Database
	case a.settings.URL != "":
		return strings.TrimPrefix(a.settings.URL, "sqlite://")
	default:
		return ":memory:"
	}
}

// Connect opens the database, applies pragmas and creates tables for the
// models defined so far.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}

	db, err := open(ctx, a.path())
	if err != nil {
		return err
	}
	if err := a.Attach(ctx, executor{db: db}); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.Logger().Info("connected", "path", a.path())
	return nil
}

func open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database. It is safe to call more than once.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	a.Detach()
	err := a.db.Close()
	a.db = nil
	return err
}

// executor runs statements on a *sql.DB.
type executor struct {
	db *sql.DB
}

func (e executor) Query(ctx context.Context, query string, args ...any) ([]adapter.Record, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []adapter.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(adapter.Record, len(cols))
		for i, col := range cols {
			rec[col] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var patterns sync.Map // string -> *regexp.Regexp

// regexpMatch backs "value REGEXP pattern". NULL never matches.
func regexpMatch(pattern string, value any) (bool, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return false, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		s = fmt.Sprint(v)
	}
	re, ok := patterns.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		re, _ = patterns.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s), nil
}
