// Package postgres is the PostgreSQL adapter, built on a pgx connection
// pool. Dates and JSON values use native column types.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/sqlcore"
	"github.com/roach88/caminte/internal/querysql"
	"github.com/roach88/caminte/internal/schema"
)

// Name is the registry name of the PostgreSQL backend.
const Name = "postgres"

func init() {
	adapter.Register(Name, func(s adapter.Settings) (adapter.Adapter, error) {
		return New(s), nil
	}, "pg", "postgresql")
}

// Adapter is a PostgreSQL-backed adapter.
type Adapter struct {
	*sqlcore.Backend

	settings adapter.Settings

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New creates a disconnected PostgreSQL adapter.
func New(s adapter.Settings) *Adapter {
	return &Adapter{
		Backend: sqlcore.NewBackend(sqlcore.Config{
			Name:    Name,
			IDKind:  schema.TypeInt,
			Dialect: querysql.Postgres,
			Codec:   adapter.Codec{Time: adapter.TimeNative},
			Logger:  s.Logger,
		}),
		settings: s,
	}
}

// ConnString returns the pgx connection string for s. URL wins over the
// individual fields.
func ConnString(s adapter.Settings) string {
	if s.URL != "" {
		return s.URL
	}
	host := s.Host
	if host == "" {
		host = "localhost"
	}
	if s.Port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(s.Port))
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + s.Database}
	switch {
	case s.Username != "" && s.Password != "":
		u.User = url.UserPassword(s.Username, s.Password)
	case s.Username != "":
		u.User = url.User(s.Username)
	}
	return u.String()
}

// Connect creates the pool, pings it and creates tables for the models
// defined so far.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, ConnString(a.settings))
	if err != nil {
		return fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := a.Attach(ctx, executor{pool: pool}); err != nil {
		pool.Close()
		return err
	}
	a.pool = pool
	a.Logger().Info("connected", "database", a.settings.Database)
	return nil
}

// Close closes the pool. It is safe to call more than once.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool == nil {
		return nil
	}
	a.Detach()
	a.pool.Close()
	a.pool = nil
	return nil
}

// executor runs statements on a pgx pool.
type executor struct {
	pool *pgxpool.Pool
}

func (e executor) Query(ctx context.Context, sql string, args ...any) ([]adapter.Record, error) {
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []adapter.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(adapter.Record, len(fields))
		for i, f := range fields {
			rec[f.Name] = plain(values[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (e executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// plain converts pgx wrapper types to plain Go values.
func plain(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	default:
		return v
	}
}
