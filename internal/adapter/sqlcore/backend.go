// Package sqlcore implements the adapter operations shared by the SQL
// backends on top of a compiled-statement executor. Backends supply the
// connection and the dialect; everything else lives here.
package sqlcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/querysql"
	"github.com/roach88/caminte/internal/schema"
)

// Executor runs compiled statements against a live connection.
type Executor interface {
	// Query returns every row as a column-name map.
	Query(ctx context.Context, sql string, args ...any) ([]adapter.Record, error)
	// Exec returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Config describes a SQL backend.
type Config struct {
	Name    string
	IDKind  schema.FieldType
	Dialect querysql.Dialect
	Codec   adapter.Codec
	Logger  *slog.Logger
}

// Backend implements every adapter.Adapter method except Connect and Close.
type Backend struct {
	*adapter.Models

	name   string
	idKind schema.FieldType
	log    *slog.Logger
	sql    *querysql.Compiler
	codec  adapter.Codec
	queue  *adapter.SchemaQueue

	mu sync.RWMutex
	ex Executor
}

// NewBackend creates a disconnected backend.
func NewBackend(cfg Config) *Backend {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("adapter", cfg.Name)
	return &Backend{
		Models: adapter.NewModels(cfg.Name),
		name:   cfg.Name,
		idKind: cfg.IDKind,
		log:    log,
		sql:    querysql.New(cfg.Dialect),
		codec:  cfg.Codec,
		queue:  adapter.NewSchemaQueue(log),
	}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) IDKind() schema.FieldType { return b.idKind }

// Logger returns the backend's logger.
func (b *Backend) Logger() *slog.Logger { return b.log }

// Attach installs a live executor after creating tables and indexes for
// every model defined so far. Operations and late Defines wait for it.
func (b *Backend) Attach(ctx context.Context, ex Executor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	logged := &loggingExecutor{ex: ex, log: b.log}
	for _, def := range b.All() {
		if err := b.createTable(ctx, logged, def); err != nil {
			return err
		}
	}
	b.ex = logged
	return nil
}

// Detach forgets the executor. Schema tasks already queued still run
// against it and fail once the connection is closed.
func (b *Backend) Detach() {
	b.mu.Lock()
	b.ex = nil
	b.mu.Unlock()
}

func (b *Backend) executor() Executor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ex
}

// conn waits for pending schema work and returns the executor.
func (b *Backend) conn(ctx context.Context) (Executor, error) {
	if err := b.queue.Wait(ctx); err != nil {
		return nil, err
	}
	ex := b.executor()
	if ex == nil {
		return nil, adapter.NotConnected(b.name)
	}
	return ex, nil
}

func (b *Backend) createTable(ctx context.Context, ex Executor, def *schema.Definition) error {
	if _, err := ex.Exec(ctx, b.sql.CreateTable(def)); err != nil {
		return fmt.Errorf("create table %s: %w", def.Name, err)
	}
	for _, idx := range def.Indexes() {
		if _, err := ex.Exec(ctx, b.sql.CreateIndex(def.Name, idx)); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// Define registers def. When already connected, the table is created in
// the background.
func (b *Backend) Define(def *schema.Definition) error {
	def.EnsurePrimaryKey(b.idKind)
	added, err := b.Register(def)
	if err != nil || !added {
		return err
	}
	if ex := b.executor(); ex != nil {
		b.queue.Enqueue(adapter.SchemaTask{
			Model: def.Name,
			Desc:  "create table",
			Run:   func(ctx context.Context) error { return b.createTable(ctx, ex, def) },
		})
	}
	return nil
}

// DefineProperty adds field. When already connected, the column is added in
// the background.
func (b *Backend) DefineProperty(model string, field schema.Field) error {
	added, err := b.AddProperty(model, field)
	if err != nil || !added {
		return err
	}
	if field.Type == "" {
		field.Type = schema.TypeString
	}
	if ex := b.executor(); ex != nil {
		b.queue.Enqueue(adapter.SchemaTask{
			Model: model,
			Desc:  "add column " + field.Name,
			Run: func(ctx context.Context) error {
				_, err := ex.Exec(ctx, b.sql.AddColumn(model, field))
				return err
			},
		})
	}
	return nil
}

// loggingExecutor logs every statement with its latency.
type loggingExecutor struct {
	ex  Executor
	log *slog.Logger
}

func (l *loggingExecutor) Query(ctx context.Context, sql string, args ...any) ([]adapter.Record, error) {
	start := time.Now()
	rows, err := l.ex.Query(ctx, sql, args...)
	l.log.Debug("sql query", "stmt", sql, "args", len(args), "rows", len(rows), "elapsed", time.Since(start), "error", err)
	return rows, err
}

func (l *loggingExecutor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	start := time.Now()
	n, err := l.ex.Exec(ctx, sql, args...)
	l.log.Debug("sql exec", "stmt", sql, "args", len(args), "affected", n, "elapsed", time.Since(start), "error", err)
	return n, err
}
