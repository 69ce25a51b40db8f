// Package adapter defines the operation set every storage backend
// implements, the registry that maps backend names to factories, and the
// value codec backends use to move records across their boundary.
//
// Every method takes a context and may block on I/O; callers that want
// concurrency run calls in their own goroutines. Implementations must be
// safe for concurrent use.
package adapter

import (
	"context"
	"log/slog"
	"maps"

	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// Record is a raw field map.
type Record = condition.Record

// Adapter is the uniform backend contract over the condition model.
//
// For any condition, Find must return the same logical record set on every
// backend. Operators a backend cannot express natively are emulated, never
// ignored.
type Adapter interface {
	// Name is the canonical registry name of the backend.
	Name() string

	// IDKind is the type of identifiers the backend generates. It is used
	// for synthesized primary keys and inferred foreign keys.
	IDKind() schema.FieldType

	// Connect establishes the backend connection and reconciles the physical
	// schema of models defined so far.
	Connect(ctx context.Context) error

	// Define registers a model. It is idempotent and does not block on I/O;
	// physical schema work runs in the background and failures are logged.
	Define(def *schema.Definition) error

	// DefineProperty adds a field to a defined model.
	DefineProperty(model string, field schema.Field) error

	Exists(ctx context.Context, model string, id any) (bool, error)
	Count(ctx context.Context, model string, cond condition.Condition) (int, error)

	// Create persists data and returns the stored record with its primary
	// key populated.
	Create(ctx context.Context, model string, data Record) (Record, error)

	// Save upserts by primary key. Without a key it behaves as Create.
	Save(ctx context.Context, model string, data Record) (Record, error)

	Find(ctx context.Context, model string, cond condition.Condition) ([]Record, error)

	// Update applies data to every matching record and returns the matched
	// records refetched after the write. The write and refetch are not atomic.
	Update(ctx context.Context, model string, cond condition.Condition, data Record) ([]Record, error)

	// UpdateOrCreate updates matching records or creates one when none match.
	UpdateOrCreate(ctx context.Context, model string, cond condition.Condition, data Record) ([]Record, error)

	// Remove deletes matching records and reports whether any were deleted.
	Remove(ctx context.Context, model string, cond condition.Condition) (bool, error)
	RemoveByID(ctx context.Context, model string, id any) (bool, error)
	RemoveAll(ctx context.Context, model string) error

	EnsureIndex(ctx context.Context, model string, idx schema.Index) error

	Close(ctx context.Context) error
}

// Settings configure a backend. Fields a backend does not use are ignored.
type Settings struct {
	Driver   string
	URL      string
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Logger receives statement and background-failure logs. Nil discards.
	Logger *slog.Logger
}

// Log returns the configured logger or a discarding one.
func (s Settings) Log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// SeedFromWhere builds the record UpdateOrCreate inserts when nothing
// matched: the where clause's top-level equality literals overlaid by data.
func SeedFromWhere(w condition.Where, data Record) Record {
	out := make(Record, len(data)+len(w.Terms))
	for _, t := range w.Terms {
		if eq, ok := t.Constraint.(condition.Equals); ok && !eq.IsNull() {
			out[t.Field] = eq.Value
		}
	}
	maps.Copy(out, data)
	return out
}
