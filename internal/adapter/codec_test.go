package adapter_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

func eventModel() *schema.Definition {
	def := schema.New("Event",
		schema.Field{Name: "title"},
		schema.Field{Name: "at", Type: schema.TypeDate},
		schema.Field{Name: "done", Type: schema.TypeBoolean},
		schema.Field{Name: "meta", Type: schema.TypeJSON},
		schema.Field{Name: "ref", Type: schema.TypeUUID},
	)
	def.EnsurePrimaryKey(schema.TypeInt)
	return def
}

func TestCodec_ToDatabase(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	data := adapter.Record{
		"id":    nil,
		"title": "launch",
		"at":    at,
		"meta":  map[string]any{"k": 1},
		"extra": "dropped",
		"done":  true,
	}

	t.Run("millis and json text", func(t *testing.T) {
		codec := adapter.Codec{Time: adapter.TimeMillis, JSONText: true}
		out, err := codec.ToDatabase(eventModel(), data)
		require.NoError(t, err)
		assert.Equal(t, adapter.Record{
			"title": "launch",
			"at":    at.UnixMilli(),
			"meta":  `{"k":1}`,
			"done":  true,
		}, out)
	})

	t.Run("native", func(t *testing.T) {
		out, err := adapter.Codec{}.ToDatabase(eventModel(), data)
		require.NoError(t, err)
		assert.Equal(t, at, out["at"])
		assert.Equal(t, map[string]any{"k": 1}, out["meta"])
		assert.NotContains(t, out, "id")
		assert.NotContains(t, out, "extra")
	})

	t.Run("unencodable", func(t *testing.T) {
		codec := adapter.Codec{JSONText: true}
		_, err := codec.ToDatabase(eventModel(), adapter.Record{"meta": map[string]any{"f": func() {}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encode Event.meta")
	})
}

func TestCodec_DateStrings(t *testing.T) {
	codec := adapter.Codec{Time: adapter.TimeMillis}
	v, err := codec.Value(schema.TypeDate, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), v)

	v, err = codec.Value(schema.TypeString, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", v)
}

func TestCodec_FromDatabase(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ref := uuid.New()
	codec := adapter.Codec{Time: adapter.TimeMillis, JSONText: true}

	out := codec.FromDatabase(eventModel(), adapter.Record{
		"id":      int64(7),
		"title":   []byte("launch"),
		"at":      at.UnixMilli(),
		"done":    int64(1),
		"meta":    `{"k":[1,2]}`,
		"ref":     [16]byte(ref),
		"unknown": "dropped",
	})

	assert.Equal(t, int64(7), out["id"])
	assert.Equal(t, "launch", out["title"])
	assert.True(t, at.Equal(out["at"].(time.Time)))
	assert.Equal(t, true, out["done"])
	assert.Equal(t, map[string]any{"k": []any{float64(1), float64(2)}}, out["meta"])
	assert.Equal(t, ref.String(), out["ref"])
	assert.NotContains(t, out, "unknown")
}

func TestCodec_FromDatabaseTextDates(t *testing.T) {
	out := adapter.Codec{}.FromDatabase(eventModel(), adapter.Record{
		"at": "2024-03-01 12:00:00",
	})
	assert.True(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Equal(out["at"].(time.Time)))
}

func TestCodec_Where(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	codec := adapter.Codec{Time: adapter.TimeMillis}
	w := condition.MustParse(map[string]any{"where": map[string]any{
		"at":    map[string]any{"between": []any{at, "2024-03-02"}},
		"title": "2024-03-01",
		"or":    []any{map[string]any{"at": at}},
	}}).Where

	out := codec.Where(eventModel(), w)

	c, _ := out.Get("at")
	bounds, _ := c.(condition.Ops).Get(condition.OpBetween)
	assert.Equal(t, []any{at.UnixMilli(), at.Add(24 * time.Hour).UnixMilli()}, bounds)

	c, _ = out.Get("title")
	assert.Equal(t, condition.Equals{Value: "2024-03-01"}, c)

	c, _ = out.Or[0].Get("at")
	assert.Equal(t, condition.Equals{Value: at.UnixMilli()}, c)
}

func TestSeedFromWhere(t *testing.T) {
	w := condition.MustParse(map[string]any{"where": map[string]any{
		"name":  "Eve",
		"email": nil,
		"age":   map[string]any{"gt": 3},
	}}).Where

	seed := adapter.SeedFromWhere(w, adapter.Record{"age": 40, "name": "Override"})
	assert.Equal(t, adapter.Record{"name": "Override", "age": 40}, seed)
}
