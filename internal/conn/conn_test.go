package conn_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"

	"github.com/roach88/caminte/internal/adapter"
	_ "github.com/roach88/caminte/internal/adapter/memory"
	_ "github.com/roach88/caminte/internal/adapter/sqlite"
	"github.com/roach88/caminte/internal/conn"
	"github.com/roach88/caminte/internal/schema"
)

type model struct{ def *schema.Definition }

func (m model) Definition() *schema.Definition { return m.def }

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func waitConnected(t *testing.T, c *conn.Connection) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestOpen_UnknownBackendIsSynchronous(t *testing.T) {
	_, err := conn.Open("cassandra", adapter.Settings{})
	require.Error(t, err)
	assert.True(t, adapter.IsUnknownBackend(err))
}

func TestOpen_ConnectsInBackground(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Driver())

	waitConnected(t, c)
	assert.True(t, c.Connected())
	assert.NoError(t, c.Err())
}

func TestConnect_FailureEmitsError(t *testing.T) {
	c, err := conn.Open("sqlite", adapter.Settings{Database: "/nonexistent/dir/db.sqlite"},
		conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)

	var got error
	c.On(conn.EventError, func(n conn.Notice) { got = n.Err })

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, got)
	assert.Equal(t, err, c.Err())
	assert.False(t, c.Connected())
	assert.Contains(t, err.Error(), "connect sqlite")
}

func TestConnect_WithoutListeners(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			c, err := conn.Open(driver, adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
			require.NoError(t, err)
			require.Zero(t, c.Listeners(conn.EventConnected))
			require.Zero(t, c.Listeners(conn.EventLog))

			require.NoError(t, c.Connect(context.Background()))
			defer c.Disconnect(context.Background())
			assert.True(t, c.Connected())
		})
	}
}

// gatedAdapter blocks Connect until the test releases a result.
type gatedAdapter struct {
	adapter.Adapter
	entered chan struct{}
	results chan error
}

func (g *gatedAdapter) Connect(ctx context.Context) error {
	g.entered <- struct{}{}
	if err := <-g.results; err != nil {
		return err
	}
	return g.Adapter.Connect(ctx)
}

var gate = &gatedAdapter{entered: make(chan struct{}), results: make(chan error)}

func init() {
	adapter.Register("gated", func(s adapter.Settings) (adapter.Adapter, error) {
		inner, err := adapter.Open("memory", adapter.Settings{Logger: s.Logger})
		if err != nil {
			return nil, err
		}
		gate.Adapter = inner
		return gate, nil
	})
}

func TestConnect_RetryAfterFailureIsWaitable(t *testing.T) {
	c, err := conn.Open("gated", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connected := make(chan error, 1)
	go func() { connected <- c.Connect(ctx) }()
	<-gate.entered
	gate.results <- errors.New("refused")
	require.Error(t, <-connected)
	require.Error(t, c.Wait(ctx))

	go func() { connected <- c.Connect(ctx) }()
	<-gate.entered

	waited := make(chan error, 1)
	go func() { waited <- c.Wait(ctx) }()
	select {
	case err := <-waited:
		t.Fatalf("Wait returned %v before the retry finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	gate.results <- nil
	require.NoError(t, <-connected)
	require.NoError(t, <-waited)
	assert.True(t, c.Connected())
	assert.NoError(t, c.Err())
}

func TestDefer(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	runs := 0
	wg.Add(2)
	for range 2 {
		deferred := c.Defer(func() {
			defer wg.Done()
			mu.Lock()
			runs++
			mu.Unlock()
		})
		assert.True(t, deferred)
	}
	assert.Equal(t, 2, c.Listeners(conn.EventConnected))

	mu.Lock()
	assert.Zero(t, runs, "deferred work must not run before connect")
	mu.Unlock()

	require.NoError(t, c.Connect(context.Background()))
	wg.Wait()
	assert.Equal(t, 2, runs)
	assert.Zero(t, c.Listeners(conn.EventConnected), "deferred listeners are one-shot")

	assert.False(t, c.Defer(func() { t.Error("must not run once connected") }))
}

func TestOnAndOnce(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)
	ctx := context.Background()

	every, once := 0, 0
	remove := c.On(conn.EventConnected, func(conn.Notice) { every++ })
	c.Once(conn.EventConnected, func(conn.Notice) { once++ })

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Disconnect(ctx))
	assert.False(t, c.Connected())
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, 2, every)
	assert.Equal(t, 1, once)

	remove()
	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, 2, every)
}

func TestLogEvents(t *testing.T) {
	c, err := conn.Open("sqlite", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)

	var mu sync.Mutex
	var messages []string
	c.On(conn.EventLog, func(n conn.Notice) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, n.Message)
	})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, messages, "connected")
}

func TestDefine(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()))
	require.NoError(t, err)
	waitConnected(t, c)

	def := schema.New("User", schema.Field{Name: "name"})
	require.NoError(t, c.Define(def, model{def}))

	assert.Equal(t, "id", def.PrimaryKey(), "primary key synthesized")
	assert.Equal(t, schema.TypeInt, def.TypeOf("id"))
	assert.Equal(t, []string{"User"}, c.ModelNames())

	got, ok := c.Model("User")
	require.True(t, ok)
	assert.Same(t, def, got.Definition())

	other := schema.New("User", schema.Field{Name: "email"})
	assert.Error(t, c.Define(other, model{other}))
	assert.Error(t, c.Define(schema.New(""), model{}))
}

func TestExtendModel(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()))
	require.NoError(t, err)
	waitConnected(t, c)

	def := schema.New("Post", schema.Field{Name: "title"})
	require.NoError(t, c.Define(def, model{def}))
	require.NoError(t, c.ExtendModel("Post",
		schema.Field{Name: "title", Type: schema.TypeText},
		schema.Field{Name: "userId", Type: schema.TypeInt},
	))

	assert.Equal(t, []string{"title", "id", "userId"}, def.FieldNames())
	assert.Equal(t, schema.TypeString, def.TypeOf("title"), "existing fields are not redefined")

	assert.Error(t, c.ExtendModel("Nope", schema.Field{Name: "x"}))
}

func TestWithMetrics(t *testing.T) {
	scope := tally.NewTestScope("", map[string]string{})
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithMetrics(scope))
	require.NoError(t, err)
	waitConnected(t, c)

	_, ok := c.Adapter().(*adapter.Instrumented)
	assert.True(t, ok)
}

func TestWait_HonorsContext(t *testing.T) {
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(c.Wait(ctx), context.DeadlineExceeded))
}
