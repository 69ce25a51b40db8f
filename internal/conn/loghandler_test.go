package conn

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogHandler_GroupedAttrs(t *testing.T) {
	var got []Notice
	h := &logHandler{next: slog.DiscardHandler, emit: func(n Notice) { got = append(got, n) }}

	log := slog.New(h).With("driver", "sqlite").WithGroup("sql").With("table", "User")
	log.Info("exec", "rows", 2)
	log.WithGroup("").Info("noop group")

	require.Len(t, got, 2)
	assert.Equal(t, "exec", got[0].Message)
	keys := make([]string, 0, len(got[0].Attrs))
	for _, a := range got[0].Attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"driver", "sql.table", "sql.rows"}, keys)
	assert.Len(t, got[1].Attrs, 2)
}

func TestEmitter_NoListeners(t *testing.T) {
	var e emitter
	assert.Nil(t, e.take(EventConnected))
	e.emit(Notice{Event: EventLog, Message: "dropped"})
	assert.Zero(t, e.count(EventLog))
}
