package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/memory"
)

var fakeSettings adapter.Settings

func init() {
	adapter.Register("Fake", func(s adapter.Settings) (adapter.Adapter, error) {
		fakeSettings = s
		return memory.New(s), nil
	}, "FakeAlias")
}

func TestRegistry_Resolve(t *testing.T) {
	name, ok := adapter.Resolve("fakealias")
	assert.True(t, ok)
	assert.Equal(t, "fake", name)

	name, ok = adapter.Resolve("FAKE")
	assert.True(t, ok)
	assert.Equal(t, "fake", name)

	_, ok = adapter.Resolve("nosuch")
	assert.False(t, ok)
}

func TestRegistry_OpenFillsDriver(t *testing.T) {
	_, err := adapter.Open("fakealias", adapter.Settings{Database: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fake", fakeSettings.Driver)
	assert.Equal(t, "x", fakeSettings.Database)
}

func TestRegistry_UnknownBackend(t *testing.T) {
	_, err := adapter.Open("redis", adapter.Settings{})
	require.Error(t, err)
	assert.True(t, adapter.IsUnknownBackend(err))
	assert.Contains(t, err.Error(), `"redis"`)

	var ube *adapter.UnknownBackendError
	require.ErrorAs(t, err, &ube)
	assert.Equal(t, "redis", ube.Name)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		adapter.Register("fake", func(adapter.Settings) (adapter.Adapter, error) { return nil, nil })
	})
}

func TestRegistry_Backends(t *testing.T) {
	names := adapter.Backends()
	assert.Contains(t, names, "fake")
	assert.Contains(t, names, "memory")
	assert.IsNonDecreasing(t, names)
}

func TestErrors(t *testing.T) {
	err := adapter.UnknownModel("sqlite", "Person")
	assert.True(t, adapter.IsUnknownModel(err))
	assert.False(t, adapter.IsNotConnected(err))
	assert.Equal(t, "UNKNOWN_MODEL: model is not defined (adapter=sqlite, model=Person)", err.Error())

	err = adapter.NotConnected("postgres")
	assert.True(t, adapter.IsNotConnected(err))
	assert.Equal(t, "NOT_CONNECTED: adapter is not connected (adapter=postgres)", err.Error())

	assert.False(t, adapter.IsUnknownModel(nil))
}
