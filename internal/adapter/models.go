package adapter

import (
	"github.com/roach88/caminte/internal/schema"
)

// Models holds the definitions registered with one adapter. Backends embed
// it to share Define bookkeeping.
type Models struct {
	adapter string
	reg     *schema.Registry
}

// NewModels creates an empty model set for the named adapter.
func NewModels(adapterName string) *Models {
	return &Models{adapter: adapterName, reg: schema.NewRegistry()}
}

// Register records def. Defining the same definition again is a no-op and
// reports false.
func (m *Models) Register(def *schema.Definition) (bool, error) {
	if _, ok := m.reg.Get(def.Name); ok {
		return false, m.reg.Register(def)
	}
	if err := m.reg.Register(def); err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns the definition for model or an unknown-model error.
func (m *Models) Lookup(model string) (*schema.Definition, error) {
	def, ok := m.reg.Get(model)
	if !ok {
		return nil, UnknownModel(m.adapter, model)
	}
	return def, nil
}

// AddProperty adds field to a defined model and reports whether it is new.
func (m *Models) AddProperty(model string, field schema.Field) (bool, error) {
	def, err := m.Lookup(model)
	if err != nil {
		return false, err
	}
	return def.AddField(field), nil
}

// All returns the definitions in registration order.
func (m *Models) All() []*schema.Definition {
	return m.reg.All()
}
