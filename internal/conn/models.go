package conn

import (
	"fmt"

	"github.com/roach88/caminte/internal/schema"
)

// Define registers def and its model on the connection and hands the
// definition to the adapter. A model without a primary key gets a
// generated "id" of the adapter's identifier kind.
func (c *Connection) Define(def *schema.Definition, m Model) error {
	if def.Name == "" {
		return fmt.Errorf("define: model requires a name")
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("define %s: %w", def.Name, err)
	}
	def.EnsurePrimaryKey(c.adapter.IDKind())

	c.mu.Lock()
	if err := c.defs.Register(def); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("define %s: %w", def.Name, err)
	}
	c.models[def.Name] = m
	c.mu.Unlock()

	if err := c.adapter.Define(def); err != nil {
		return fmt.Errorf("define %s: %w", def.Name, err)
	}
	c.log.Debug("model defined", "model", def.Name, "fields", def.FieldNames())
	return nil
}

// Definition returns the definition registered under name.
func (c *Connection) Definition(name string) (*schema.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defs.Get(name)
}

// Model returns the model registered under name.
func (c *Connection) Model(name string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// ModelNames returns the registered model names in definition order.
func (c *Connection) ModelNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defs.Names()
}

// ExtendModel adds fields to a defined model. Fields that already exist
// are left untouched; new ones are passed to the adapter.
func (c *Connection) ExtendModel(name string, fields ...schema.Field) error {
	def, ok := c.Definition(name)
	if !ok {
		return fmt.Errorf("extend %s: model is not defined", name)
	}
	for _, f := range fields {
		if def.HasField(f.Name) {
			continue
		}
		if err := c.adapter.DefineProperty(name, f); err != nil {
			return fmt.Errorf("extend %s.%s: %w", name, f.Name, err)
		}
		c.log.Debug("model extended", "model", name, "field", f.Name)
	}
	return nil
}
