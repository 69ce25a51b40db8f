package entity

import (
	"context"
	"fmt"
)

// Hook is a lifecycle hook kind.
type Hook int

const (
	AfterInitialize Hook = iota
	BeforeValidate
	AfterValidate
	BeforeSave
	AfterSave
	BeforeCreate
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeRemove
	AfterRemove

	hookCount
)

var hookNames = [hookCount]string{
	"afterInitialize", "beforeValidate", "afterValidate", "beforeSave", "afterSave",
	"beforeCreate", "afterCreate", "beforeUpdate", "afterUpdate", "beforeRemove", "afterRemove",
}

func (h Hook) String() string {
	if h < 0 || h >= hookCount {
		return fmt.Sprintf("Hook(%d)", int(h))
	}
	return hookNames[h]
}

func (h Hook) after() bool {
	switch h {
	case AfterInitialize, AfterValidate, AfterSave, AfterCreate, AfterUpdate, AfterRemove:
		return true
	}
	return false
}

// HookEvent describes one hook invocation.
type HookEvent struct {
	Hook  Hook
	Model *Model
	// Entity is the instance concerned; nil for model-wide Update, Remove
	// and RemoveAll.
	Entity *Entity
	// Result is the operation's result for after hooks: the validity for
	// AfterValidate, []*Entity for AfterUpdate, bool for AfterRemove.
	Result any
}

// HookFunc is a lifecycle callback. Before hooks run before the operation
// starts. After hooks run once the result is final and cannot change it;
// a panicking after hook is logged and does not fail the operation.
type HookFunc func(ctx context.Context, ev HookEvent)

type hooks [hookCount]HookFunc

func (m *Model) fire(ctx context.Context, h Hook, e *Entity, result any) {
	fn := m.hooks[h]
	if fn == nil {
		return
	}
	ev := HookEvent{Hook: h, Model: m, Entity: e, Result: result}
	if !h.after() {
		fn(ctx, ev)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("after hook panicked", "hook", h.String(), "panic", r)
		}
	}()
	fn(context.WithoutCancel(ctx), ev)
}
