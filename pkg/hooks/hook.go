// Package hooks implements the lifecycle extension points the revision engine
// invokes around create, update, delete and read. Hooks are plain values
// composed into an explicit ordered chain; each hook's output record feeds
// the next one.
package hooks

import (
	"context"

	"github.com/openfed/manage/pkg/model"
)

// Hook is the capability set a lifecycle extension can implement. Embed
// NoopHook and override only what the hook needs.
type Hook interface {
	// AppliesTo gates every other method; a hook is skipped for records it
	// does not apply to.
	AppliesTo(record *model.MetaData) bool

	PreValidate(ctx context.Context, record *model.MetaData) (*model.MetaData, error)
	PreCreate(ctx context.Context, record *model.MetaData) (*model.MetaData, error)
	PreUpdate(ctx context.Context, previous, updated *model.MetaData) (*model.MetaData, error)
	PreDelete(ctx context.Context, record *model.MetaData) (*model.MetaData, error)
	PostRead(ctx context.Context, record *model.MetaData) (*model.MetaData, error)
}

// NoopHook applies to everything and passes records through unchanged.
type NoopHook struct{}

func (NoopHook) AppliesTo(*model.MetaData) bool { return true }

func (NoopHook) PreValidate(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	return record, nil
}

func (NoopHook) PreCreate(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	return record, nil
}

func (NoopHook) PreUpdate(_ context.Context, _, updated *model.MetaData) (*model.MetaData, error) {
	return updated, nil
}

func (NoopHook) PreDelete(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	return record, nil
}

func (NoopHook) PostRead(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	return record, nil
}

// Composite chains hooks in the order given. Ordering is load-bearing: the
// reconciler and registration hooks assume type coercion and constraint
// checks already ran.
type Composite struct {
	hooks []Hook
}

// NewComposite builds the chain from the given hooks.
func NewComposite(hooks ...Hook) *Composite {
	return &Composite{hooks: hooks}
}

func (c *Composite) AppliesTo(*model.MetaData) bool { return true }

func (c *Composite) PreValidate(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	var err error
	for _, hook := range c.hooks {
		if !hook.AppliesTo(record) {
			continue
		}
		if record, err = hook.PreValidate(ctx, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (c *Composite) PreCreate(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	var err error
	for _, hook := range c.hooks {
		if !hook.AppliesTo(record) {
			continue
		}
		if record, err = hook.PreCreate(ctx, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (c *Composite) PreUpdate(ctx context.Context, previous, updated *model.MetaData) (*model.MetaData, error) {
	var err error
	for _, hook := range c.hooks {
		if !hook.AppliesTo(updated) {
			continue
		}
		if updated, err = hook.PreUpdate(ctx, previous, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (c *Composite) PreDelete(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	var err error
	for _, hook := range c.hooks {
		if !hook.AppliesTo(record) {
			continue
		}
		if record, err = hook.PreDelete(ctx, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (c *Composite) PostRead(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	var err error
	for _, hook := range c.hooks {
		if !hook.AppliesTo(record) {
			continue
		}
		if record, err = hook.PostRead(ctx, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}
