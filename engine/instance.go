package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/tale/compiler/hash"
	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/fault"
)

// Instance is one execution of a script. Methods serialize on the
// instance, but an instance is meant to be driven by one host goroutine.
type Instance struct {
	ID      string
	Key     hash.Key
	Created time.Time

	engine *Engine
	source string

	mu sync.Mutex
	m  *bytecode.Machine
}

func newInstance(e *Engine, src string, m *bytecode.Machine) *Instance {
	return &Instance{
		ID:      uuid.NewString(),
		Key:     hash.SourceKey(src),
		Created: time.Now(),
		engine:  e,
		source:  src,
		m:       m,
	}
}

// Source returns the script source the instance was started from.
func (i *Instance) Source() string { return i.source }

// State returns the machine state.
func (i *Instance) State() bytecode.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.m.State()
}

// Fault returns the fault that failed the instance, if any.
func (i *Instance) Fault() *fault.Fault {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.m.Fault()
}

// PauseReason returns why the instance is suspended.
func (i *Instance) PauseReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.m.PauseReason()
}

// Lookup returns a variable from the instance environment.
func (i *Instance) Lookup(name string) (bytecode.Value, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.m.Lookup(name)
}

// Env returns a copy of the instance environment.
func (i *Instance) Env() map[string]bytecode.Value {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.m.Env()
}

// Resume continues a suspended instance with v as the result of the call
// that paused it.
func (i *Instance) Resume(ctx context.Context, v bytecode.Value) (bytecode.State, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	state, err := i.m.Resume(ctx, v)
	i.settle(ctx)
	return state, err
}

// Cancel abandons the instance. A persisted copy is removed too.
func (i *Instance) Cancel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m.Cancel()
	i.settle(context.Background())
}

// settle logs the outcome of a run and drops finished instances from the
// engine and the store. Callers hold i.mu.
func (i *Instance) settle(ctx context.Context) {
	e := i.engine
	switch st := i.m.State(); st {
	case bytecode.Suspended:
		log.Debugf("instance %s: suspended (%s)", i.ID, i.m.PauseReason())
		return
	case bytecode.Failed:
		log.Infof("instance %s: %s", i.ID, i.m.Fault().Summary())
	default:
		log.Debugf("instance %s: %s after %d steps", i.ID, st, i.m.Steps())
	}
	e.forget(i.ID)
	if e.store != nil {
		if err := e.store.DeleteInstance(context.WithoutCancel(ctx), i.ID); err != nil {
			log.Warningf("instance %s: %s", i.ID, err)
		}
	}
}

// Save persists a suspended instance so it can be loaded later, possibly
// by another engine sharing the store.
func (e *Engine) Save(ctx context.Context, inst *Instance) error {
	if e.store == nil {
		return ErrNoStore
	}
	inst.mu.Lock()
	snap, err := inst.m.Snapshot()
	inst.mu.Unlock()
	if err != nil {
		return fmt.Errorf("engine: save %s: %w", inst.ID, err)
	}

	data, err := bytecode.MarshalSnapshot(snap, e.refs)
	if err != nil {
		return fmt.Errorf("engine: save %s: %w", inst.ID, err)
	}
	err = e.store.SaveInstance(ctx, &Record{
		ID:       inst.ID,
		Source:   inst.source,
		Snapshot: data,
		Reason:   snap.Reason,
		SavedAt:  time.Now(),
	})
	if err != nil {
		return err
	}
	log.Debugf("instance %s: saved (%d bytes)", inst.ID, len(data))
	return nil
}

// Load returns the instance with the given id: the live one if this
// engine still holds it, otherwise the persisted copy restored through the
// compile cache.
func (e *Engine) Load(ctx context.Context, id string) (*Instance, error) {
	if inst, ok := e.Instance(id); ok {
		return inst, nil
	}
	if e.store == nil {
		return nil, ErrNoStore
	}

	r, err := e.store.LoadInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := e.Compile(ctx, r.Source)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", id, err)
	}
	snap, err := bytecode.UnmarshalSnapshot(r.Snapshot, e.funcs, e.refs)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", id, err)
	}
	m, err := bytecode.Restore(chain, e.funcs, snap, e.machineOptions()...)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", id, err)
	}

	inst := newInstance(e, r.Source, m)
	inst.ID = id
	inst.Created = r.SavedAt
	e.track(inst)
	log.Debugf("instance %s: loaded", id)
	return inst, nil
}

// Saved lists the ids of persisted instances.
func (e *Engine) Saved(ctx context.Context) ([]string, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store.ListInstances(ctx)
}
