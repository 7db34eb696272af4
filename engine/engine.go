// Package engine is the host-facing facade over the scripting pipeline.
//
// An Engine owns the callable table, the compile cache and, when a store
// path is configured, a SQLite database holding compiled chains and
// suspended instances. Hosts compile source through the cache, start
// instances with initial bindings, resume them when a paused callable's
// result is ready, and may persist a suspended instance to continue it in
// another process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/tale/compiler"
	"github.com/chazu/tale/manifest"
	"github.com/chazu/tale/pkg/bytecode"
	"github.com/chazu/tale/pkg/cache"
	"github.com/chazu/tale/pkg/fault"
)

var log = commonlog.GetLogger("tale.engine")

// ErrNoStore is returned by Save and Load when persistence is disabled.
var ErrNoStore = errors.New("engine: no store configured")

// Engine is safe for concurrent use. The instances it hands out are not.
type Engine struct {
	cfg   manifest.Config
	funcs *bytecode.Table
	refs  bytecode.RefCodec
	known map[string]compiler.Kind
	extra []bytecode.Option
	cache *cache.Cache
	store *Store

	mu        sync.Mutex
	instances map[string]*Instance
}

// Option configures an Engine.
type Option func(*Engine)

// WithFuncs sets the callable table shared by every instance.
func WithFuncs(t *bytecode.Table) Option {
	return func(e *Engine) { e.funcs = t }
}

// WithRefCodec sets the codec used to persist host references.
func WithRefCodec(rc bytecode.RefCodec) Option {
	return func(e *Engine) { e.refs = rc }
}

// WithKnownKinds tells the type checker the kinds of host-provided
// globals.
func WithKnownKinds(known map[string]compiler.Kind) Option {
	return func(e *Engine) { e.known = known }
}

// WithMachineOptions adds options to every machine the engine creates,
// for example bytecode.WithTrace.
func WithMachineOptions(opts ...bytecode.Option) Option {
	return func(e *Engine) { e.extra = append(e.extra, opts...) }
}

// WithStore uses an already open store instead of the configured path.
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// New creates an engine from cfg.
func New(cfg manifest.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.funcs == nil {
		e.funcs = bytecode.NewTable()
	}

	if e.store == nil {
		if path := cfg.StorePath(); path != "" {
			s, err := OpenStore(path)
			if err != nil {
				return nil, err
			}
			e.store = s
			log.Infof("using store %s", path)
		}
	}

	var cacheOpts []cache.Option
	if e.store != nil {
		cacheOpts = append(cacheOpts, cache.WithStore(e.store))
	}
	c, err := cache.New(cfg.Cache.Capacity, e.compile, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.cache = c
	return e, nil
}

// Close releases the store, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Funcs returns the callable table.
func (e *Engine) Funcs() *bytecode.Table { return e.funcs }

// Cache returns the compile cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Store returns the persistence store, or nil.
func (e *Engine) Store() *Store { return e.store }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() manifest.Config { return e.cfg }

// compile is the cache's compile function: parse, optionally type check,
// then generate code. Diagnostics come back as a fault.List.
func (e *Engine) compile(src string) (*bytecode.Chain, error) {
	block, err := compiler.ParseScript(src)
	if err != nil {
		return nil, err
	}
	if e.cfg.TypecheckEnabled() {
		if faults := compiler.Check(block, e.known); len(faults) > 0 {
			return nil, fault.List(faults)
		}
	}
	return compiler.Compile(block)
}

// Compile returns the chain for src, from the cache when possible.
func (e *Engine) Compile(ctx context.Context, src string) (*bytecode.Chain, error) {
	return e.cache.Get(ctx, src)
}

// Check parses src and returns the type checker's diagnostics without
// compiling. Syntax errors are returned as the error.
func (e *Engine) Check(src string) (fault.List, error) {
	block, err := compiler.ParseScript(src)
	if err != nil {
		return nil, err
	}
	return fault.List(compiler.Check(block, e.known)), nil
}

func (e *Engine) machineOptions() []bytecode.Option {
	opts := append([]bytecode.Option(nil), e.extra...)
	if n := e.cfg.Engine.MaxSteps; n > 0 {
		opts = append(opts, bytecode.WithMaxSteps(n))
	}
	return opts
}

// Start compiles src, creates an instance bound to bindings and runs it
// until it completes, fails or suspends. When the run fails, the instance
// is returned together with its fault.
func (e *Engine) Start(ctx context.Context, src string, bindings map[string]bytecode.Value) (*Instance, error) {
	chain, err := e.Compile(ctx, src)
	if err != nil {
		return nil, err
	}
	m := bytecode.NewMachine(chain, e.funcs, bindings, e.machineOptions()...)
	inst := newInstance(e, src, m)
	e.track(inst)

	log.Debugf("instance %s: start", inst.ID)
	inst.mu.Lock()
	defer inst.mu.Unlock()
	_, err = m.Run(ctx)
	inst.settle(ctx)
	return inst, err
}

// Instance returns a live (not yet finished) instance by id.
func (e *Engine) Instance(id string) (*Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	return inst, ok
}

// Live returns the number of instances that have not finished.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *Engine) track(inst *Instance) {
	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
}
