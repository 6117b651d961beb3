// Package modreg implements the module registry: a process-wide,
// immutable-after-registration table of user modules keyed by
// (name, major, minor) identity.
package modreg

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/value"
)

// Param is one ordered (name, type) entry of a module's consumes/produces
// signature.
type Param struct {
	Name string
	Type value.Type
}

// Signature is a module's typed interface: ordered parameter lists
// matched positionally at the execution ABI boundary.
type Signature struct {
	Consumes []Param
	Produces []Param
}

// ConsumeType and ProduceType return the declared type of a consumed or
// produced name.
func (s *Signature) ConsumeType(name string) (value.Type, bool) {
	for _, p := range s.Consumes {
		if p.Name == name {
			return p.Type, true
		}
	}
	return nil, false
}

func (s *Signature) ProduceType(name string) (value.Type, bool) {
	for _, p := range s.Produces {
		if p.Name == name {
			return p.Type, true
		}
	}
	return nil, false
}

// Config carries a module's per-call timeouts.
type Config struct {
	InputsTimeout time.Duration
	ModuleTimeout time.Duration
}

// Kind distinguishes pure (total function) from effectful (may perform
// I/O, cancellable) module implementations.
type Kind int

const (
	Pure Kind = iota
	Effectful
)

// PureFunc is a total function from an input record to an output record;
// it must not block or perform I/O.
type PureFunc func(in *value.VRecord) (*value.VRecord, error)

// EffectfulFunc may perform I/O and observes ctx cancellation as its
// suspension point.
type EffectfulFunc func(ctx context.Context, in *value.VRecord) (*value.VRecord, error)

// Identity is a module's (name, major, minor) key.
type Identity struct {
	Name  string
	Major int
	Minor int
}

func (id Identity) String() string {
	return fmt.Sprintf("%s@%d.%d", id.Name, id.Major, id.Minor)
}

// Descriptor is an immutable-after-registration module record.
type Descriptor struct {
	ID        Identity
	Signature Signature
	Config    Config
	Kind      Kind
	Pure      PureFunc
	Effect    EffectfulFunc
}

// Invoke runs the module's implementation regardless of Kind, wrapping a
// Pure call so callers (the executor) have one call shape.
func (d *Descriptor) Invoke(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
	switch d.Kind {
	case Pure:
		return d.Pure(in)
	default:
		return d.Effect(ctx, in)
	}
}

// Registry holds module descriptors for the process lifetime.
// Descriptors are immutable after registration; the registry itself is
// an explicitly owned value, constructed fresh by
// callers and tests.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string][]*Descriptor // all registered versions, any order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string][]*Descriptor)}
}

// Register inserts a module descriptor. Duplicate (name, major, minor)
// identity fails with MOD001.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byName[d.ID.Name] {
		if existing.ID == d.ID {
			return errors.Wrap(errors.New(errors.MOD001, "registry", fmt.Sprintf("module %s already registered", d.ID), nil))
		}
	}
	r.byName[d.ID.Name] = append(r.byName[d.ID.Name], d)
	return nil
}

// VersionFloor names the minimum acceptable (major, minor) a `use`
// reference may pin.
type VersionFloor struct {
	Major int
	Minor int
}

// Resolve looks up a module by name, optionally with a minimum version
// floor: it picks the highest registered minor version within the same
// major version that is at or above the floor.
// Absent any registration for name, it fails with MOD002 (MissingModule).
func (r *Registry) Resolve(name string, floor *VersionFloor) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.byName[name]
	if len(candidates) == 0 {
		return nil, errors.Wrap(errors.New(errors.MOD002, "registry", fmt.Sprintf("module %q not registered", name), nil))
	}
	sorted := make([]*Descriptor, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ID.Major != sorted[j].ID.Major {
			return sorted[i].ID.Major > sorted[j].ID.Major
		}
		return sorted[i].ID.Minor > sorted[j].ID.Minor
	})
	if floor == nil {
		return sorted[0], nil
	}
	for _, d := range sorted {
		if d.ID.Major == floor.Major && d.ID.Minor >= floor.Minor {
			return d, nil
		}
	}
	return nil, errors.Wrap(errors.New(errors.MOD002, "registry", fmt.Sprintf("no version of %q satisfies floor %d.%d", name, floor.Major, floor.Minor), nil))
}

// Descriptors returns every registered descriptor, used by tooling (e.g.
// an external LSP) to list available modules; not required by any
// runtime path.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, ds := range r.byName {
		out = append(out, ds...)
	}
	return out
}
