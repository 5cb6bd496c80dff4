// Package processor resolves frame processor stages by name and runs them
// in registration order over an image or a frame sequence.
package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/infra/command"
	"go.uber.org/zap"
)

// Options is what every stage constructor receives.
type Options struct {
	// ToolPath is the inference executable the command stages drive.
	ToolPath  string
	ModelsDir string
	Runner    command.Runner
	Inspector port.MediaInspector
	Logger    *zap.Logger
}

type Constructor func(Options) (port.FrameProcessor, error)

type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry knows the built-in face and frame stages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range builtinKinds {
		r.Register(k.name, newCommandStageConstructor(k))
	}
	return r
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

// sortedNames expects r.mu to be held.
func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports the first name with no registered constructor.
func (r *Registry) Validate(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if _, ok := r.ctors[name]; !ok {
			return fmt.Errorf("%w: %q", entity.ErrUnknownProcessor, name)
		}
	}
	return nil
}

// Resolve builds fresh stages for one job, preserving the requested order.
// Unknown names fail before anything is constructed.
func (r *Registry) Resolve(names []string, opts Options) ([]port.FrameProcessor, error) {
	r.mu.RLock()
	ctors := make([]Constructor, 0, len(names))
	for _, name := range names {
		ctor, ok := r.ctors[name]
		if !ok {
			available := r.sortedNames()
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q (available: %v)", entity.ErrUnknownProcessor, name, available)
		}
		ctors = append(ctors, ctor)
	}
	r.mu.RUnlock()

	stages := make([]port.FrameProcessor, 0, len(ctors))
	for i, ctor := range ctors {
		stage, err := ctor(opts)
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", names[i], err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}
