// Package engine loads whisper models and runs inference over mono 16 kHz
// samples. Backends register themselves by name; "cli" drives a whisper.cpp
// executable and "whisper_cpp" (build tag whisper_cpp) links the bindings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whisper-transcribe/internal/command"
)

// SampleRate is the only rate engines accept.
const SampleRate = 16000

// DefaultKind is used when no engine kind is configured.
const DefaultKind = "cli"

// ErrAcceleratorUnavailable is returned by Load when acceleration was
// requested but no usable accelerator exists.
var ErrAcceleratorUnavailable = errors.New("hardware accelerator unavailable")

// ErrUnknownKind is returned by NewLoader for unregistered backends.
var ErrUnknownKind = errors.New("unknown engine kind")

// Segment is one piece of recognized text in emission order.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Engine runs inference with a loaded model.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32) ([]Segment, error)
	Close() error
}

// Loader constructs engines for a model file.
type Loader interface {
	Load(ctx context.Context, modelPath string, accelerated bool) (Engine, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelPath string, accelerated bool) (Engine, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, modelPath string, accelerated bool) (Engine, error) {
	return f(ctx, modelPath, accelerated)
}

// Options configures a backend.
type Options struct {
	WhisperPath string
	Language    string
	Threads     int
	Runner      command.Runner
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Runner == nil {
		o.Runner = command.NewExecRunner()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Factory builds a Loader from options.
type Factory func(opts Options) (Loader, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to NewLoader.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Kinds lists registered backends.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// NewLoader returns the loader registered as kind.
func NewLoader(kind string, opts Options) (Loader, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = DefaultKind
	}

	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownKind, kind, strings.Join(Kinds(), ", "))
	}
	return factory(opts.withDefaults())
}

// JoinSegments concatenates segment text in order and trims the result.
func JoinSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return strings.TrimSpace(b.String())
}
