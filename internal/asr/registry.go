package asr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry manages transcription backends and supports fallback
// transcription. A Registry is itself a Transcriber.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Transcriber
	primary  string
	fallback string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Transcriber),
	}
}

// Register adds a backend to the registry. The first registered backend
// becomes the primary by default.
func (r *Registry) Register(name string, b Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	if r.primary == "" {
		r.primary = name
	}
}

// SetPrimary sets the primary backend by name.
func (r *Registry) SetPrimary(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary = name
}

// SetFallback sets the fallback backend by name.
func (r *Registry) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// Get returns a backend by name, or false if not found.
func (r *Registry) Get(name string) (Transcriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Primary returns the primary backend, or nil if none configured.
func (r *Registry) Primary() Transcriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[r.primary]
}

// Fallback returns the fallback backend, or nil if none configured.
func (r *Registry) Fallback() Transcriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == "" || r.fallback == r.primary {
		return nil
	}
	return r.backends[r.fallback]
}

// Backends returns the names of all registered backends, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name identifies the registry in logs.
func (r *Registry) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return "registry:" + r.primary
}

// Transcribe tries the primary backend first, falling back on error. A
// cancelled context is never retried on the fallback.
func (r *Registry) Transcribe(ctx context.Context, encodedAudio, language string) (*Transcript, error) {
	primary := r.Primary()
	if primary == nil {
		return nil, &CapabilityError{Op: OpTranscribe, Backend: "registry", Err: fmt.Errorf("no primary backend configured")}
	}

	transcript, err := primary.Transcribe(ctx, encodedAudio, language)
	if err == nil {
		return transcript, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	fallback := r.Fallback()
	if fallback == nil {
		return nil, err
	}

	transcript, fbErr := fallback.Transcribe(ctx, encodedAudio, language)
	if fbErr != nil {
		return nil, &CapabilityError{
			Op:      OpTranscribe,
			Backend: "registry",
			Err:     fmt.Errorf("primary %q failed (%s), fallback %q also failed: %w", primary.Name(), UserMessage(err), fallback.Name(), fbErr),
		}
	}
	return transcript, nil
}

// HealthCheck reports the health of the primary backend.
func (r *Registry) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	primary := r.Primary()
	if primary == nil {
		return &HealthStatus{OK: false, Backend: "registry", Message: "no primary backend configured"}, nil
	}
	return primary.HealthCheck(ctx)
}

// CheckAll probes every registered backend, each bounded by timeout. A
// probe error is folded into a not-OK status so the result always has one
// entry per backend, in Backends order.
func (r *Registry) CheckAll(ctx context.Context, timeout time.Duration) []HealthStatus {
	names := r.Backends()
	out := make([]HealthStatus, 0, len(names))
	for _, name := range names {
		b, ok := r.Get(name)
		if !ok {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		hs, err := b.HealthCheck(cctx)
		cancel()
		switch {
		case err != nil:
			out = append(out, HealthStatus{Backend: name, Message: err.Error()})
		case hs == nil:
			out = append(out, HealthStatus{Backend: name, Message: "no health status returned"})
		default:
			st := *hs
			st.Backend = name
			out = append(out, st)
		}
	}
	return out
}
