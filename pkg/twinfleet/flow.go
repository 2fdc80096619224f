package twinfleet

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → Persist → Report
// without touching the underlying wiring.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// PersistOption configures the store side of the fleet.
type PersistOption func(*Flow)

// ReportOption configures where per-iteration reports go.
type ReportOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// Persist records store-side overrides.
func (f *Flow) Persist(opts ...PersistOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Report records reporter overrides and builds a Runtime ready to run.
func (f *Flow) Report(opts ...ReportOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for Report + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...ReportOption) error {
	rt, err := f.Report(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// PersistStore replaces the configured backend with a caller-provided store.
func PersistStore(s Store) PersistOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithStore(s))
		}
	}
}

// PersistBackend switches the configured backend, e.g. to BackendMemory for tests.
func PersistBackend(backend string) PersistOption {
	return func(f *Flow) {
		if f != nil && backend != "" {
			f.cfg.Store.Backend = backend
		}
	}
}

// ReportTo adds a caller-provided reporter.
func ReportTo(r Reporter) ReportOption {
	return func(f *Flow) {
		if f != nil && r != nil {
			f.appendOptions(WithReporter(r))
		}
	}
}

// ReportCallback installs a reporter built from a simple callback function.
func ReportCallback(name string, fn ReportFunc) ReportOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithReporter(NewCallbackReporter(name, fn)))
		}
	}
}

// ReportObservability replaces the default observability backend.
func ReportObservability(obs Observability) ReportOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
