package factory

// config.go defines Params (NewFactoryParams) and the functional options that tune
// it, generalizing the cache layer's Option[K,V] pattern to the factory's
// fixed set of construction-time knobs.
//
// © 2025 resourcecore authors. MIT License.

import (
	"go.uber.org/zap"

	"github.com/Voskan/resourcecore/pkg/mount"
	"github.com/Voskan/resourcecore/pkg/provider"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// FlagReloadSupport enables the reload-filename map and callback list.
	FlagReloadSupport uint32 = 1 << 0
	// FlagLiveUpdateMountsOnStart is stored in Params.Flags only: New does
	// not read it and does not load liveupdate.mounts (mount.Table.Load
	// reads that file when called).
	FlagLiveUpdateMountsOnStart uint32 = 1 << 1
)

// Params bundles every knob New accepts, mirroring
// NewFactoryParams's max_resources/flags/builtin_archive/http_cache fields.
type Params struct {
	MaxResources int
	Flags        uint32

	// BuiltinArchive, if non-nil, is mounted first (highest priority) as
	// the factory's built-in bundle archive.
	BuiltinArchive provider.Archive

	// HTTPCache is carried in Params only: the factory does not read it or
	// pass it to any provider, so http-scheme mounts get no cache from it.
	HTTPCache any

	logger  *zap.Logger
	metrics metricsSink
}

// Option customises Params before New builds from it.
type Option func(*Params)

// WithLogger plugs an external zap.Logger. The factory only logs leaked
// resources at shutdown, never on the Get/Release hot path.
func WithLogger(l *zap.Logger) Option {
	return func(p *Params) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics enables Prometheus counters for Get hits/misses and live
// resource count.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(p *Params) {
		p.metrics = newMetricsSink(reg)
	}
}

// WithBuiltinArchive sets the built-in bundle archive mounted at the
// highest priority.
func WithBuiltinArchive(a provider.Archive) Option {
	return func(p *Params) { p.BuiltinArchive = a }
}

// WithFlags ORs additional flag bits into Params.Flags.
func WithFlags(flags uint32) Option {
	return func(p *Params) { p.Flags |= flags }
}

func defaultParams() *Params {
	return &Params{
		MaxResources: 1024,
		logger:       zap.NewNop(),
		metrics:      noopMetrics{},
	}
}

func applyOptions(p *Params, opts []Option) {
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxResources <= 0 {
		p.MaxResources = 1024
	}
}

// builtinMountName is the reserved mount-table name for Params.BuiltinArchive.
const builtinMountName = "builtin"

func mountBuiltin(m *mount.Table, a provider.Archive) {
	if a == nil {
		return
	}
	m.AddMount(&mount.Mount{Name: builtinMountName, Archive: a, Priority: 1 << 30})
}
