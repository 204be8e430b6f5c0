// Package nodesync wires the pieces a sync node needs to track its
// activities and talk to its peers: a tracker registry backed by a store,
// the sync url resolver and the acknowledgement codec.
package nodesync

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/ack"
	"github.com/warriorguo/nodesync/metrics"
	"github.com/warriorguo/nodesync/process"
	"github.com/warriorguo/nodesync/registry"
	"github.com/warriorguo/nodesync/store"
	"github.com/warriorguo/nodesync/store/mem"
	"github.com/warriorguo/nodesync/store/postgres"
	"github.com/warriorguo/nodesync/transport"
	"github.com/warriorguo/nodesync/types"
)

type Engine struct {
	Options  *types.Options
	Store    store.Store
	Registry *registry.Registry
	Resolver *transport.Resolver
	Codec    *ack.Codec
}

func NewEngine(opts ...types.Option) (*Engine, error) {
	options := types.NewOptions()
	for _, opt := range opts {
		opt(options)
	}

	var s store.Store
	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		var err error
		s, err = postgres.NewPostgresStore(postgres.ConfigFrom(options.PostgresConfig))
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
	} else {
		if !options.MemStore {
			log.Debug("no store configured, using memory store")
		}
		s = mem.NewMemStore()
	}
	return NewEngineWithStore(s, options), nil
}

// NewEngineWithStore builds an engine on an existing store.
func NewEngineWithStore(s store.Store, options *types.Options) *Engine {
	if options == nil {
		options = types.NewOptions()
	}
	return &Engine{
		Options:  options,
		Store:    s,
		Registry: registry.New(s, options),
		Resolver: transport.NewResolver(options),
		Codec:    ack.NewCodec(options),
	}
}

// LoadConfig reads a YAML config file into engine options.
func LoadConfig(path string) ([]types.Option, error) {
	c, err := types.LoadConfigFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return c.Options(), nil
}

// Track starts tracking an activity run by the calling goroutine.
func (e *Engine) Track(key types.ProcessKey) (*process.Tracker, error) {
	t := process.NewTrackerForCurrent(key)
	if err := e.Registry.Add(t); err != nil {
		return nil, errors.Trace(err)
	}
	return t, nil
}

// Collector returns a Prometheus collector over the engine's trackers.
func (e *Engine) Collector(identityNodeID string) *metrics.Collector {
	return metrics.NewCollector(e.Registry, identityNodeID)
}

func (e *Engine) Close() error {
	return store.Close(e.Store)
}
