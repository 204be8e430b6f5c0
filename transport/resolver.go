package transport

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/types"
)

// SyncURLExtension resolves an extension sync url into a concrete one.
type SyncURLExtension interface {
	ResolveURL(u *url.URL) string
}

// ExtensionFunc adapts a function to SyncURLExtension.
type ExtensionFunc func(u *url.URL) string

func (f ExtensionFunc) ResolveURL(u *url.URL) string {
	return f(u)
}

// Resolver turns the sync url configured for a node into the address a
// transport should use.
//
// Handlers are expected to be registered while setting up, before
// concurrent resolution starts; the registry is still guarded.
type Resolver struct {
	noneProtocol      string
	extensionProtocol string

	mu       sync.RWMutex
	handlers map[string]SyncURLExtension
}

// NewResolver builds a resolver from opts, nil means defaults. Static
// extensions in opts are registered right away.
func NewResolver(opts *types.Options) *Resolver {
	if opts == nil {
		opts = types.NewOptions()
	}
	r := &Resolver{
		noneProtocol:      opts.NoneProtocol,
		extensionProtocol: opts.ExtensionProtocol,
		handlers:          make(map[string]SyncURLExtension),
	}
	if len(opts.StaticExtensions) > 0 {
		static := NewStaticExtension(opts.StaticExtensions)
		for _, name := range static.Names() {
			r.Register(name, static)
		}
	}
	return r
}

// Register stores handler under name. An existing handler of the same
// name is replaced.
func (r *Resolver) Register(name string, handler SyncURLExtension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		log.Warnf("overriding sync url extension handler %s", name)
	}
	r.handlers[name] = handler
}

func (r *Resolver) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, name)
}

// Handlers returns the registered handler names, sorted.
func (r *Resolver) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Resolver) handler(name string) (SyncURLExtension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[name]
	return h, exists
}

// Resolve returns the url to use for a remote node. A blank sync url, or
// one without transport, falls back to registrationURL. An extension url
// that cannot be resolved is returned as is and the failure is logged.
func (r *Resolver) Resolve(syncURL, registrationURL string) string {
	switch {
	case strings.TrimSpace(syncURL) == "" || hasProtocol(syncURL, r.noneProtocol):
		log.Debugf("sync url %q is blank, using registration url", syncURL)
		return registrationURL

	case hasProtocol(syncURL, r.extensionProtocol):
		return r.resolveExtension(syncURL)

	default:
		return syncURL
	}
}

func hasProtocol(syncURL, protocol string) bool {
	return protocol != "" && strings.HasPrefix(syncURL, protocol)
}

func (r *Resolver) resolveExtension(syncURL string) string {
	u, err := url.Parse(syncURL)
	if err != nil {
		log.WithField("sync_url", syncURL).Errorf("failed to parse extension sync url: %v", err)
		return syncURL
	}
	h, exists := r.handler(u.Host)
	if !exists {
		log.WithFields(log.Fields{
			"sync_url":  syncURL,
			"extension": u.Host,
		}).Error("no sync url extension handler registered")
		return syncURL
	}
	return h.ResolveURL(u)
}
