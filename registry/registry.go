// Package registry keeps the trackers of the activities running on a node
// and persists their records.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/process"
	"github.com/warriorguo/nodesync/store"
	"github.com/warriorguo/nodesync/types"
	"github.com/warriorguo/nodesync/utils"
)

const (
	ProcessPath = "/process/"
)

type Registry struct {
	mu sync.Mutex

	store       store.Store
	concurrency int
	trackers    map[types.ProcessKey]*process.Tracker
	// finished trackers replaced by a newer run of the same key, their
	// records stay until evicted
	replaced []*process.Tracker
}

func New(s store.Store, opts *types.Options) *Registry {
	if opts == nil {
		opts = types.NewOptions()
	}
	concurrency := opts.PublishConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Registry{
		store:       s,
		concurrency: concurrency,
		trackers:    make(map[types.ProcessKey]*process.Tracker),
	}
}

// Add registers t under its key. A finished tracker of the same key is
// replaced, a live one is an error.
func (r *Registry) Add(t *process.Tracker) error {
	if t == nil {
		return errors.NotValidf("nil tracker")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := t.Key()
	if existing, exists := r.trackers[key]; exists {
		if !existing.Status().IsTerminal() {
			return errors.AlreadyExistsf("process %s", key)
		}
		r.replaced = append(r.replaced, existing)
	}
	r.trackers[key] = t
	return nil
}

func (r *Registry) Get(key types.ProcessKey) (*process.Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.trackers[key]
	return t, exists
}

// Remove drops the tracker of key and its stored record.
func (r *Registry) Remove(ctx context.Context, key types.ProcessKey) error {
	r.mu.Lock()
	t, exists := r.trackers[key]
	delete(r.trackers, key)
	r.mu.Unlock()

	if !exists {
		return nil
	}
	if err := r.store.Remove(ctx, ProcessPath, t.ID()); err != nil {
		return errors.Annotatef(err, "failed to remove record of %s", key)
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.trackers)
}

// List returns the live trackers in dashboard order.
func (r *Registry) List() []*process.Tracker {
	trackers := r.all()
	process.Sort(trackers)
	return trackers
}

// Snapshots returns frozen copies of every tracker in dashboard order.
func (r *Registry) Snapshots() []*process.Tracker {
	trackers := r.all()
	for i, t := range trackers {
		trackers[i] = t.Snapshot()
	}
	process.Sort(trackers)
	return trackers
}

func (r *Registry) all() []*process.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	trackers := make([]*process.Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	return trackers
}

// Blame counts failed activities by the node held responsible.
func (r *Registry) Blame(identityNodeID string) map[string]int {
	blamed := make(map[string]int)
	for _, t := range r.all() {
		if node, ok := t.BlamedNode(identityNodeID); ok {
			blamed[node]++
		}
	}
	return blamed
}

// Evict drops finished trackers that ended before olderThan, together
// with their stored records. Replaced runs count as well. It returns how
// many were dropped.
func (r *Registry) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	expired := func(t *process.Tracker) bool {
		return t.Status().IsTerminal() && !t.EndTime().IsZero() && t.EndTime().Before(olderThan)
	}

	r.mu.Lock()
	evicted := make([]*process.Tracker, 0)
	for key, t := range r.trackers {
		if expired(t) {
			delete(r.trackers, key)
			evicted = append(evicted, t)
		}
	}
	kept := r.replaced[:0]
	for _, t := range r.replaced {
		if expired(t) {
			evicted = append(evicted, t)
		} else {
			kept = append(kept, t)
		}
	}
	r.replaced = kept
	r.mu.Unlock()

	var retErr error
	for _, t := range evicted {
		if err := r.store.Remove(ctx, ProcessPath, t.ID()); err != nil {
			retErr = errors.Wrapf(retErr, err, "failed to remove record of %s", t.Key())
		}
	}
	if len(evicted) > 0 {
		log.Debugf("evicted %d finished processes", len(evicted))
	}
	return len(evicted), retErr
}

// Publish writes the record of every tracker to the store and waits for
// all writes to finish.
func (r *Registry) Publish(ctx context.Context) error {
	trackers := r.all()
	if len(trackers) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		retErr error
	)
	wp := workerpool.New(r.concurrency)
	for _, t := range trackers {
		t := t
		wp.Submit(func() {
			if err := r.publish(ctx, t); err != nil {
				mu.Lock()
				retErr = errors.Wrapf(retErr, err, "failed on %s", t.Key())
				mu.Unlock()
			}
		})
	}
	wp.StopWait()
	return retErr
}

func (r *Registry) publish(ctx context.Context, t *process.Tracker) error {
	b, err := utils.Serialize(t.Record())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.store.Set(ctx, ProcessPath, t.ID(), b))
}

// Load reads back every published record.
func (r *Registry) Load(ctx context.Context) ([]*types.ProcessRecord, error) {
	ids, err := store.Keys(ctx, r.store, ProcessPath)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to list process records")
	}

	records := make([]*types.ProcessRecord, 0, len(ids))
	for _, id := range ids {
		b, err := r.store.Get(ctx, ProcessPath, id)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to get process record %s", id)
		}
		if b == nil {
			continue
		}
		record := &types.ProcessRecord{}
		if err := utils.Unserialize(b, record); err != nil {
			return nil, errors.Annotatef(err, "failed to read process record %s", id)
		}
		records = append(records, record)
	}
	return records, nil
}
