package registry

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/nodesync/process"
	"github.com/warriorguo/nodesync/store/mem"
	"github.com/warriorguo/nodesync/types"
)

func newTracker(source, target string, role types.ProcessRole) *process.Tracker {
	return process.NewTracker(types.NewProcessKey(source, target, role), nil)
}

func TestAddGetRemove(t *testing.T) {
	r := New(mem.NewMemStore(), nil)
	push := newTracker("corp", "store-1", types.PushJobExtract)

	assert.Nil(t, r.Add(push))
	assert.Equal(t, 1, r.Len())

	got, exists := r.Get(push.Key())
	assert.True(t, exists)
	assert.Same(t, push, got)

	err := r.Add(newTracker("corp", "store-1", types.PushJobExtract))
	assert.True(t, errors.Is(err, errors.AlreadyExists))

	push.SetStatus(types.Ok)
	again := newTracker("corp", "store-1", types.PushJobExtract)
	assert.Nil(t, r.Add(again))
	got, _ = r.Get(push.Key())
	assert.Same(t, again, got)

	assert.Nil(t, r.Remove(context.Background(), push.Key()))
	assert.Nil(t, r.Remove(context.Background(), push.Key()))
	assert.Equal(t, 0, r.Len())
	_, exists = r.Get(push.Key())
	assert.False(t, exists)

	err = r.Add(nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestListAndSnapshots(t *testing.T) {
	r := New(mem.NewMemStore(), nil)
	done := newTracker("corp", "store-1", types.PushJobExtract)
	done.SetStatus(types.Ok)
	failed := newTracker("corp", "store-2", types.PushJobExtract)
	failed.SetStatus(types.Error)
	running := newTracker("store-3", "corp", types.PushHandlerLoad)
	running.SetStatus(types.Loading)

	for _, tr := range []*process.Tracker{done, failed, running} {
		require.Nil(t, r.Add(tr))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Same(t, failed, list[0])
	assert.Same(t, running, list[1])
	assert.Same(t, done, list[2])

	snapshots := r.Snapshots()
	require.Len(t, snapshots, 3)
	for i, s := range snapshots {
		assert.True(t, s.IsSnapshot())
		assert.Equal(t, list[i].ID(), s.ID())
	}

	running.SetStatus(types.Ok)
	assert.Equal(t, types.Loading, snapshots[1].Status())
}

func TestBlame(t *testing.T) {
	r := New(mem.NewMemStore(), nil)
	a := newTracker("corp", "store-1", types.PushJobExtract)
	a.SetStatus(types.Error)
	b := newTracker("corp", "store-1", types.PullHandlerTransfer)
	b.SetStatus(types.Error)
	c := newTracker("store-2", "corp", types.PushHandlerLoad)
	c.SetStatus(types.Error)
	d := newTracker("corp", "store-3", types.PushJobTransfer)
	d.SetStatus(types.Transferring)

	for _, tr := range []*process.Tracker{a, b, c, d} {
		require.Nil(t, r.Add(tr))
	}
	assert.Equal(t, map[string]int{"store-1": 2, "store-2": 1}, r.Blame("corp"))
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	r := New(mem.NewMemStore(), nil)
	finished := newTracker("corp", "store-1", types.PushJobExtract)
	finished.SetStatus(types.Ok)
	running := newTracker("corp", "store-2", types.PushJobExtract)
	running.SetStatus(types.Extracting)
	require.Nil(t, r.Add(finished))
	require.Nil(t, r.Add(running))
	require.Nil(t, r.Publish(ctx))

	n, err := r.Evict(ctx, finished.EndTime())
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	n, err = r.Evict(ctx, time.Now().Add(time.Hour))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Len())

	records, err := r.Load(ctx)
	assert.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, running.ID(), records[0].ID)
}

func TestPublishAndLoad(t *testing.T) {
	ctx := context.Background()
	opts := types.NewOptions()
	types.SetPublishConcurrency(2)(opts)
	r := New(mem.NewMemStore(), opts)

	records, err := r.Load(ctx)
	assert.Nil(t, err)
	assert.Empty(t, records)
	assert.Nil(t, r.Publish(ctx))

	ids := make([]string, 0)
	for _, target := range []string{"store-1", "store-2", "store-3", "store-4", "store-5"} {
		tr := newTracker("corp", target, types.PushJobTransfer)
		tr.SetStatus(types.Transferring)
		tr.SetCurrentDataCount(42)
		require.Nil(t, r.Add(tr))
		ids = append(ids, tr.ID())
	}
	sort.Strings(ids)

	require.Nil(t, r.Publish(ctx))
	records, err = r.Load(ctx)
	require.Nil(t, err)
	require.Len(t, records, 5)

	loaded := make([]string, 0, len(records))
	for _, record := range records {
		loaded = append(loaded, record.ID)
		assert.Equal(t, types.Transferring, record.Status)
		assert.Equal(t, types.PushJobTransfer, record.Key.Role)
		assert.Equal(t, int64(42), record.CurrentDataCount)
		assert.Equal(t, int64(42), record.TotalDataCount)
		assert.Equal(t, []types.ProcessStatus{types.New, types.Transferring}, record.VisitedStatuses)
	}
	assert.Equal(t, ids, loaded)
}

func TestPublishErrors(t *testing.T) {
	var calls atomic.Int32
	s := mem.NewMemStoreWithErrHandler(func() error {
		if calls.Add(1)%2 == 0 {
			return errors.New("connection reset")
		}
		return nil
	})
	r := New(s, nil)
	for _, target := range []string{"store-1", "store-2", "store-3", "store-4"} {
		require.Nil(t, r.Add(newTracker("corp", target, types.PushJobExtract)))
	}

	err := r.Publish(context.Background())
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestReplacedRecordsAreEvicted(t *testing.T) {
	ctx := context.Background()
	r := New(mem.NewMemStore(), nil)

	first := newTracker("corp", "store-1", types.PushJobExtract)
	first.SetStatus(types.Ok)
	require.Nil(t, r.Add(first))
	require.Nil(t, r.Publish(ctx))

	second := newTracker("corp", "store-1", types.PushJobExtract)
	require.Nil(t, r.Add(second))
	second.SetStatus(types.Ok)
	require.Nil(t, r.Publish(ctx))

	records, err := r.Load(ctx)
	require.Nil(t, err)
	assert.Len(t, records, 2)

	n, err := r.Evict(ctx, time.Now().Add(time.Hour))
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, r.Len())

	records, err = r.Load(ctx)
	assert.Nil(t, err)
	assert.Empty(t, records)
}

func TestReplacedRecordKeptUntilExpired(t *testing.T) {
	ctx := context.Background()
	r := New(mem.NewMemStore(), nil)

	first := newTracker("corp", "store-1", types.PushJobExtract)
	first.SetStatus(types.Ok)
	require.Nil(t, r.Add(first))
	require.Nil(t, r.Publish(ctx))
	require.Nil(t, r.Add(newTracker("corp", "store-1", types.PushJobExtract)))

	n, err := r.Evict(ctx, first.EndTime())
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	n, err = r.Evict(ctx, time.Now().Add(time.Hour))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Len())
	records, err := r.Load(ctx)
	assert.Nil(t, err)
	assert.Empty(t, records)
}

func TestRemoveDeletesRecord(t *testing.T) {
	ctx := context.Background()
	r := New(mem.NewMemStore(), nil)

	running := newTracker("corp", "store-1", types.PushJobTransfer)
	running.SetStatus(types.Transferring)
	require.Nil(t, r.Add(running))
	require.Nil(t, r.Publish(ctx))

	require.Nil(t, r.Remove(ctx, running.Key()))
	records, err := r.Load(ctx)
	assert.Nil(t, err)
	assert.Empty(t, records)
}

func TestRemoveStoreError(t *testing.T) {
	r := New(mem.NewMemStoreWithErrHandler(func() error {
		return errors.New("connection reset")
	}), nil)
	tr := newTracker("corp", "store-1", types.PushJobTransfer)
	require.Nil(t, r.Add(tr))

	assert.NotNil(t, r.Remove(context.Background(), tr.Key()))
	assert.Equal(t, 0, r.Len())
}
