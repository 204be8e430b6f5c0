package process

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/types"
	"github.com/warriorguo/nodesync/utils"
)

var (
	nowFunc = time.Now
)

// Tracker records the lifecycle of one sync activity.
//
// One worker drives transitions and counters, any number of monitors
// may read concurrently. Snapshots kept in the status history are
// frozen: every mutator called on them is ignored.
type Tracker struct {
	mu sync.RWMutex

	id     string
	key    types.ProcessKey
	status types.ProcessStatus
	frozen bool

	currentDataCount  int64
	dataCountTarget   int64
	batchCount        int64
	currentBatchID    int64
	currentBatchCount int64
	currentLoadID     int64
	totalDataCount    int64

	currentChannelID string
	threadPerChannel bool
	currentTableName string

	startTime             time.Time
	lastStatusChangeTime  time.Time
	currentBatchStartTime time.Time
	endTime               time.Time

	statusHistory        map[types.ProcessStatus]*Tracker
	statusStartHistory   map[types.ProcessStatus]time.Time
	statusEnteredHistory map[types.ProcessStatus]time.Time

	// not persisted, not copied into snapshots
	worker Worker
}

func NewTracker(key types.ProcessKey, worker Worker) *Tracker {
	now := nowFunc()
	return &Tracker{
		id:                   uuid.NewString(),
		key:                  key,
		status:               types.New,
		dataCountTarget:      -1,
		startTime:            now,
		lastStatusChangeTime: now,
		worker:               worker,
	}
}

// NewTrackerForCurrent creates a tracker owned by the calling goroutine.
func NewTrackerForCurrent(key types.ProcessKey) *Tracker {
	return NewTracker(key, CurrentGoroutine(key.String()))
}

func (t *Tracker) update(op string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		log.Debugf("%s ignored on snapshot of %s", op, t.key)
		return
	}
	fn()
}

func (t *Tracker) ID() string {
	return t.id
}

func (t *Tracker) Key() types.ProcessKey {
	return t.key
}

func (t *Tracker) SourceNodeID() string {
	return t.key.SourceNodeID
}

func (t *Tracker) TargetNodeID() string {
	return t.key.TargetNodeID
}

func (t *Tracker) Role() types.ProcessRole {
	return t.key.Role
}

// IsSnapshot reports whether t is a frozen copy.
func (t *Tracker) IsSnapshot() bool {
	return t.frozen
}

func (t *Tracker) Status() types.ProcessStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetStatus moves the activity to status. The state being left is kept
// as a frozen snapshot in the status history.
func (t *Tracker) SetStatus(status types.ProcessStatus) {
	t.update("SetStatus", func() {
		if t.statusHistory == nil {
			t.statusHistory = make(map[types.ProcessStatus]*Tracker)
		}
		if t.statusStartHistory == nil {
			t.statusStartHistory = make(map[types.ProcessStatus]time.Time)
		}
		if t.statusEnteredHistory == nil {
			t.statusEnteredHistory = map[types.ProcessStatus]time.Time{t.status: t.startTime}
		}
		// the overall start time, not the time the status was entered
		if _, exists := t.statusStartHistory[t.status]; !exists {
			t.statusStartHistory[t.status] = t.startTime
		}
		t.statusHistory[t.status] = t.copyLocked()

		now := nowFunc()
		t.statusEnteredHistory[status] = now
		t.status = status
		t.lastStatusChangeTime = now
		if status.IsTerminal() && t.endTime.IsZero() {
			t.endTime = now
		}
	})
}

func (t *Tracker) CurrentDataCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentDataCount
}

func (t *Tracker) SetCurrentDataCount(count int64) {
	t.update("SetCurrentDataCount", func() {
		t.currentDataCount = count
		t.raiseTotalLocked()
	})
}

func (t *Tracker) IncrementCurrentDataCount() {
	t.update("IncrementCurrentDataCount", func() {
		t.currentDataCount++
		t.raiseTotalLocked()
	})
}

func (t *Tracker) raiseTotalLocked() {
	if t.totalDataCount < t.currentDataCount {
		t.totalDataCount = t.currentDataCount
	}
}

func (t *Tracker) TotalDataCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalDataCount
}

// SetTotalDataCount only ever raises the high-water mark.
func (t *Tracker) SetTotalDataCount(count int64) {
	t.update("SetTotalDataCount", func() {
		if count > t.totalDataCount {
			t.totalDataCount = count
		}
	})
}

// DataCountTarget is the expected number of rows, -1 when unknown.
func (t *Tracker) DataCountTarget() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dataCountTarget
}

func (t *Tracker) SetDataCountTarget(count int64) {
	t.update("SetDataCountTarget", func() {
		t.dataCountTarget = count
	})
}

func (t *Tracker) BatchCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.batchCount
}

func (t *Tracker) SetBatchCount(count int64) {
	t.update("SetBatchCount", func() {
		t.batchCount = count
	})
}

func (t *Tracker) IncrementBatchCount() {
	t.update("IncrementBatchCount", func() {
		t.batchCount++
	})
}

func (t *Tracker) CurrentBatchCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentBatchCount
}

func (t *Tracker) SetCurrentBatchCount(count int64) {
	t.update("SetCurrentBatchCount", func() {
		t.currentBatchCount = count
	})
}

func (t *Tracker) IncrementCurrentBatchCount() {
	t.update("IncrementCurrentBatchCount", func() {
		t.currentBatchCount++
	})
}

func (t *Tracker) CurrentBatchID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentBatchID
}

// SetCurrentBatchID starts a new batch: the data count is per batch.
func (t *Tracker) SetCurrentBatchID(batchID int64) {
	t.update("SetCurrentBatchID", func() {
		t.currentBatchID = batchID
		t.currentBatchStartTime = nowFunc()
		t.currentDataCount = 0
	})
}

func (t *Tracker) CurrentLoadID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLoadID
}

func (t *Tracker) SetCurrentLoadID(loadID int64) {
	t.update("SetCurrentLoadID", func() {
		t.currentLoadID = loadID
	})
}

func (t *Tracker) CurrentChannelID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentChannelID
}

func (t *Tracker) SetCurrentChannelID(channelID string) {
	t.update("SetCurrentChannelID", func() {
		t.currentChannelID = channelID
	})
}

// CurrentChannelThread is the channel the worker is dedicated to, if any.
func (t *Tracker) CurrentChannelThread() string {
	return t.key.ChannelID
}

func (t *Tracker) ThreadPerChannel() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.threadPerChannel
}

func (t *Tracker) SetThreadPerChannel(threadPerChannel bool) {
	t.update("SetThreadPerChannel", func() {
		t.threadPerChannel = threadPerChannel
	})
}

func (t *Tracker) CurrentTableName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentTableName
}

func (t *Tracker) SetCurrentTableName(tableName string) {
	t.update("SetCurrentTableName", func() {
		t.currentTableName = tableName
	})
}

func (t *Tracker) StartTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startTime
}

func (t *Tracker) LastStatusChangeTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastStatusChangeTime
}

// CurrentBatchStartTime falls back to the start time before the first
// batch.
func (t *Tracker) CurrentBatchStartTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.currentBatchStartTime.IsZero() {
		return t.startTime
	}
	return t.currentBatchStartTime
}

func (t *Tracker) SetCurrentBatchStartTime(startTime time.Time) {
	t.update("SetCurrentBatchStartTime", func() {
		t.currentBatchStartTime = startTime
	})
}

// EndTime is zero until the activity first reaches Ok or Error.
func (t *Tracker) EndTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endTime
}

// SetEndTime has no effect once an end time is recorded.
func (t *Tracker) SetEndTime(endTime time.Time) {
	t.update("SetEndTime", func() {
		if t.endTime.IsZero() {
			t.endTime = endTime
		}
	})
}

func (t *Tracker) Worker() Worker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.worker
}

func (t *Tracker) SetWorker(worker Worker) {
	t.update("SetWorker", func() {
		t.worker = worker
	})
}

// StatusHistory returns the tracker as it was when status was left. For
// the current status it returns t itself, which keeps changing.
func (t *Tracker) StatusHistory(status types.ProcessStatus) (*Tracker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.statusHistory == nil {
		return nil, false
	}
	if status == t.status {
		return t, true
	}
	snapshot, exists := t.statusHistory[status]
	return snapshot, exists
}

// StatusHistories returns a copy of the whole history, the current
// status mapped to t.
func (t *Tracker) StatusHistories() map[types.ProcessStatus]*Tracker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.statusHistory == nil {
		return nil
	}
	histories := utils.CloneMap(t.statusHistory)
	histories[t.status] = t
	return histories
}

// StatusStartHistory returns the time recorded for status when it was
// first left. This is the activity start time, not the time the status
// was entered: see StatusEnteredTime for that.
func (t *Tracker) StatusStartHistory(status types.ProcessStatus) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ts, exists := t.statusStartHistory[status]
	return ts, exists
}

// StatusEnteredTime returns when status was last entered.
func (t *Tracker) StatusEnteredTime(status types.ProcessStatus) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.statusEnteredHistory == nil && status == types.New {
		return t.startTime, true
	}
	ts, exists := t.statusEnteredHistory[status]
	return ts, exists
}

// Snapshot returns a frozen point-in-time copy. History maps are copied,
// so later transitions of t are not visible through the snapshot.
func (t *Tracker) Snapshot() *Tracker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyLocked()
}

func (t *Tracker) copyLocked() *Tracker {
	return &Tracker{
		id:                    t.id,
		key:                   t.key,
		status:                t.status,
		frozen:                true,
		currentDataCount:      t.currentDataCount,
		dataCountTarget:       t.dataCountTarget,
		batchCount:            t.batchCount,
		currentBatchID:        t.currentBatchID,
		currentBatchCount:     t.currentBatchCount,
		currentLoadID:         t.currentLoadID,
		totalDataCount:        t.totalDataCount,
		currentChannelID:      t.currentChannelID,
		threadPerChannel:      t.threadPerChannel,
		currentTableName:      t.currentTableName,
		startTime:             t.startTime,
		lastStatusChangeTime:  t.lastStatusChangeTime,
		currentBatchStartTime: t.currentBatchStartTime,
		endTime:               t.endTime,
		statusHistory:         utils.CloneMap(t.statusHistory),
		statusStartHistory:    utils.CloneMap(t.statusStartHistory),
		statusEnteredHistory:  utils.CloneMap(t.statusEnteredHistory),
	}
}

// BlamedNode returns the node held responsible for a failed activity.
// identityNodeID is accepted for callers that know their own node but
// does not change the result.
func (t *Tracker) BlamedNode(identityNodeID string) (string, bool) {
	if t.Status() != types.Error {
		return "", false
	}
	switch t.key.Role {
	case types.PushJobExtract, types.PushJobTransfer,
		types.PullHandlerExtract, types.PullHandlerTransfer:
		return t.key.TargetNodeID, true

	case types.PullJobLoad, types.PullJobTransfer,
		types.PushHandlerLoad, types.PushHandlerTransfer,
		types.RouterJob, types.RouterReader, types.GapDetect:
		return t.key.SourceNodeID, true

	default:
		return "", false
	}
}

// ThreadData describes the owning worker while it is running.
func (t *Tracker) ThreadData() (types.ThreadData, bool) {
	w := t.Worker()
	if w == nil || !w.IsRunning() {
		return types.ThreadData{}, false
	}
	return types.ThreadData{Name: w.Name(), StackTrace: w.StackTrace()}, true
}

// Record returns the persisted form of t.
func (t *Tracker) Record() *types.ProcessRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r := &types.ProcessRecord{
		ID:                    t.id,
		Key:                   t.key,
		Status:                t.status,
		CurrentDataCount:      t.currentDataCount,
		DataCountTarget:       t.dataCountTarget,
		BatchCount:            t.batchCount,
		CurrentBatchID:        t.currentBatchID,
		CurrentBatchCount:     t.currentBatchCount,
		CurrentLoadID:         t.currentLoadID,
		TotalDataCount:        t.totalDataCount,
		CurrentChannelID:      t.currentChannelID,
		ThreadPerChannel:      t.threadPerChannel,
		CurrentTableName:      t.currentTableName,
		StartTime:             t.startTime,
		LastStatusChangeTime:  t.lastStatusChangeTime,
		CurrentBatchStartTime: t.currentBatchStartTime,
		EndTime:               t.endTime,
		StatusStartHistory:    describeTimes(t.statusStartHistory),
		StatusEnteredHistory:  describeTimes(t.statusEnteredHistory),
	}
	if t.statusEnteredHistory != nil {
		entered := t.statusEnteredHistory
		r.VisitedStatuses = utils.SortedKeys(entered, func(a, b types.ProcessStatus) bool {
			if entered[a].Equal(entered[b]) {
				return a < b
			}
			return entered[a].Before(entered[b])
		})
	}
	return r
}

func describeTimes(m map[types.ProcessStatus]time.Time) map[string]time.Time {
	if m == nil {
		return nil
	}
	described := make(map[string]time.Time, len(m))
	for status, ts := range m {
		described[status.String()] = ts
	}
	return described
}

func (t *Tracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("%s,status=%s,startTime=%s", t.key, t.status, t.startTime.Format(time.RFC3339))
}

// Compare orders trackers for a dashboard: errors first, then activities
// still in progress, then completed ones, each newest first. A nil
// tracker sorts last.
func (t *Tracker) Compare(o *Tracker) int {
	switch {
	case t == nil && o == nil:
		return 0
	case t == nil:
		return 1
	case o == nil:
		return -1
	}
	return compareState(t.Status(), t.StartTime(), o.Status(), o.StartTime())
}

func compareState(status types.ProcessStatus, startTime time.Time,
	otherStatus types.ProcessStatus, otherStartTime time.Time) int {
	switch {
	case status == types.Error && otherStatus != types.Error:
		return -1
	case otherStatus == types.Error && status != types.Error:
		return 1
	case status != types.Ok && otherStatus == types.Ok:
		return -1
	case otherStatus != types.Ok && status == types.Ok:
		return 1
	case startTime.After(otherStartTime):
		return -1
	case startTime.Before(otherStartTime):
		return 1
	default:
		return 0
	}
}

// Sort orders trackers in dashboard order, nil entries last. Each tracker
// is read once so a writer changing status mid-sort cannot break the
// ordering.
func Sort(trackers []*Tracker) {
	type sortKey struct {
		status    types.ProcessStatus
		startTime time.Time
	}
	keys := make(map[*Tracker]sortKey, len(trackers))
	for _, t := range trackers {
		if t != nil {
			keys[t] = sortKey{t.Status(), t.StartTime()}
		}
	}
	sort.SliceStable(trackers, func(i, j int) bool {
		if trackers[i] == nil || trackers[j] == nil {
			return trackers[j] == nil && trackers[i] != nil
		}
		a, b := keys[trackers[i]], keys[trackers[j]]
		return compareState(a.status, a.startTime, b.status, b.startTime) < 0
	})
}
