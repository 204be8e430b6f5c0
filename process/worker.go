package process

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

const (
	initialStackBuf = 64 << 10
	maxStackBuf     = 64 << 20
)

// Worker is the identity of whatever drives a tracker. It is only used
// for live diagnostics.
type Worker interface {
	Name() string
	IsRunning() bool
	StackTrace() string
}

var (
	_ Worker = &GoroutineWorker{}
)

// GoroutineWorker reports on the goroutine that created it.
type GoroutineWorker struct {
	name string
	id   uint64
	done atomic.Bool
}

// CurrentGoroutine binds a worker to the calling goroutine.
func CurrentGoroutine(name string) *GoroutineWorker {
	return &GoroutineWorker{name: name, id: currentGoroutineID()}
}

func (w *GoroutineWorker) Name() string {
	return w.name
}

func (w *GoroutineWorker) ID() uint64 {
	return w.id
}

// Done marks the goroutine as finished with its activity, even if the
// goroutine itself keeps running for something else.
func (w *GoroutineWorker) Done() {
	w.done.Store(true)
}

func (w *GoroutineWorker) IsRunning() bool {
	if w.done.Load() || w.id == 0 {
		return false
	}
	_, found := goroutineStack(w.id)
	return found
}

func (w *GoroutineWorker) StackTrace() string {
	stack, _ := goroutineStack(w.id)
	return stack
}

func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	return parseGoroutineID(buf)
}

// parseGoroutineID reads the id from a "goroutine 42 [running]:" header.
func parseGoroutineID(header []byte) uint64 {
	header = bytes.TrimPrefix(header, []byte("goroutine "))
	end := bytes.IndexByte(header, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(header[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func allStacks() []byte {
	buf := make([]byte, initialStackBuf)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= maxStackBuf {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}

func goroutineStack(id uint64) (string, bool) {
	return findGoroutine(allStacks(), id)
}

// findGoroutine extracts one goroutine's section from a full dump.
// Sections are separated by a blank line.
func findGoroutine(dump []byte, id uint64) (string, bool) {
	prefix := []byte("goroutine " + strconv.FormatUint(id, 10) + " [")
	for _, section := range bytes.Split(dump, []byte("\n\n")) {
		if bytes.HasPrefix(section, prefix) {
			return string(bytes.TrimRight(section, "\n")), true
		}
	}
	return "", false
}
