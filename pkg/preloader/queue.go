package preloader

// queue.go is the load queue the scheduling loop issues reads through,
// grounded on the two interchangeable implementations
// load_queue.cpp/load_queue_threaded.cpp describe: a single-slot synchronous
// queue for tests and tools that want deterministic ordering, and a
// goroutine-pool-backed queue for production use that overlaps I/O with the
// scheduling loop's own work.
//
// The original's threaded variant is a hand-rolled ring buffer of 16 slots
// with a mutex + condition variable and an explicit BytesWaiting throttle.
// Channels are the idiomatic Go equivalent of that bounded ring buffer plus
// condition variable — a buffered channel already blocks a producer once
// full and wakes a consumer on send — so ThreadedQueue is built on one
// instead of reimplementing the slot/index bookkeeping by hand; the
// BytesWaiting throttle is kept explicitly since channel capacity alone
// only bounds request *count*, not their buffer sizes.
//
// © 2025 resourcecore authors. MIT License.

import (
	"context"
	"sync"

	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/mount"
)

// LoadRequest describes one pending read, matching BeginLoad's parameters.
type LoadRequest struct {
	Name          string
	CanonicalPath string
	PathHash      uint64
	PreloadSize   uint32 // StreamSentinel for "whole file"
}

// LoadResult is what EndLoad/FinishLoad hands back to the scheduling loop.
type LoadResult struct {
	Buf       []byte
	FileSize  uint32
	IsPartial bool
	Err       error
}

// LoadQueue decouples the scheduling loop from how bytes actually get read,
// mirroring the original's queue interface (queue_sync.cpp vs
// load_queue_threaded.cpp) swapped in by configuration.
type LoadQueue interface {
	// BeginLoad enqueues req. ok is false when the queue is at capacity — a
	// backpressure signal, not an error; the caller retries next round.
	BeginLoad(req LoadRequest) (handle int, ok bool)
	// EndLoad polls handle non-blockingly. done is false while the load is
	// still in flight.
	EndLoad(handle int) (result LoadResult, done bool)
	// Close stops any background workers, completing in-flight loads first.
	Close()
}

// queueBytesThrottle mirrors QUEUE_SLOTS's BytesWaiting throttle: once this
// many bytes are sitting in completed-but-unpicked-up slots, the queue
// refuses new BeginLoad calls until the scheduler drains some via EndLoad.
const queueBytesThrottle = 4 * 1024 * 1024

func readOne(ctx context.Context, mounts *mount.Table, req LoadRequest) LoadResult {
	fileSize, sizeErr := mounts.GetResourceSize(ctx, req.PathHash, req.CanonicalPath)
	if sizeErr != nil {
		return LoadResult{Err: sizeErr}
	}

	isPartial := req.PreloadSize != factory.StreamSentinel && req.PreloadSize < fileSize
	var buf []byte
	var err error
	if isPartial {
		buf, err = mounts.ReadResourcePartial(ctx, req.PathHash, req.CanonicalPath, 0, req.PreloadSize)
	} else {
		buf, err = mounts.ReadResource(ctx, req.PathHash, req.CanonicalPath)
		isPartial = false
	}
	if err != nil {
		return LoadResult{Err: err}
	}
	return LoadResult{Buf: buf, FileSize: fileSize, IsPartial: isPartial}
}

// SyncQueue is the single-in-flight-slot variant: BeginLoad only records the
// request, EndLoad performs the blocking read itself and returns OK
// immediately. A second BeginLoad while one is outstanding is refused.
type SyncQueue struct {
	ctx    context.Context
	mounts *mount.Table

	mu      sync.Mutex
	pending *LoadRequest
}

// NewSyncQueue builds a SyncQueue reading through mounts.
func NewSyncQueue(ctx context.Context, mounts *mount.Table) *SyncQueue {
	return &SyncQueue{ctx: ctx, mounts: mounts}
}

func (q *SyncQueue) BeginLoad(req LoadRequest) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending != nil {
		return 0, false
	}
	q.pending = &req
	return 1, true
}

func (q *SyncQueue) EndLoad(handle int) (LoadResult, bool) {
	q.mu.Lock()
	req := q.pending
	q.pending = nil
	q.mu.Unlock()
	if req == nil {
		return LoadResult{}, false
	}
	return readOne(q.ctx, q.mounts, *req), true
}

func (q *SyncQueue) Close() {}

// ThreadedQueue overlaps reads with the scheduling loop via a bounded pool
// of worker goroutines, matching the original's job-thread handoff.
type ThreadedQueue struct {
	ctx    context.Context
	mounts *mount.Table

	in  chan queueJob
	out sync.Map // handle -> LoadResult

	mu           sync.Mutex
	bytesWaiting int64
	nextHandle   int
	closed       bool
	wg           sync.WaitGroup
}

type queueJob struct {
	handle int
	req    LoadRequest
}

// NewThreadedQueue starts workerCount goroutines, each reading through
// mounts; slots default to QUEUE_SLOTS=16, matching the original's ring
// buffer capacity.
func NewThreadedQueue(ctx context.Context, mounts *mount.Table, workerCount int) *ThreadedQueue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &ThreadedQueue{
		ctx:    ctx,
		mounts: mounts,
		in:     make(chan queueJob, 16),
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *ThreadedQueue) worker() {
	defer q.wg.Done()
	for job := range q.in {
		result := readOne(q.ctx, q.mounts, job.req)
		q.mu.Lock()
		q.bytesWaiting += int64(len(result.Buf))
		q.mu.Unlock()
		q.out.Store(job.handle, result)
	}
}

func (q *ThreadedQueue) BeginLoad(req LoadRequest) (int, bool) {
	q.mu.Lock()
	if q.closed || q.bytesWaiting >= queueBytesThrottle {
		q.mu.Unlock()
		return 0, false
	}
	q.nextHandle++
	handle := q.nextHandle
	q.mu.Unlock()

	select {
	case q.in <- queueJob{handle: handle, req: req}:
		return handle, true
	default:
		return 0, false
	}
}

func (q *ThreadedQueue) EndLoad(handle int) (LoadResult, bool) {
	v, ok := q.out.Load(handle)
	if !ok {
		return LoadResult{}, false
	}
	q.out.Delete(handle)
	result := v.(LoadResult)
	q.mu.Lock()
	q.bytesWaiting -= int64(len(result.Buf))
	if q.bytesWaiting < 0 {
		q.bytesWaiting = 0
	}
	q.mu.Unlock()
	return result, true
}

func (q *ThreadedQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.in)
	q.wg.Wait()
}

var _ LoadQueue = (*SyncQueue)(nil)
var _ LoadQueue = (*ThreadedQueue)(nil)
