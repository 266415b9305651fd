// Package preloader implements the bounded-tree, depth-first asynchronous
// dependency loader: given a set of root paths, it builds a request tree in
// a fixed-capacity pool, overlaps reads through a LoadQueue with decoding,
// and walks the tree bottom-up calling each type's Preload/Create/PostCreate
// once every child is settled. Grounded on resource_preloader.cpp.
//
// © 2025 resourcecore authors. MIT License.
package preloader

import (
	"context"
	"sync"
	"time"

	"github.com/Voskan/resourcecore/internal/blockalloc"
	"github.com/Voskan/resourcecore/pkg/factory"
	"github.com/Voskan/resourcecore/pkg/rpath"
)

// CompleteCallback runs exactly once, when every persisted root has settled
// successfully. PostCreate pumping is not held back for it: PostCreate
// records queued earlier may already have run. Returning false
// short-circuits the preloader to a NOT_LOADED-equivalent result.
type CompleteCallback func(ctx context.Context) bool

// Preloader is a single dependency-tree load in progress. Not safe for
// concurrent use — callers serialize Update/Close themselves, matching the
// original's single-threaded scheduling contract.
type Preloader struct {
	f     *factory.Factory
	queue LoadQueue
	arena *blockalloc.Context

	pool *pool

	roots       []int32 // direct children of rootIndex, in request order
	rootResults []*factory.Descriptor

	completeCb     CompleteCallback
	completeCalled bool
	shortCircuited bool

	postCreateQueue []int32

	hintMu sync.Mutex
	hints  []pendingHint

	inProgress map[uint64]bool

	firstErr error
	emptyRounds int
}

type pendingHint struct {
	parent int32
	name   string
}

// hintCollector is handed to a type's Preload as the PreloadHint argument;
// it pushes onto the preloader's lock-protected hint queue exactly as the
// original's NewHints array does, so a preload running off a worker
// goroutine never touches the tree directly.
type hintCollector struct {
	p      *Preloader
	parent int32
}

func (h *hintCollector) Hint(name string) {
	h.p.hintMu.Lock()
	h.p.hints = append(h.p.hints, pendingHint{parent: h.parent, name: name})
	h.p.hintMu.Unlock()
}

// New builds a Preloader over names, one child node per name under the
// fixed root. Names beyond the pool's free capacity are dropped (reported
// via the returned slice of names actually accepted), matching the
// original's "preload tree full" non-fatal behavior.
func New(f *factory.Factory, queue LoadQueue, names []string, completeCb CompleteCallback) (*Preloader, []string) {
	p := &Preloader{
		f:          f,
		queue:      queue,
		arena:      blockalloc.NewContext(),
		pool:       newPool(),
		completeCb: completeCb,
		inProgress: make(map[uint64]bool),
	}

	var accepted []string
	for _, name := range names {
		cpath, hash := rpath.CanonicalizeAndHash(name)
		if _, dup := p.pool.findSibling(rootIndex, hash); dup {
			continue
		}
		idx := p.pool.alloc()
		if idx == noIndex {
			continue
		}
		p.pool.addChild(rootIndex, idx)
		n := &p.pool.nodes[idx]
		n.inUse = true
		n.nameHash = hash
		n.path = cpath
		n.pathHash = hash
		p.roots = append(p.roots, idx)
		accepted = append(accepted, cpath)
	}
	return p, accepted
}

// Update runs scheduling rounds until either the time budget is exhausted or
// three consecutive rounds make no progress, matching UpdatePreloader.
func (p *Preloader) Update(ctx context.Context, budget time.Duration) rpath.Result {
	deadline := time.Now().Add(budget)

	for {
		p.drainHints()

		progressed := p.step(ctx, rootIndex)
		progressed = p.pumpOnePostCreate(ctx) || progressed

		if p.rootDone() && !p.completeCalled {
			p.completeCalled = true
			if p.firstErr == nil && p.completeCb != nil && !p.completeCb(ctx) {
				p.shortCircuited = true
			}
			progressed = true
		}

		if p.rootDone() && len(p.postCreateQueue) == 0 {
			return p.finalResult()
		}

		if time.Now().After(deadline) {
			return rpath.Pending
		}

		if progressed {
			p.emptyRounds = 0
			continue
		}
		p.emptyRounds++
		if p.emptyRounds >= 3 {
			return rpath.Pending
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *Preloader) finalResult() rpath.Result {
	if p.firstErr != nil {
		return rpath.ResultOf(p.firstErr)
	}
	if p.shortCircuited {
		return rpath.NotLoaded
	}
	return rpath.OK
}

func (p *Preloader) rootDone() bool {
	return p.pool.nodes[rootIndex].pendingChildren == 0
}

// Err returns the first error observed across the tree, if any.
func (p *Preloader) Err() error { return p.firstErr }

// RootDescriptor returns the settled descriptor for one of the original
// root names (in the order passed to New), once Update has reported OK.
func (p *Preloader) RootDescriptor(i int) *factory.Descriptor {
	if i < 0 || i >= len(p.rootResults) {
		return nil
	}
	return p.rootResults[i]
}

func (p *Preloader) drainHints() {
	p.hintMu.Lock()
	pending := p.hints
	p.hints = nil
	p.hintMu.Unlock()

	for _, h := range pending {
		cpath, hash := rpath.CanonicalizeAndHash(h.name)
		if _, dup := p.pool.findSibling(h.parent, hash); dup {
			continue
		}
		idx := p.pool.alloc()
		if idx == noIndex {
			continue // pool exhausted: fall back to synchronous loading later
		}
		p.pool.addChild(h.parent, idx)
		n := &p.pool.nodes[idx]
		n.inUse = true
		n.nameHash = hash
		n.path = cpath
		n.pathHash = hash
	}
}

// step advances idx and every live descendant by exactly one scheduling
// step, depth-first, and reports whether anything changed this round.
func (p *Preloader) step(ctx context.Context, idx int32) bool {
	progressed := false

	// Depth-first: advance children before re-checking this node, so a
	// child that becomes ready can let its parent become ready in the
	// same round (PreloaderTryPruneParent's cascading behavior).
	settled := idx != rootIndex && (p.pool.nodes[idx].state == stateLoopError || p.pool.nodes[idx].state == stateCreated)
	if !settled {
		for child := p.pool.nodes[idx].firstChild; child != noIndex; {
			next := p.pool.nodes[child].nextSibling
			if p.step(ctx, child) {
				progressed = true
			}
			child = next
		}
	}

	if idx == rootIndex {
		return progressed
	}

	n := &p.pool.nodes[idx]
	switch n.state {
	case stateFresh:
		if p.pool.ancestorHasPathHash(idx, n.pathHash) {
			n.err = factory.ResourceLoopErr("preloader.Update", n.path)
			n.state = stateLoopError
			p.settle(ctx, idx)
			return true
		}
		if d, ok := p.f.LookupAndAddRef(n.pathHash); ok {
			n.resource = d.Resource
			n.resourceSize = d.ResourceSize
			n.state = stateCreated
			p.settle(ctx, idx)
			return true
		}
		if p.inProgress[n.pathHash] {
			return progressed
		}
		rt, err := p.f.TypeForPath(n.path)
		if err != nil {
			n.err = err
			n.state = stateLoopError
			p.settle(ctx, idx)
			return true
		}
		n.rt = rt
		handle, ok := p.queue.BeginLoad(LoadRequest{
			Name:          n.path,
			CanonicalPath: n.path,
			PathHash:      n.pathHash,
			PreloadSize:   rt.PreloadSize,
		})
		if !ok {
			return progressed // backpressure: queue full, retry next round
		}
		n.loadHandle = handle
		n.loadPending = true
		n.state = stateLoading
		p.inProgress[n.pathHash] = true
		return true

	case stateLoading:
		result, done := p.queue.EndLoad(n.loadHandle)
		if !done {
			return progressed
		}
		delete(p.inProgress, n.pathHash)
		n.loadPending = false
		if result.Err != nil {
			n.err = result.Err
			n.state = stateLoopError
			p.settle(ctx, idx)
			return true
		}
		n.fileSize = result.FileSize

		if n.rt.Preload != nil {
			if err := p.runPreload(ctx, idx, result.Buf, result.IsPartial); err != nil {
				n.err = err
				n.state = stateLoopError
				p.settle(ctx, idx)
				return true
			}
		}
		p.drainHints()

		if n.pendingChildren == 0 {
			n.buf = result.Buf
			n.isPartial = result.IsPartial
			n.state = stateHaveBuffer
			p.tryCreate(ctx, idx)
		} else {
			h, dst := p.arena.Allocate(len(result.Buf))
			copy(dst, result.Buf)
			n.bufHandle = h
			n.buf = dst
			n.usesArena = true
			n.isPartial = result.IsPartial
			n.state = stateHaveBuffer
		}
		return true

	case stateHaveBuffer:
		if n.pendingChildren == 0 {
			p.tryCreate(ctx, idx)
			return true
		}
		return progressed
	}

	return progressed
}

func (p *Preloader) runPreload(ctx context.Context, idx int32, buf []byte, isPartial bool) error {
	n := &p.pool.nodes[idx]
	collector := &hintCollector{p: p, parent: idx}
	data, err := n.rt.Preload(ctx, p.f, n.rt, buf, n.fileSize, isPartial, n.path, collector)
	if err != nil {
		return err
	}
	n.preloadData = data
	n.preloadRan = true
	return nil
}

// tryCreate runs CreateResource for idx, which must have pendingChildren==0
// and a buffer ready.
func (p *Preloader) tryCreate(ctx context.Context, idx int32) {
	n := &p.pool.nodes[idx]

	if !n.preloadRan && n.rt.Preload != nil {
		if err := p.runPreload(ctx, idx, n.buf, n.isPartial); err != nil {
			p.releaseArena(n)
			n.err = err
			n.state = stateLoopError
			p.settle(ctx, idx)
			return
		}
		p.drainHints()
		if n.pendingChildren > 0 {
			// Preload added hints this late: wait for the new children too.
			return
		}
	}

	resource, size, err := n.rt.Create(ctx, p.f, n.rt, n.buf, n.preloadData, n.path)
	p.releaseArena(n)
	if err != nil {
		n.err = err
		n.state = stateLoopError
		p.settle(ctx, idx)
		return
	}

	desc, duplicate := p.f.InsertCreated(n.pathHash, n.path, n.rt, resource, size)
	n.resource = desc.Resource
	n.resourceSize = desc.ResourceSize
	n.cachedDescriptor = desc
	if duplicate {
		n.duplicateOf = desc
		n.ownCreated = resource
		n.ownDescriptor = &factory.Descriptor{
			Resource: resource, ResourceSize: size, Type: n.rt, Filename: n.path, PathHash: n.pathHash,
		}
	} else {
		n.ownDescriptor = desc
	}

	if n.rt.PostCreate != nil {
		n.postCreatePending = true
		p.postCreateQueue = append(p.postCreateQueue, idx)
	}

	n.state = stateCreated
	p.settle(ctx, idx)
}

func (p *Preloader) releaseArena(n *request) {
	if n.usesArena {
		p.arena.Free(n.bufHandle)
		n.usesArena = false
	}
	n.buf = nil
}

// settle prunes idx's (already-settled) children, records the first error
// seen, and — for a non-root node — decrements its parent's pending count,
// cascading a parent's own create when it becomes ready.
func (p *Preloader) settle(ctx context.Context, idx int32) {
	n := &p.pool.nodes[idx]

	child := n.firstChild
	for child != noIndex {
		next := p.pool.nodes[child].nextSibling
		cn := &p.pool.nodes[child]
		if cn.resource != nil {
			_ = p.f.Release(ctx, cn.resource)
		}
		p.pool.free(child)
		child = next
	}
	n.firstChild = noIndex
	n.pendingChildren = 0

	if n.err != nil && p.firstErr == nil {
		p.firstErr = n.err
	}

	if idx == rootIndex {
		return
	}

	for i, rootIdx := range p.roots {
		if rootIdx == idx {
			if i >= len(p.rootResults) {
				grown := make([]*factory.Descriptor, len(p.roots))
				copy(grown, p.rootResults)
				p.rootResults = grown
			}
			if n.cachedDescriptor != nil {
				p.rootResults[i] = n.cachedDescriptor
			}
			break
		}
	}

	parent := &p.pool.nodes[n.parent]
	parent.pendingChildren--
	if n.err != nil && parent.state != stateCreated && parent.state != stateLoopError {
		parent.err = n.err
		parent.state = stateLoopError
		p.settle(ctx, n.parent)
		return
	}
	if parent.pendingChildren == 0 && parent.state == stateHaveBuffer {
		p.tryCreate(ctx, n.parent)
	}
}

// pumpOnePostCreate advances exactly one pending PostCreate record,
// round-robin across every node awaiting one, matching "pumps PostCreate
// callbacks one per update tick".
func (p *Preloader) pumpOnePostCreate(ctx context.Context) bool {
	if len(p.postCreateQueue) == 0 {
		return false
	}
	idx := p.postCreateQueue[0]
	p.postCreateQueue = p.postCreateQueue[1:]
	n := &p.pool.nodes[idx]

	done, err := n.rt.PostCreate(ctx, p.f, n.rt, n.ownDescriptor)
	if err != nil {
		n.postCreatePending = false
		if n.duplicateOf != nil {
			_ = p.f.DestroyResource(ctx, n.rt, n.ownCreated)
		}
		if p.firstErr == nil {
			p.firstErr = err
		}
		return true
	}
	if !done {
		p.postCreateQueue = append(p.postCreateQueue, idx)
		return true
	}
	n.postCreatePending = false
	if n.duplicateOf != nil {
		_ = p.f.DestroyResource(ctx, n.rt, n.ownCreated)
	}
	return true
}

// Close spins Update to completion, then releases every persisted root and
// the queue, matching DeletePreloader.
func (p *Preloader) Close(ctx context.Context) {
	for {
		result := p.Update(ctx, 10*time.Millisecond)
		if result != rpath.Pending {
			break
		}
	}
	for _, desc := range p.rootResults {
		if desc != nil && desc.Resource != nil {
			_ = p.f.Release(ctx, desc.Resource)
		}
	}
	p.queue.Close()
}
