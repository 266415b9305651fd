package preloader

// node.go is the fixed request pool, grounded on resource_preloader.cpp's
// PreloadRequest array: MAX_REQUESTS nodes, index 0 reserved for the root,
// a free list handing out the rest, tree links encoded as indices rather
// than pointers.
//
// © 2025 resourcecore authors. MIT License.

import (
	"github.com/Voskan/resourcecore/internal/blockalloc"
	"github.com/Voskan/resourcecore/pkg/factory"
)

// maxRequests mirrors MAX_REQUESTS.
const maxRequests = 1024

// rootIndex is the reserved, always-live root node.
const rootIndex = 0

// noIndex is the Option<NodeIx> "none" sentinel.
const noIndex int32 = -1

type nodeState int

const (
	stateFresh nodeState = iota // just linked in, nothing issued yet
	stateLoading
	stateHaveBuffer // load finished, buffer held (copied or borrowed), preload may have run
	stateCreated
	stateLoopError
)

// request is one PreloadRequest: a node in the dependency tree plus the
// transient load/create state attached to it.
type request struct {
	inUse    bool
	nameHash uint64
	path     string
	pathHash uint64

	parent      int32
	firstChild  int32
	nextSibling int32

	pendingChildren int

	state       nodeState
	loadHandle  int
	loadPending bool

	buf         []byte
	bufHandle   blockalloc.Handle
	usesArena   bool
	fileSize    uint32
	isPartial   bool
	preloadData any

	rt           *factory.ResourceType
	resource     any // the resource this node hands to its parent / the caller
	resourceSize uint32
	preloadRan   bool

	// duplicateOf is set when the factory already held a descriptor for
	// this node's path hash at create time: resource above is the winning
	// (shared) one, ownCreated is this node's own just-built resource,
	// destined for destruction once ownDescriptor's PostCreate settles.
	duplicateOf      *factory.Descriptor
	ownCreated       any
	ownDescriptor    *factory.Descriptor
	cachedDescriptor *factory.Descriptor

	postCreatePending bool
	err               error
}

// pool is the fixed-capacity arena of requests plus its free list.
type pool struct {
	nodes    [maxRequests]request
	freeList []int32
}

func newPool() *pool {
	p := &pool{freeList: make([]int32, 0, maxRequests-1)}
	for i := maxRequests - 1; i >= 1; i-- {
		p.freeList = append(p.freeList, int32(i))
	}
	p.nodes[rootIndex].parent = noIndex
	p.nodes[rootIndex].firstChild = noIndex
	p.nodes[rootIndex].nextSibling = noIndex
	return p
}

// alloc hands out a free index, or -1 if the pool is exhausted (the fixed
// MAX_REQUESTS ceiling — matches the original's "preload tree full" case,
// which is non-fatal: the caller simply cannot add this child yet).
func (p *pool) alloc() int32 {
	n := len(p.freeList)
	if n == 0 {
		return noIndex
	}
	idx := p.freeList[n-1]
	p.freeList = p.freeList[:n-1]
	p.nodes[idx] = request{parent: noIndex, firstChild: noIndex, nextSibling: noIndex}
	return idx
}

func (p *pool) free(idx int32) {
	if idx == rootIndex {
		return
	}
	p.nodes[idx] = request{}
	p.freeList = append(p.freeList, idx)
}

// addChild links child under parent, matching insertion order (new children
// become the new first-child, pushing prior siblings down).
func (p *pool) addChild(parentIdx, childIdx int32) {
	parent := &p.nodes[parentIdx]
	child := &p.nodes[childIdx]
	child.parent = parentIdx
	child.nextSibling = parent.firstChild
	parent.firstChild = childIdx
	parent.pendingChildren++
}

// findSibling reports whether parentIdx already has a child requesting
// nameHash — the sibling-duplicate check insertion performs before
// allocating a new node.
func (p *pool) findSibling(parentIdx int32, nameHash uint64) (int32, bool) {
	for idx := p.nodes[parentIdx].firstChild; idx != noIndex; idx = p.nodes[idx].nextSibling {
		if p.nodes[idx].nameHash == nameHash {
			return idx, true
		}
	}
	return noIndex, false
}

// ancestorHasPathHash walks from idx's parent to the root looking for
// pathHash, detecting a preload cycle before a freshly hinted node is loaded.
func (p *pool) ancestorHasPathHash(idx int32, pathHash uint64) bool {
	for cur := p.nodes[idx].parent; cur != noIndex; cur = p.nodes[cur].parent {
		if p.nodes[cur].pathHash == pathHash {
			return true
		}
	}
	return false
}
