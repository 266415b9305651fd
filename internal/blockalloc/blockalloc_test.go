package blockalloc

import "testing"

func TestAllocateFromLowAndHighWatermark(t *testing.T) {
	ctx := NewContext()

	h1, b1 := ctx.Allocate(100)
	h2, b2 := ctx.Allocate(200)
	if len(b1) != 100 || len(b2) != 200 {
		t.Fatalf("unexpected slice lengths: %d, %d", len(b1), len(b2))
	}
	if h1.blockIndex != 0 || h2.blockIndex != 0 {
		t.Fatalf("expected both allocations from initial block")
	}

	ctx.Free(h2)
	ctx.Free(h1)
	if ctx.datas[0].allocationCount != 0 {
		t.Fatalf("expected allocation count to return to zero")
	}
}

func TestOversizeFallsBackToHeap(t *testing.T) {
	ctx := NewContext()
	h, buf := ctx.Allocate(blockAllocationThreshold + 1)
	if h.heap == nil {
		t.Fatalf("expected heap fallback for oversize allocation")
	}
	if len(buf) != blockAllocationThreshold+1 {
		t.Fatalf("unexpected buffer size: %d", len(buf))
	}
	ctx.Free(h) // must not panic
}

func TestNewBlockAllocatedWhenFirstIsFull(t *testing.T) {
	ctx := NewContext()
	// Fill the initial block's high watermark entirely (two half-block
	// allocations).
	_, _ = ctx.Allocate(blockAllocationThreshold)
	_, _ = ctx.Allocate(blockAllocationThreshold)
	h, _ := ctx.Allocate(100)
	if h.blockIndex == 0 {
		t.Fatalf("expected a second block to be allocated")
	}
	if ctx.blocks[h.blockIndex] == nil {
		t.Fatalf("expected new block to be tracked")
	}
}

func TestFreeFromMiddleLeavesHoleUntilAllFreed(t *testing.T) {
	ctx := NewContext()
	h1, _ := ctx.Allocate(64)
	h2, _ := ctx.Allocate(64)
	h3, _ := ctx.Allocate(64)

	ctx.Free(h2) // middle free: neither watermark moves
	if ctx.datas[0].allocationCount != 2 {
		t.Fatalf("expected 2 live allocations, got %d", ctx.datas[0].allocationCount)
	}

	ctx.Free(h1)
	ctx.Free(h3)
	if ctx.datas[0].allocationCount != 0 {
		t.Fatalf("expected allocation count to drain to zero")
	}
}
