package undolog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/types"
)

func TestAllocateAdvancesInsertByExactSize(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	l := registry.createLog(types.PERMANENT, 0)
	allocator := NewAllocator(registry)

	before := l.Insert()
	urp, _, err := allocator.Allocate(l, 64, false)
	require.NoError(t, err)
	after := l.Insert()

	assert.Equal(t, l.LogNo(), urp.LogNo())
	assert.Equal(t, before, urp.Offset())
	assert.Equal(t, before+64, after)
}

func TestAllocateCreatesSegmentOnBoundaryCross(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	l := registry.createLog(types.PERMANENT, 0)
	allocator := NewAllocator(registry)

	// first allocation lands entirely within the first segment
	_, _, err := allocator.Allocate(l, common.UndoSegmentSize-int(page_HDR)-10, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(common.UndoSegmentSize), l.End())

	// this one straddles the boundary and must extend end into segment 2
	_, _, err = allocator.Allocate(l, 100, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*common.UndoSegmentSize), l.End())
}

func TestAllocateReturnsMetaOnlyWhenRequested(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	l := registry.createLog(types.PERMANENT, 0)
	allocator := NewAllocator(registry)

	_, meta, err := allocator.Allocate(l, 32, false)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, meta, err = allocator.Allocate(l, 32, true)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, l.LogNo(), meta.LogNo)
	assert.Equal(t, l.Insert(), meta.Insert)
}

func TestAllocateOutOfAddressSpace(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	l := registry.createLog(types.PERMANENT, 0)
	l.insert = maxLogOffset - 10
	l.end = maxLogOffset - 10
	allocator := NewAllocator(registry)

	_, _, err := allocator.Allocate(l, 1024, false)
	assert.ErrorIs(t, err, ErrOutOfAddressSpace)
}

func TestAllocateInRecoveryReusesSameLogForSameXid(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	allocator := NewAllocator(registry)

	urp1, _, err := allocator.AllocateInRecovery(types.TxnID(5), types.PERMANENT, 16, false)
	require.NoError(t, err)
	urp2, _, err := allocator.AllocateInRecovery(types.TxnID(5), types.PERMANENT, 16, false)
	require.NoError(t, err)

	assert.Equal(t, urp1.LogNo(), urp2.LogNo())
	assert.Equal(t, urp1.Offset()+16, urp2.Offset())

	allocator.ForgetXid(types.TxnID(5))
	assert.NotContains(t, allocator.xidToLogNo, types.TxnID(5))
}

func TestAdvanceInsertAssertsSameLog(t *testing.T) {
	registry := NewRegistry(disk.NewMemDiskManager())
	l1 := registry.createLog(types.PERMANENT, 0)
	l2 := registry.createLog(types.PERMANENT, 0)
	allocator := NewAllocator(registry)

	urp, _, err := allocator.Allocate(l1, 16, false)
	require.NoError(t, err)

	assert.Panics(t, func() {
		allocator.AdvanceInsert(l2, urp, 16)
	})
}
