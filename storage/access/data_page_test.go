// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/access/table_heap_test.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
)

func newTestDataPage() *DataPage {
	dp := CastDataPage(page.NewEmpty(types.PageID(1)))
	dp.Init(types.PageID(1), types.InvalidPageID)
	return dp
}

func TestDataPageInitStartsEmptyWithAllSlotsFree(t *testing.T) {
	dp := newTestDataPage()
	assert.Equal(t, uint32(0), dp.GetTupleCount())
	assert.EqualValues(t, 4096, dp.GetFreeSpacePointer())
	assert.Equal(t, types.InvalidPageID, dp.TPDPageID())

	for i := 0; i < numInlineSlots; i++ {
		_, xid, urp := dp.GetTransSlot(i)
		assert.Equal(t, types.InvalidTxnID, xid)
		assert.Equal(t, types.InvalidUndoRecPtr, urp)
	}
}

func TestInsertTupleAssignsSequentialSlotsAndShrinksFreeSpace(t *testing.T) {
	dp := newTestDataPage()

	before := dp.GetFreeSpacePointer()
	rid1, err := dp.InsertTuple(tuple.NewTuple([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rid1.GetSlotNum())
	assert.Equal(t, dp.GetPageId(), rid1.GetPageId())
	assert.Equal(t, before-5, dp.GetFreeSpacePointer())
	assert.Equal(t, uint32(1), dp.GetTupleCount())

	rid2, err := dp.InsertTuple(tuple.NewTuple([]byte("world!")))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rid2.GetSlotNum())
	assert.Equal(t, uint32(2), dp.GetTupleCount())
}

func TestInsertTupleRejectsEmptyTuple(t *testing.T) {
	dp := newTestDataPage()
	_, err := dp.InsertTuple(tuple.NewTuple(nil))
	assert.ErrorIs(t, err, ErrEmptyTuple)
}

func TestInsertTupleRejectsWhenPageIsFull(t *testing.T) {
	dp := newTestDataPage()
	big := make([]byte, 4096)
	_, err := dp.InsertTuple(tuple.NewTuple(big))
	assert.ErrorIs(t, err, ErrNotEnoughSpace)
}

func TestReadTupleReturnsWhatWasInserted(t *testing.T) {
	dp := newTestDataPage()
	rid, err := dp.InsertTuple(tuple.NewTuple([]byte("payload")))
	require.NoError(t, err)

	got := dp.ReadTuple(rid.GetSlotNum())
	assert.Equal(t, []byte("payload"), got.Data())
	assert.Equal(t, rid, got.GetRID())
}

func TestMarkDeleteThenApplyDeleteFreesSlotForReuse(t *testing.T) {
	dp := newTestDataPage()
	rid, err := dp.InsertTuple(tuple.NewTuple([]byte("stale")))
	require.NoError(t, err)

	dp.MarkDelete(rid.GetSlotNum())
	assert.True(t, dp.IsDeleted(rid.GetSlotNum()))

	dp.ApplyDelete(rid.GetSlotNum())
	assert.Equal(t, uint32(0), dp.GetTupleSize(rid.GetSlotNum()))

	// the freed slot is reused by the next insert rather than growing the
	// tuple count
	before := dp.GetTupleCount()
	rid2, err := dp.InsertTuple(tuple.NewTuple([]byte("fresh")))
	require.NoError(t, err)
	assert.Equal(t, rid.GetSlotNum(), rid2.GetSlotNum())
	assert.Equal(t, before, dp.GetTupleCount())
}

func TestFindOrAssignTransSlotReusesOwnedSlotAndFindsFree(t *testing.T) {
	dp := newTestDataPage()

	idx := dp.FindOrAssignTransSlot(types.TxnID(7))
	require.GreaterOrEqual(t, idx, 0)
	dp.SetTransSlot(idx, types.XactEpoch(1), types.TxnID(7), types.MakeUndoRecPtr(0, 8))

	again := dp.FindOrAssignTransSlot(types.TxnID(7))
	assert.Equal(t, idx, again)

	other := dp.FindOrAssignTransSlot(types.TxnID(9))
	assert.NotEqual(t, idx, other)
	assert.GreaterOrEqual(t, other, 0)
}

func TestFindOrAssignTransSlotReturnsMinusOneWhenInlineArrayIsFull(t *testing.T) {
	dp := newTestDataPage()
	for i := 0; i < numInlineSlots; i++ {
		dp.SetTransSlot(i, types.XactEpoch(0), types.TxnID(i+1), types.MakeUndoRecPtr(0, uint64(8+i)))
	}
	assert.Equal(t, -1, dp.FindOrAssignTransSlot(types.TxnID(999)))
}

func TestSetTransSlotRoundTrips(t *testing.T) {
	dp := newTestDataPage()
	urp := types.MakeUndoRecPtr(3, 12345)
	dp.SetTransSlot(1, types.XactEpoch(42), types.TxnID(5), urp)

	epoch, xid, gotUrp := dp.GetTransSlot(1)
	assert.Equal(t, types.XactEpoch(42), epoch)
	assert.Equal(t, types.TxnID(5), xid)
	assert.Equal(t, urp, gotUrp)
}
