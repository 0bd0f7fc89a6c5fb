package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/storage/access"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
	"github.com/skyformat99/zheap/undolog"
)

func newTestDispatcher() (*Dispatcher, *buffer.BufferPoolManager, *undolog.Registry) {
	dm := disk.NewMemDiskManager()
	bpm := buffer.NewBufferPoolManager(16, dm)
	registry := undolog.NewRegistry(dm)
	allocator := undolog.NewAllocator(registry)
	staging := undolog.NewStaging(bpm, allocator)
	return NewDispatcher(bpm, registry, staging), bpm, registry
}

func TestRedoInsertAppliesTupleAndAdvancesLSN(t *testing.T) {
	d, bpm, _ := newTestDispatcher()

	pid := types.PageID(100)
	pg := bpm.NewPageWithID(pid)
	dp := access.CastDataPage(pg)
	dp.Init(pid, types.InvalidPageID)

	rid := page.NewRID(pid, 0)
	xid := types.TxnID(1)
	urp := types.MakeUndoRecPtr(0, 8) // first allocation on a fresh log starts at page_HDR
	rec := NewLogRecordInsert(xid, types.InvalidLSN, urp, rid, []byte("row"))
	rec.Lsn = types.LSN(1)

	err := d.Redo(rec, types.PERMANENT)
	require.NoError(t, err)

	got := access.CastDataPage(bpm.FetchPage(pid))
	assert.Equal(t, uint32(1), got.GetTupleCount())
	assert.Equal(t, []byte("row"), got.ReadTuple(0).Data())
	assert.Equal(t, types.LSN(1), got.GetLSN())

	slot := got.FindOrAssignTransSlot(xid)
	require.GreaterOrEqual(t, slot, 0)
	_, slotXid, slotUrp := got.GetTransSlot(slot)
	assert.Equal(t, xid, slotXid)
	assert.Equal(t, urp, slotUrp)
}

func TestRedoSkipsAlreadyAppliedPage(t *testing.T) {
	d, bpm, _ := newTestDispatcher()

	pid := types.PageID(101)
	pg := bpm.NewPageWithID(pid)
	dp := access.CastDataPage(pg)
	dp.Init(pid, types.InvalidPageID)
	dp.SetLSN(types.LSN(5))

	rid := page.NewRID(pid, 0)
	urp := types.MakeUndoRecPtr(0, 8)
	rec := NewLogRecordInsert(types.TxnID(1), types.InvalidLSN, urp, rid, []byte("row"))
	rec.Lsn = types.LSN(1) // older than the page's current LSN

	err := d.Redo(rec, types.PERMANENT)
	require.NoError(t, err)

	got := access.CastDataPage(bpm.FetchPage(pid))
	assert.Equal(t, uint32(0), got.GetTupleCount(), "a page whose LSN already dominates the record must be left untouched")
}

func TestRedoReturnsErrUrpMismatchWhenRecreatedAddressDiffers(t *testing.T) {
	d, _, registry := newTestDispatcher()
	registry.Attach(types.PERMANENT, 0, 1) // pins log 0 into existence ahead of replay

	pid := types.PageID(102)
	rid := page.NewRID(pid, 0)
	wrongUrp := types.MakeUndoRecPtr(0, 9999) // true first allocation would be offset 8
	rec := NewLogRecordInsert(types.TxnID(1), types.InvalidLSN, wrongUrp, rid, []byte("row"))
	rec.Lsn = types.LSN(1)

	err := d.Redo(rec, types.PERMANENT)
	assert.ErrorIs(t, err, ErrUrpMismatch)
}

func TestRedoFreezeSlotClearsTransSlot(t *testing.T) {
	d, bpm, _ := newTestDispatcher()

	pid := types.PageID(103)
	pg := bpm.NewPageWithID(pid)
	dp := access.CastDataPage(pg)
	dp.Init(pid, types.InvalidPageID)
	dp.SetTransSlot(1, types.XactEpoch(5), types.TxnID(42), types.MakeUndoRecPtr(0, 16))

	rec := &LogRecord{Type: FREEZE_SLOT, PageID: pid, Slot: 1, Lsn: types.LSN(1)}
	err := d.Redo(rec, types.PERMANENT)
	require.NoError(t, err)

	got := access.CastDataPage(bpm.FetchPage(pid))
	epoch, xid, urp := got.GetTransSlot(1)
	assert.Equal(t, types.XactEpoch(0), epoch)
	assert.Equal(t, types.InvalidTxnID, xid)
	assert.Equal(t, types.InvalidUndoRecPtr, urp)
}

// precomputeUrp prepares and inserts uur against staging, using the same
// fresh-Transaction-in-recovery-phase construction prepareAndInsert itself
// uses during replay, so the returned urp is the exact address
// Dispatcher.Redo will recreate for an equivalent record later. Callers that
// need to precompute more than one record's address (as redoUpdate's two
// chained prepareAndInsert calls do) must pass the SAME staging/log pair to
// every call, mirroring how Dispatcher shares one registry/staging across a
// single Redo call — a fresh log per call would restart the insert pointer
// and collide addresses instead of advancing past the prior record.
func precomputeUrp(t *testing.T, l *undolog.UndoLog, staging *undolog.Staging, txnID types.TxnID, uur *undolog.UnpackedUndoRecord) types.UndoRecPtr {
	txn := access.NewTransaction(txnID, 0)
	txn.SetIsRecoveryPhase(true)
	urp, _, err := staging.PrepareUndoInsert(uur, l, txn)
	require.NoError(t, err)
	staging.InsertPreparedUndo()
	staging.UnlockReleaseUndoBuffers()
	return urp
}

func TestRedoUpdateAcrossPagesMarksOldUpdatedAndInsertsNewHalf(t *testing.T) {
	dm := disk.NewMemDiskManager()
	bpm := buffer.NewBufferPoolManager(16, dm)

	oldPid, newPid := types.PageID(120), types.PageID(121)
	oldDp := access.CastDataPage(bpm.NewPageWithID(oldPid))
	oldDp.Init(oldPid, types.InvalidPageID)
	newDp := access.CastDataPage(bpm.NewPageWithID(newPid))
	newDp.Init(newPid, types.InvalidPageID)
	bpm.FlushPage(oldPid)
	bpm.FlushPage(newPid)

	oldRid, err := oldDp.InsertTuple(tuple.NewTuple([]byte("old-row-value")))
	require.NoError(t, err)
	newRid := page.NewRID(newPid, 0)

	xid := types.TxnID(9)
	oldTuple := []byte("old-row-value")
	newTuple := []byte("old-newer-value")

	// Precompute both halves' addresses against one shared log/staging pair,
	// the same way redoUpdate's two prepareAndInsert calls share d.registry/
	// d.staging within a single Redo call — a fresh log per call would
	// restart the insert pointer instead of advancing past the first record.
	precomputeRegistry := undolog.NewRegistry(dm)
	precomputeStaging := undolog.NewStaging(bpm, undolog.NewAllocator(precomputeRegistry))
	precomputeLog := precomputeRegistry.Attach(types.PERMANENT, 0, int64(xid))

	// Address of the delete-half UNDO_UPDATE record on oldPid, exactly as
	// redoUpdate will build it.
	urpOld := precomputeUrp(t, precomputeLog, precomputeStaging, xid, &undolog.UnpackedUndoRecord{
		Type: undolog.UNDO_UPDATE, Block: oldRid.GetPageId(), Offset: uint16(oldRid.GetSlotNum()),
		Tuple: tuple.NewTuple(oldTuple), Payload: ridPayload(newRid),
	})
	// Address of the insert-half UNDO_INSERT record on newPid.
	urpNew := precomputeUrp(t, precomputeLog, precomputeStaging, xid, &undolog.UnpackedUndoRecord{
		Type: undolog.UNDO_INSERT, Block: newRid.GetPageId(), Offset: uint16(newRid.GetSlotNum()),
	})

	rec := NewLogRecordUpdate(xid, types.InvalidLSN, urpOld, urpNew, oldRid, newRid, oldTuple, newTuple)
	rec.Lsn = types.LSN(1)

	// Redo replays against its own fresh registry/log, independent of the
	// one used to precompute urpOld/urpNew above: both start an untouched
	// log 0 at the same initial insert offset and allocate the identical
	// sequence of record sizes, so they land on the same addresses without
	// sharing state — the precompute log must NOT be reused here, since its
	// insert pointer already advanced past both records.
	redoRegistry := undolog.NewRegistry(dm)
	redoStaging := undolog.NewStaging(bpm, undolog.NewAllocator(redoRegistry))
	d := NewDispatcher(bpm, redoRegistry, redoStaging)
	require.NoError(t, d.Redo(rec, types.PERMANENT))

	gotOld := access.CastDataPage(bpm.FetchPage(oldPid))
	assert.True(t, gotOld.IsUpdated(oldRid.GetSlotNum()), "old slot must carry the UPDATED bit, not the DELETE bit")
	assert.False(t, gotOld.IsDeleted(oldRid.GetSlotNum()))

	gotNew := access.CastDataPage(bpm.FetchPage(newPid))
	assert.Equal(t, newTuple, gotNew.ReadTuple(0).Data())
	assert.Equal(t, types.LSN(1), gotNew.GetLSN())
	assert.Equal(t, types.LSN(1), gotOld.GetLSN())
}
