package undolog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/access"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/types"
)

func newTestStaging() (*Staging, *Registry, *UndoLog) {
	dm := disk.NewMemDiskManager()
	registry := NewRegistry(dm)
	bpm := buffer.NewBufferPoolManager(16, dm)
	allocator := NewAllocator(registry)
	l := registry.createLog(types.PERMANENT, 0)
	return NewStaging(bpm, allocator), registry, l
}

func insertAndRelease(t *testing.T, s *Staging, rec *UnpackedUndoRecord, l *UndoLog, txn *access.Transaction) (types.UndoRecPtr, *CheckpointSnapshot) {
	urp, meta, err := s.PrepareUndoInsert(rec, l, txn)
	require.NoError(t, err)
	s.InsertPreparedUndo()
	s.UnlockReleaseUndoBuffers()
	return urp, meta
}

func TestPrepareUndoInsertMarksFirstRecordOfTransaction(t *testing.T) {
	s, _, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5), Payload: []byte("a")}
	urp, meta := insertAndRelease(t, s, rec, l, txn)

	assert.Equal(t, SpecialUndoRecPtr, rec.Next)
	require.NotNil(t, meta)
	assert.Equal(t, urp, txn.StartUndoRecPtr(types.PERMANENT))
	assert.Equal(t, urp, txn.LatestUndoRecPtr(types.PERMANENT))
}

func TestPrepareUndoInsertSecondRecordIsNotFirst(t *testing.T) {
	s, _, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec1 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5), Payload: []byte("a")}
	urp1, _ := insertAndRelease(t, s, rec1, l, txn)

	rec2 := &UnpackedUndoRecord{Type: UNDO_DELETE, Block: types.PageID(5)}
	urp2, meta2 := insertAndRelease(t, s, rec2, l, txn)

	assert.NotEqual(t, SpecialUndoRecPtr, rec2.Next)
	assert.Nil(t, meta2, "meta is only populated on a transaction's first record")
	assert.Equal(t, urp1, txn.StartUndoRecPtr(types.PERMANENT))
	assert.Equal(t, urp2, txn.LatestUndoRecPtr(types.PERMANENT))
	assert.Less(t, urp1.Offset(), urp2.Offset())
}

func TestPrepareUndoInsertRejectsMoreThanDefaultCapacity(t *testing.T) {
	s, _, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	for i := 0; i < defaultMaxPreparedUndo; i++ {
		rec := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
		_, _, err := s.PrepareUndoInsert(rec, l, txn)
		require.NoError(t, err)
	}

	rec := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
	_, _, err := s.PrepareUndoInsert(rec, l, txn)
	assert.ErrorIs(t, err, ErrOutOfAddressSpace)

	s.SetPrepareSize(defaultMaxPreparedUndo + 1)
	_, _, err = s.PrepareUndoInsert(rec, l, txn)
	assert.NoError(t, err)
}

// TestUndoRecordUpdateTransInfoPatchesPredecessorsNextField exercises the
// full chain-maintenance path: a second top transaction's first record must
// get its urp written into the first transaction's own first record's "next"
// field once InsertPreparedUndo runs.
func TestUndoRecordUpdateTransInfoPatchesPredecessorsNextField(t *testing.T) {
	s, _, l := newTestStaging()

	txn1 := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))
	rec1 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5), Payload: []byte("a")}
	urp1, _ := insertAndRelease(t, s, rec1, l, txn1)

	rec1b := &UnpackedUndoRecord{Type: UNDO_DELETE, Block: types.PageID(5)}
	_, _ = insertAndRelease(t, s, rec1b, l, txn1)

	txn2 := access.NewTransaction(types.TxnID(2), types.XactEpoch(0))
	rec2 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(6)}
	urp2, meta2 := insertAndRelease(t, s, rec2, l, txn2)

	assert.Equal(t, SpecialUndoRecPtr, rec2.Next)
	require.NotNil(t, meta2)

	// re-read urp1's record off the (still buffer-pool-cached) page and
	// confirm its "next" field now points at urp2.
	block := urp1.Offset() / common.PageSize
	pgID := undoPageID(l.LogNo(), block)
	pg := s.bpm.FetchPage(pgID)
	require.NotNil(t, pg)

	var got UnpackedUndoRecord
	dst := &DeserialiseState{}
	read := 0
	ok := Deserialise(&got, dst, pg.Data()[:], int(urp1.Offset()%common.PageSize), &read)
	require.True(t, ok)
	assert.Equal(t, urp2, got.Next)
}

func TestUnlockReleaseUndoBuffersResetsStaging(t *testing.T) {
	s, _, l := newTestStaging()
	s.SetPrepareSize(5)
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))
	rec := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
	_, _, err := s.PrepareUndoInsert(rec, l, txn)
	require.NoError(t, err)

	s.InsertPreparedUndo()
	s.UnlockReleaseUndoBuffers()

	assert.Empty(t, s.prepared)
	assert.Empty(t, s.buffers)
	assert.Equal(t, defaultMaxPreparedUndo, s.maxPrepared)
}
