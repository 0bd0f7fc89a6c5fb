package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

func appendAndRead(t *testing.T, lm *LogManager, rec *LogRecord) *LogRecord {
	lm.AppendLogRecord(rec)
	got, ok := ReadLogRecord(lm.logBuffer[lm.offset-rec.Size:])
	require.True(t, ok)
	return got
}

func TestAppendReadRoundTripInsert(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	urp := types.MakeUndoRecPtr(0, 100)
	rid := page.NewRID(types.PageID(3), 1)
	rec := NewLogRecordInsert(types.TxnID(5), types.InvalidLSN, urp, rid, []byte("row-bytes"))

	got := appendAndRead(t, lm, rec)
	assert.Equal(t, INSERT, got.Type)
	assert.Equal(t, types.TxnID(5), got.TxnID)
	assert.Equal(t, urp, got.Urp)
	assert.Equal(t, rid, got.RID)
	assert.Equal(t, []byte("row-bytes"), got.Tuple)
}

func TestAppendReadRoundTripUpdate(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	urp := types.MakeUndoRecPtr(1, 200)
	newUrp := types.MakeUndoRecPtr(1, 300)
	oldRID := page.NewRID(types.PageID(4), 2)
	newRID := page.NewRID(types.PageID(5), 0)
	rec := NewLogRecordUpdate(types.TxnID(6), types.InvalidLSN, urp, newUrp, oldRID, newRID, []byte("old-row-value"), []byte("old-newer-value"))

	got := appendAndRead(t, lm, rec)
	assert.Equal(t, UPDATE, got.Type)
	assert.Equal(t, oldRID, got.RID)
	assert.Equal(t, newRID, got.NewRID)
	assert.Equal(t, urp, got.Urp)
	assert.Equal(t, newUrp, got.NewUrp)
	assert.Equal(t, []byte("old-row-value"), got.Old)
	assert.Equal(t, []byte("old-newer-value"), got.ReconstructNew())
}

func TestAppendReadRoundTripMultiInsert(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	urp := types.MakeUndoRecPtr(2, 300)
	tuples := []TupleAtRID{
		NewTupleAtRID(page.NewRID(types.PageID(1), 0), []byte("a")),
		NewTupleAtRID(page.NewRID(types.PageID(1), 1), []byte("bb")),
		NewTupleAtRID(page.NewRID(types.PageID(1), 2), []byte("ccc")),
	}
	ranges := []Range{{StartOffset: 0, Count: 3}}
	rec := NewLogRecordMultiInsert(types.TxnID(7), types.InvalidLSN, urp, tuples, ranges)

	got := appendAndRead(t, lm, rec)
	assert.Equal(t, MULTI_INSERT, got.Type)
	require.Len(t, got.Tuples, 3)
	for i, tup := range tuples {
		assert.Equal(t, tup.RID, got.Tuples[i].RID)
		assert.Equal(t, tup.Data, got.Tuples[i].Data)
	}
	require.Len(t, got.Ranges, 1)
	assert.Equal(t, ranges[0], got.Ranges[0])
}

func TestAppendReadRoundTripSlotOp(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	urp := types.MakeUndoRecPtr(0, 400)
	rec := NewLogRecordSlotOp(types.TxnID(8), types.InvalidLSN, urp, CLEAN, types.PageID(9), 3)

	got := appendAndRead(t, lm, rec)
	assert.Equal(t, CLEAN, got.Type)
	assert.Equal(t, types.PageID(9), got.PageID)
	assert.Equal(t, uint32(3), got.Slot)
}

func TestAppendLogRecordAssignsIncreasingLSNs(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	rec1 := NewLogRecordTxn(types.TxnID(1), types.InvalidLSN, BEGIN)
	rec2 := NewLogRecordTxn(types.TxnID(1), types.InvalidLSN, COMMIT)

	lsn1 := lm.AppendLogRecord(rec1)
	lsn2 := lm.AppendLogRecord(rec2)
	assert.Less(t, lsn1, lsn2)
}

func TestReadLogRecordReportsFalseOnShortBuffer(t *testing.T) {
	_, ok := ReadLogRecord(make([]byte, 4))
	assert.False(t, ok)
}

func TestReadLogRecordReportsFalseOnZeroSize(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, ok := ReadLogRecord(buf)
	assert.False(t, ok)
}
