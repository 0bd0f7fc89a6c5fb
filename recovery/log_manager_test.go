package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/types"
)

func TestFlushWritesBufferedRecordsToDisk(t *testing.T) {
	dm := disk.NewMemDiskManager()
	lm := NewLogManager(dm)

	rec := NewLogRecordTxn(types.TxnID(1), types.InvalidLSN, BEGIN)
	lsn := lm.AppendLogRecord(rec)
	lm.Flush()

	assert.Equal(t, lsn, lm.GetPersistentLSN())

	var readBytes uint32
	dst := make([]byte, HeaderSize)
	ok := dm.ReadLog(dst, 0, &readBytes)
	require.True(t, ok)
	assert.Equal(t, HeaderSize, readBytes)

	got, ok := ReadLogRecord(dst)
	require.True(t, ok)
	assert.Equal(t, BEGIN, got.Type)
	assert.Equal(t, types.TxnID(1), got.TxnID)
}

func TestActivateDeactivateLogging(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	assert.False(t, lm.IsEnabledLogging())
	lm.ActivateLogging()
	assert.True(t, lm.IsEnabledLogging())
	lm.DeactivateLogging()
	assert.False(t, lm.IsEnabledLogging())
}

func TestAppendTxnRecordAdvancesLSNAndReturnsIt(t *testing.T) {
	lm := NewLogManager(disk.NewMemDiskManager())
	before := lm.GetNextLSN()
	lsn := lm.AppendTxnRecord(types.TxnID(1), types.InvalidLSN, int32(BEGIN))
	assert.Equal(t, before, lsn)
	assert.Greater(t, lm.GetNextLSN(), before)
}
