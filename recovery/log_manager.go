// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/recovery/log_manager.go
// there is license and copyright notice in licenses/SamehadaDB dir

package recovery

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// LogManager buffers WAL records in a double-buffer and flushes the full
// one to disk, the same pattern as the teacher's, generalized to the
// UndoRecPtr-carrying record set.
type LogManager struct {
	offset        uint32
	logBufferLsn  types.LSN
	nextLsn       types.LSN
	persistentLsn types.LSN
	logBuffer     []byte
	flushBuffer   []byte
	latch         common.ReaderWriterLatch
	wlogMutex     sync.Mutex
	diskManager   disk.DiskManager
	enabled       bool
}

func NewLogManager(diskManager disk.DiskManager) *LogManager {
	return &LogManager{
		nextLsn:       0,
		persistentLsn: types.LSN(common.InvalidLSN),
		diskManager:   diskManager,
		logBuffer:     make([]byte, common.LogBufferSize),
		flushBuffer:   make([]byte, common.LogBufferSize),
		latch:         common.NewRWLatch(),
	}
}

func (lm *LogManager) GetNextLSN() types.LSN       { return lm.nextLsn }
func (lm *LogManager) GetPersistentLSN() types.LSN { return lm.persistentLsn }
func (lm *LogManager) ActivateLogging()            { lm.enabled = true }
func (lm *LogManager) DeactivateLogging()          { lm.enabled = false }
func (lm *LogManager) IsEnabledLogging() bool      { return lm.enabled }

// AppendTxnRecord logs a BEGIN/COMMIT/ABORT boundary. kind is a
// recovery.LogRecordType value passed as int32 so callers outside this
// package (access.TransactionManager, via the WalWriter interface) don't
// need to import recovery just to name BEGIN/COMMIT/ABORT.
func (lm *LogManager) AppendTxnRecord(txnID types.TxnID, prevLsn types.LSN, kind int32) types.LSN {
	rec := NewLogRecordTxn(txnID, prevLsn, LogRecordType(kind))
	return lm.AppendLogRecord(rec)
}

func (lm *LogManager) Flush() {
	lm.wlogMutex.Lock()
	defer lm.wlogMutex.Unlock()

	lm.latch.WLock()
	lsn := lm.logBufferLsn
	offset := lm.offset
	lm.offset = 0
	lm.logBuffer, lm.flushBuffer = lm.flushBuffer, lm.logBuffer
	lm.latch.WUnlock()

	lm.diskManager.WriteLog(lm.flushBuffer[:offset])
	lm.persistentLsn = lsn
}

// AppendLogRecord serializes rec into the active buffer, flushing first if
// it doesn't fit, and assigns rec its LSN.
func (lm *LogManager) AppendLogRecord(rec *LogRecord) types.LSN {
	lm.latch.WLock()
	if common.LogBufferSize-lm.offset < HeaderSize {
		lm.latch.WUnlock()
		lm.Flush()
		lm.latch.WLock()
	}

	rec.Lsn = lm.nextLsn
	lm.nextLsn++

	if common.LogBufferSize-lm.offset < rec.Size {
		lm.latch.WUnlock()
		lm.Flush()
		lm.latch.WLock()
	}

	copy(lm.logBuffer[lm.offset:], rec.GetLogHeaderData())
	lm.logBufferLsn = rec.Lsn
	pos := lm.offset + HeaderSize
	lm.offset += rec.Size

	switch rec.Type {
	case INSERT, DELETE:
		pos = writeRID(lm.logBuffer, pos, rec.RID)
		pos = writeBytesWithLen(lm.logBuffer, pos, rec.Tuple)
	case INPLACE_UPDATE:
		pos = writeRID(lm.logBuffer, pos, rec.RID)
		pos = writeBytesWithLen(lm.logBuffer, pos, rec.Old)
		writeBytesWithLen(lm.logBuffer, pos, rec.New)
	case UPDATE:
		pos = writeRID(lm.logBuffer, pos, rec.RID)
		pos = writeRID(lm.logBuffer, pos, rec.NewRID)
		pos = writeUint64(lm.logBuffer, pos, uint64(rec.NewUrp))
		pos = writeBytesWithLen(lm.logBuffer, pos, rec.Old)
		pos = writeUint32(lm.logBuffer, pos, uint32(rec.PrefixLen))
		pos = writeUint32(lm.logBuffer, pos, uint32(rec.SuffixLen))
		writeBytesWithLen(lm.logBuffer, pos, rec.Delta)
	case MULTI_INSERT:
		pos = writeUint32(lm.logBuffer, pos, uint32(len(rec.Tuples)))
		for _, t := range rec.Tuples {
			pos = writeRID(lm.logBuffer, pos, t.RID)
			pos = writeBytesWithLen(lm.logBuffer, pos, t.Data)
		}
		pos = writeUint32(lm.logBuffer, pos, uint32(len(rec.Ranges)))
		for _, rg := range rec.Ranges {
			pos = writeUint16(lm.logBuffer, pos, rg.StartOffset)
			pos = writeUint16(lm.logBuffer, pos, rg.Count)
		}
	case LOCK, CLEAN, UNUSED, CONFIRM, FREEZE_SLOT, INVALIDATE_SLOT:
		pos = writeUint32(lm.logBuffer, pos, uint32(rec.PageID))
		writeUint32(lm.logBuffer, pos, rec.Slot)
	}

	lm.latch.WUnlock()
	return rec.Lsn
}

func writeRID(buf []byte, pos uint32, rid page.RID) uint32 {
	pos = writeUint32(buf, pos, uint32(rid.GetPageId()))
	return writeUint32(buf, pos, rid.GetSlotNum())
}

func writeUint32(buf []byte, pos uint32, v uint32) uint32 {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, v)
	copy(buf[pos:], b.Bytes())
	return pos + 4
}

func writeUint64(buf []byte, pos uint32, v uint64) uint32 {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, v)
	copy(buf[pos:], b.Bytes())
	return pos + 8
}

func writeUint16(buf []byte, pos uint32, v uint16) uint32 {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, v)
	copy(buf[pos:], b.Bytes())
	return pos + 2
}

func writeBytesWithLen(buf []byte, pos uint32, data []byte) uint32 {
	pos = writeUint32(buf, pos, uint32(len(data)))
	copy(buf[pos:], data)
	return pos + uint32(len(data))
}
