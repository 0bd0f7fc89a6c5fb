// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/recovery/log_recovery.go
// there is license and copyright notice in licenses/SamehadaDB dir

package recovery

import (
	"encoding/binary"

	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// ReadLogRecord parses one record out of buf at the WAL layout
// AppendLogRecord writes, returning the record (its Size field gives the
// bytes it occupied). It reports ok=false once buf no longer holds a full
// header or a full record, or the size field is zero: the replay-time
// end-of-segment condition.
func ReadLogRecord(buf []byte) (rec *LogRecord, ok bool) {
	if uint32(len(buf)) < HeaderSize {
		return nil, false
	}

	size := binary.LittleEndian.Uint32(buf[0:4])
	if size == 0 || uint32(len(buf)) < size {
		return nil, false
	}

	lr := &LogRecord{
		Size:    size,
		Lsn:     types.LSN(int32(binary.LittleEndian.Uint32(buf[4:8]))),
		TxnID:   types.TxnID(int32(binary.LittleEndian.Uint32(buf[8:12]))),
		PrevLsn: types.LSN(int32(binary.LittleEndian.Uint32(buf[12:16]))),
		Type:    LogRecordType(int32(binary.LittleEndian.Uint32(buf[16:20]))),
		Urp:     types.UndoRecPtr(binary.LittleEndian.Uint64(buf[20:28])),
	}

	pos := HeaderSize
	switch lr.Type {
	case INSERT, DELETE:
		lr.RID = readRID(buf, pos)
		pos += ridSize
		lr.Tuple, pos = readBytesWithLen(buf, pos)
	case INPLACE_UPDATE:
		lr.RID = readRID(buf, pos)
		pos += ridSize
		lr.Old, pos = readBytesWithLen(buf, pos)
		lr.New, pos = readBytesWithLen(buf, pos)
	case UPDATE:
		lr.RID = readRID(buf, pos)
		pos += ridSize
		lr.NewRID = readRID(buf, pos)
		pos += ridSize
		lr.NewUrp = types.UndoRecPtr(binary.LittleEndian.Uint64(buf[pos : pos+8]))
		pos += 8
		lr.Old, pos = readBytesWithLen(buf, pos)
		lr.PrefixLen = uint16(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		lr.SuffixLen = uint16(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		lr.Delta, pos = readBytesWithLen(buf, pos)
	case MULTI_INSERT:
		n := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		lr.Tuples = make([]TupleAtRID, n)
		for i := uint32(0); i < n; i++ {
			rid := readRID(buf, pos)
			pos += ridSize
			var data []byte
			data, pos = readBytesWithLen(buf, pos)
			lr.Tuples[i] = TupleAtRID{RID: rid, Data: data}
		}
		rn := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		lr.Ranges = make([]Range, rn)
		for i := uint32(0); i < rn; i++ {
			start := binary.LittleEndian.Uint16(buf[pos : pos+2])
			count := binary.LittleEndian.Uint16(buf[pos+2 : pos+4])
			lr.Ranges[i] = Range{StartOffset: start, Count: count}
			pos += 4
		}
	case LOCK, CLEAN, UNUSED, CONFIRM, FREEZE_SLOT, INVALIDATE_SLOT:
		lr.PageID = types.PageID(int32(binary.LittleEndian.Uint32(buf[pos : pos+4])))
		lr.Slot = binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
	}

	return lr, true
}

func readRID(buf []byte, pos uint32) page.RID {
	pageID := types.PageID(int32(binary.LittleEndian.Uint32(buf[pos : pos+4])))
	slot := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
	return page.NewRID(pageID, slot)
}

func readBytesWithLen(buf []byte, pos uint32) ([]byte, uint32) {
	n := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += 4
	data := make([]byte, n)
	copy(data, buf[pos:pos+n])
	return data, pos + n
}
