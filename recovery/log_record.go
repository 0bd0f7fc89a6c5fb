// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/recovery/log_record.go
// there is license and copyright notice in licenses/SamehadaDB dir

package recovery

import (
	"bytes"
	"encoding/binary"

	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// HeaderSize is the fixed-size prefix every log record carries.
const HeaderSize uint32 = 28

type LogRecordType int32

const (
	INVALID LogRecordType = iota
	BEGIN
	COMMIT
	ABORT
	INSERT
	DELETE
	INPLACE_UPDATE
	UPDATE
	MULTI_INSERT
	LOCK
	CLEAN
	UNUSED
	CONFIRM
	FREEZE_SLOT
	INVALIDATE_SLOT
	GRACEFUL_SHUTDOWN
)

// LogRecord is the WAL representation of one data-page operation. Every
// operation record embeds the UndoRecPtr that undolog.PrepareUndoInsert
// must hand back during redo, so replay can assert the recreated urp
// equals the one recorded here.
//
//	----------------------------------------------------------------
//	| size(4) | LSN(4) | txnID(4) | prevLSN(4) | type(4) | urp(8) |
//	----------------------------------------------------------------
//	| ... type-specific payload (rid / tuple bytes / page ids) ... |
//	----------------------------------------------------------------
type LogRecord struct {
	Size    uint32
	Lsn     types.LSN
	TxnID   types.TxnID
	PrevLsn types.LSN
	Type    LogRecordType
	Urp     types.UndoRecPtr

	RID    page.RID
	Tuple  []byte // for INSERT/DELETE
	Old    []byte // for INPLACE_UPDATE (full old tuple) and UPDATE (old tuple, also the source of UPDATE's shared prefix/suffix)
	New    []byte // for INPLACE_UPDATE (full new tuple)

	// UPDATE (non-in-place): the old tuple lives at RID/Urp, the new one at
	// NewRID/NewUrp. New is never carried whole; it is rebuilt from Old's
	// PrefixLen/SuffixLen-length ends and the Delta bytes in between, the
	// same prefix/suffix compression zheap's update path performs before
	// writing its WAL record.
	NewRID    page.RID
	NewUrp    types.UndoRecPtr
	PrefixLen uint16
	SuffixLen uint16
	Delta     []byte

	Tuples []TupleAtRID // for MULTI_INSERT: every inserted tuple, in offset order
	Ranges []Range      // for MULTI_INSERT: the declared contiguous offset ranges Tuples was inserted in

	PageID types.PageID // for CLEAN/CONFIRM/FREEZE_SLOT/INVALIDATE_SLOT
	Slot   uint32
}

type TupleAtRID struct {
	RID  page.RID
	Data []byte
}

// Range names one contiguous run of slot offsets a MULTI_INSERT filled in a
// single page, mirroring zheap's multi-insert undo record layout: one undo
// record per range rather than per tuple or per batch.
type Range struct {
	StartOffset uint16
	Count       uint16
}

func NewLogRecordTxn(txnID types.TxnID, prevLsn types.LSN, t LogRecordType) *LogRecord {
	return &LogRecord{Size: HeaderSize, TxnID: txnID, PrevLsn: prevLsn, Type: t}
}

func NewLogRecordInsert(txnID types.TxnID, prevLsn types.LSN, urp types.UndoRecPtr, rid page.RID, tup []byte) *LogRecord {
	r := &LogRecord{TxnID: txnID, PrevLsn: prevLsn, Type: INSERT, Urp: urp, RID: rid, Tuple: tup}
	r.Size = HeaderSize + ridSize + 4 + uint32(len(tup))
	return r
}

func NewLogRecordDelete(txnID types.TxnID, prevLsn types.LSN, urp types.UndoRecPtr, rid page.RID, tup []byte) *LogRecord {
	r := &LogRecord{TxnID: txnID, PrevLsn: prevLsn, Type: DELETE, Urp: urp, RID: rid, Tuple: tup}
	r.Size = HeaderSize + ridSize + 4 + uint32(len(tup))
	return r
}

func NewLogRecordInplaceUpdate(txnID types.TxnID, prevLsn types.LSN, urp types.UndoRecPtr, rid page.RID, old, new_ []byte) *LogRecord {
	r := &LogRecord{TxnID: txnID, PrevLsn: prevLsn, Type: INPLACE_UPDATE, Urp: urp, RID: rid, Old: old, New: new_}
	r.Size = HeaderSize + ridSize + 8 + uint32(len(old)) + uint32(len(new_))
	return r
}

// NewLogRecordUpdate builds a non-in-place UPDATE record. urp addresses the
// delete-half undo record this record's redo will insert against oldRID's
// page; newUrp addresses the insert-half undo record against newRID's page
// (the same page when the new tuple happens to fit there, a different one
// when it doesn't). old and new_ are the full tuple bytes at DO time; only
// old and the delta outside their shared prefix/suffix are kept.
func NewLogRecordUpdate(txnID types.TxnID, prevLsn types.LSN, urp, newUrp types.UndoRecPtr, oldRID, newRID page.RID, old, new_ []byte) *LogRecord {
	prefixLen, suffixLen := commonPrefixSuffix(old, new_)
	delta := append([]byte{}, new_[prefixLen:len(new_)-int(suffixLen)]...)
	r := &LogRecord{
		TxnID: txnID, PrevLsn: prevLsn, Type: UPDATE, Urp: urp,
		RID: oldRID, NewRID: newRID, NewUrp: newUrp, Old: old,
		PrefixLen: uint16(prefixLen), SuffixLen: uint16(suffixLen), Delta: delta,
	}
	r.Size = HeaderSize + ridSize*2 + 8 + 4 + uint32(len(old)) + 4 + 4 + 4 + uint32(len(delta))
	return r
}

// commonPrefixSuffix returns the length of the longest byte run old and
// new_ share at the start and, independently, at the end (the two runs
// never overlap), the same split zheap's update path uses to avoid logging
// a whole new tuple when only its middle changed.
func commonPrefixSuffix(old, new_ []byte) (prefixLen, suffixLen int) {
	n := len(old)
	if len(new_) < n {
		n = len(new_)
	}
	for prefixLen < n && old[prefixLen] == new_[prefixLen] {
		prefixLen++
	}
	maxSuffix := n - prefixLen
	for suffixLen < maxSuffix && old[len(old)-1-suffixLen] == new_[len(new_)-1-suffixLen] {
		suffixLen++
	}
	return prefixLen, suffixLen
}

// ReconstructNew rebuilds the post-update tuple bytes from the old tuple's
// shared prefix/suffix and the stored delta, the inverse of the split
// NewLogRecordUpdate performs at DO time.
func (lr *LogRecord) ReconstructNew() []byte {
	prefix := lr.Old[:lr.PrefixLen]
	suffix := lr.Old[len(lr.Old)-int(lr.SuffixLen):]
	out := make([]byte, 0, len(prefix)+len(lr.Delta)+len(suffix))
	out = append(out, prefix...)
	out = append(out, lr.Delta...)
	out = append(out, suffix...)
	return out
}

func NewLogRecordMultiInsert(txnID types.TxnID, prevLsn types.LSN, urp types.UndoRecPtr, tuples []TupleAtRID, ranges []Range) *LogRecord {
	r := &LogRecord{TxnID: txnID, PrevLsn: prevLsn, Type: MULTI_INSERT, Urp: urp, Tuples: tuples, Ranges: ranges}
	size := HeaderSize + 4
	for _, t := range tuples {
		size += ridSize + 4 + uint32(len(t.Data))
	}
	size += 4 + uint32(len(ranges))*4
	r.Size = size
	return r
}

func NewTupleAtRID(rid page.RID, data []byte) TupleAtRID { return TupleAtRID{RID: rid, Data: data} }

func NewLogRecordSlotOp(txnID types.TxnID, prevLsn types.LSN, urp types.UndoRecPtr, t LogRecordType, pageID types.PageID, slot uint32) *LogRecord {
	r := &LogRecord{TxnID: txnID, PrevLsn: prevLsn, Type: t, Urp: urp, PageID: pageID, Slot: slot}
	r.Size = HeaderSize + 8
	return r
}

const ridSize = 8

func (lr *LogRecord) GetSize() uint32               { return lr.Size }
func (lr *LogRecord) GetLSN() types.LSN             { return lr.Lsn }
func (lr *LogRecord) GetTxnId() types.TxnID         { return lr.TxnID }
func (lr *LogRecord) GetPrevLSN() types.LSN         { return lr.PrevLsn }
func (lr *LogRecord) GetLogRecordType() LogRecordType { return lr.Type }
func (lr *LogRecord) GetUndoRecPtr() types.UndoRecPtr { return lr.Urp }

func (lr *LogRecord) GetLogHeaderData() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lr.Size)
	binary.Write(buf, binary.LittleEndian, lr.Lsn)
	binary.Write(buf, binary.LittleEndian, lr.TxnID)
	binary.Write(buf, binary.LittleEndian, lr.PrevLsn)
	binary.Write(buf, binary.LittleEndian, lr.Type)
	binary.Write(buf, binary.LittleEndian, uint64(lr.Urp))
	return buf.Bytes()
}
