// this code is new; it follows the identifier-type convention set by
// page_id.go / txn_id.go / lsn.go in https://github.com/ryogrid/SamehadaDB
// (distinct integer type + Serialize/NewXFromBytes pair).

package types

import (
	"bytes"
	"encoding/binary"
)

// UndoRecPtr is the 64-bit address of an undo record: the top 24 bits are
// the log number, the low 40 bits are the byte offset within that log.
type UndoRecPtr uint64

const (
	undoLogNoBits  = 24
	undoOffsetBits = 40
	undoOffsetMask = (uint64(1) << undoOffsetBits) - 1
)

// InvalidUndoRecPtr is the sentinel returned by fetches/allocations that
// find nothing.
const InvalidUndoRecPtr = UndoRecPtr(0)

// SpecialUndoRecPtr marks a transaction-chain head record's "next" field
// before it has been patched by the following transaction.
const SpecialUndoRecPtr = UndoRecPtr(^uint64(0))

// MakeUndoRecPtr packs a log number and an in-log offset into a pointer.
func MakeUndoRecPtr(logNo uint32, offset uint64) UndoRecPtr {
	return UndoRecPtr((uint64(logNo) << undoOffsetBits) | (offset & undoOffsetMask))
}

// LogNo returns the log number component.
func (p UndoRecPtr) LogNo() uint32 {
	return uint32(uint64(p) >> undoOffsetBits)
}

// Offset returns the in-log byte offset component.
func (p UndoRecPtr) Offset() uint64 {
	return uint64(p) & undoOffsetMask
}

func (p UndoRecPtr) IsValid() bool {
	return p != InvalidUndoRecPtr && p != SpecialUndoRecPtr
}

func (p UndoRecPtr) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint64(p))
	return buf.Bytes()
}

func NewUndoRecPtrFromBytes(data []byte) (ret UndoRecPtr) {
	var raw uint64
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw)
	return UndoRecPtr(raw)
}
