// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

// Package undolog implements the undo log subsystem: registry, allocator,
// record codec, prepared-undo staging, transaction chain maintenance and
// fetch/scan, the way SamehadaDB's recovery/storage packages implement their
// slotted-page WAL analogues, generalized to PostgreSQL-style undo framing.
package undolog

import (
	"bytes"
	"encoding/binary"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
)

// RecordType is uur_type.
type RecordType uint8

const (
	UNDO_INSERT RecordType = iota
	UNDO_DELETE
	UNDO_INPLACE_UPDATE
	UNDO_UPDATE
	UNDO_MULTI_INSERT
	UNDO_XID_LOCK_ONLY
	UNDO_XID_MULTI_LOCK_ONLY
	UNDO_ITEMID_UNUSED
)

// Info bits, in the order the codec serialises the optional blocks they gate
type Info uint8

const (
	InfoRelationDetails Info = 1 << iota
	InfoBlock
	InfoTransaction
	InfoPayload
)

// SpecialUndoRecPtr marks an as-yet-unpatched transaction chain head
const SpecialUndoRecPtr = types.SpecialUndoRecPtr

// Fixed-width wire sizes of each optional sub-header, mirroring
// SizeOfUndoRecordHeader/RelationDetails/Block/Transaction/Payload.
const (
	sizeOfHeader             = 1 + 1 + 2 + 4 + 4 + 4 + 4 // type, info, prevlen, relfilenode, prevxid, xid, cid
	sizeOfRelationDetails    = 4 + 2                      // tsid, fork
	sizeOfBlock              = 8 + 4 + 2                  // blkprev, block, offset
	sizeOfTransaction        = 8 + 4                      // next, xid_epoch
	sizeOfPayloadHeader      = 4 + 4                      // payload len, tuple len
)

// UnpackedUndoRecord is the in-memory form produced/consumed by callers.
// Fields are grouped exactly like the info bits that gate their presence
// on the wire.
type UnpackedUndoRecord struct {
	// Header, always present.
	Type        RecordType
	Info        Info
	Prevlen     uint16
	RelFileNode uint32
	PrevXid     types.TxnID
	Xid         types.TxnID
	Cid         uint32

	// RelationDetails.
	Tsid uint32
	Fork uint16

	// Block.
	Blkprev types.UndoRecPtr
	Block   types.PageID
	Offset  uint16

	// Transaction.
	Next     types.UndoRecPtr
	XidEpoch types.XactEpoch

	// Payload.
	Payload []byte
	Tuple   *tuple.Tuple
}

// hasRelationDetails reports whether this record needs a non-default
// tablespace/fork sub-header.
func (u *UnpackedUndoRecord) hasRelationDetails() bool {
	return u.Tsid != 0 || u.Fork != 0
}

func (u *UnpackedUndoRecord) hasBlock() bool {
	return u.Block != types.InvalidPageID
}

func (u *UnpackedUndoRecord) hasTransaction() bool {
	return u.Next.IsValid() || u.Next == SpecialUndoRecPtr
}

func (u *UnpackedUndoRecord) hasPayload() bool {
	return len(u.Payload) > 0 || (u.Tuple != nil && u.Tuple.Size() > 0)
}

// SetInfo derives Info from which optional fields are populated
func (u *UnpackedUndoRecord) SetInfo() {
	var info Info
	if u.hasRelationDetails() {
		info |= InfoRelationDetails
	}
	if u.hasBlock() {
		info |= InfoBlock
	}
	if u.hasTransaction() {
		info |= InfoTransaction
	}
	if u.hasPayload() {
		info |= InfoPayload
	}
	u.Info = info
}

// ExpectedSize is a pure function of the populated fields: its result
// always equals the number of bytes the allocator advances the log's
// insert pointer by when this record is appended.
func (u *UnpackedUndoRecord) ExpectedSize() int {
	u.SetInfo()
	size := sizeOfHeader
	if u.Info&InfoRelationDetails != 0 {
		size += sizeOfRelationDetails
	}
	if u.Info&InfoBlock != 0 {
		size += sizeOfBlock
	}
	if u.Info&InfoTransaction != 0 {
		size += sizeOfTransaction
	}
	if u.Info&InfoPayload != 0 {
		size += sizeOfPayloadHeader
		size += len(u.Payload)
		if u.Tuple != nil {
			size += int(u.Tuple.Size())
		}
	}
	return size
}

// workHeader is the stable, pre-converted wire image of the header block,
// captured on the first Serialise call for a record and asserted unchanged
// on every resumption call.
type workHeader struct {
	typ         RecordType
	info        Info
	prevlen     uint16
	relfilenode uint32
	prevxid     types.TxnID
	xid         types.TxnID
	cid         uint32

	tsid uint32
	fork uint16

	blkprev types.UndoRecPtr
	block   types.PageID
	offset  uint16

	next     types.UndoRecPtr
	xidEpoch types.XactEpoch

	payloadLen int
	tupleLen   int
}

func captureWorkHeader(u *UnpackedUndoRecord) workHeader {
	tupleLen := 0
	if u.Tuple != nil {
		tupleLen = int(u.Tuple.Size())
	}
	return workHeader{
		typ: u.Type, info: u.Info, prevlen: u.Prevlen, relfilenode: u.RelFileNode,
		prevxid: u.PrevXid, xid: u.Xid, cid: u.Cid,
		tsid: u.Tsid, fork: u.Fork,
		blkprev: u.Blkprev, block: u.Block, offset: u.Offset,
		next: u.Next, xidEpoch: u.XidEpoch,
		payloadLen: len(u.Payload), tupleLen: tupleLen,
	}
}

// assertUnchanged mirrors InsertUndoRecord's Assert block on resumption:
// a caller that mutates the record between Serialise calls has violated
// the InvariantAssertion error class.
func (w workHeader) assertUnchanged(u *UnpackedUndoRecord) {
	tupleLen := 0
	if u.Tuple != nil {
		tupleLen = int(u.Tuple.Size())
	}
	common.SH_Assert(w.typ == u.Type, "undo record type changed mid-serialise")
	common.SH_Assert(w.info == u.Info, "undo record info changed mid-serialise")
	common.SH_Assert(w.prevlen == u.Prevlen, "undo record prevlen changed mid-serialise")
	common.SH_Assert(w.relfilenode == u.RelFileNode, "undo record relfilenode changed mid-serialise")
	common.SH_Assert(w.xid == u.Xid, "undo record xid changed mid-serialise")
	common.SH_Assert(w.blkprev == u.Blkprev, "undo record blkprev changed mid-serialise")
	common.SH_Assert(w.block == u.Block, "undo record block changed mid-serialise")
	common.SH_Assert(w.next == u.Next, "undo record next changed mid-serialise")
	common.SH_Assert(w.payloadLen == len(u.Payload), "undo record payload len changed mid-serialise")
	common.SH_Assert(w.tupleLen == tupleLen, "undo record tuple len changed mid-serialise")
}

func (w workHeader) encodeHeader() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(w.typ))
	buf.WriteByte(byte(w.info))
	binary.Write(&buf, binary.LittleEndian, w.prevlen)
	binary.Write(&buf, binary.LittleEndian, w.relfilenode)
	binary.Write(&buf, binary.LittleEndian, int32(w.prevxid))
	binary.Write(&buf, binary.LittleEndian, int32(w.xid))
	binary.Write(&buf, binary.LittleEndian, w.cid)
	return buf.Bytes()
}

func (w workHeader) encodeRelationDetails() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, w.tsid)
	binary.Write(&buf, binary.LittleEndian, w.fork)
	return buf.Bytes()
}

func (w workHeader) encodeBlock() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(w.blkprev))
	binary.Write(&buf, binary.LittleEndian, int32(w.block))
	binary.Write(&buf, binary.LittleEndian, w.offset)
	return buf.Bytes()
}

func (w workHeader) encodeTransaction() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(w.next))
	binary.Write(&buf, binary.LittleEndian, uint32(w.xidEpoch))
	return buf.Bytes()
}

func (w workHeader) encodePayloadHeader() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(w.payloadLen))
	binary.Write(&buf, binary.LittleEndian, int32(w.tupleLen))
	return buf.Bytes()
}
