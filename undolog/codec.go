// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import (
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
)

// SerialiseState is the per-record workspace InsertUndoRecord keeps in file
// scope statics (work_hdr/work_rd/work_blk/work_txn/work_payload); here it is
// owned by the caller (one per in-flight prepared record) instead of shared
// globally, so concurrent writers on different logs never collide.
type SerialiseState struct {
	work workHeader
}

// Serialise writes as much of rec as fits starting at byte startingByte of
// pg, resuming a record that didn't fit on an earlier page. alreadyWritten
// counts bytes emitted to previous pages; it is updated in place. Returns
// true once the whole record has been written.
func Serialise(rec *UnpackedUndoRecord, st *SerialiseState, pg []byte, startingByte int, alreadyWritten *int) bool {
	if rec.Info == 0 {
		rec.SetInfo()
	}

	writePos := startingByte
	endPos := len(pg)
	myWritten := 0

	if *alreadyWritten == 0 {
		st.work = captureWorkHeader(rec)
	} else {
		st.work.assertUnchanged(rec)
	}

	fields := [][]byte{st.work.encodeHeader()}
	if rec.Info&InfoRelationDetails != 0 {
		fields = append(fields, st.work.encodeRelationDetails())
	}
	if rec.Info&InfoBlock != 0 {
		fields = append(fields, st.work.encodeBlock())
	}
	if rec.Info&InfoTransaction != 0 {
		fields = append(fields, st.work.encodeTransaction())
	}
	if rec.Info&InfoPayload != 0 {
		fields = append(fields, st.work.encodePayloadHeader())
		fields = append(fields, rec.Payload)
		if rec.Tuple != nil {
			fields = append(fields, rec.Tuple.Data())
		}
	}

	for _, field := range fields {
		fieldWritten := skipAlready(len(field), myWritten, alreadyWritten)
		if !insertUndoBytes(field[fieldWritten:], pg, &writePos, endPos, alreadyWritten) {
			return false
		}
		myWritten += len(field)
	}
	return true
}

// skipAlready returns how much of a field of length n was already emitted
// to earlier pages, given the record's running total (alreadyWritten) and
// the sum of prior fields' lengths (priorTotal).
func skipAlready(n, priorTotal int, alreadyWritten *int) int {
	consumed := *alreadyWritten - priorTotal
	if consumed < 0 {
		consumed = 0
	}
	if consumed > n {
		consumed = n
	}
	return consumed
}

// insertUndoBytes copies as much of src as fits before pg ends, advancing
// writePos and the record's running alreadyWritten counter; false means the
// page ran out before src was fully written (InsertUndoBytes).
func insertUndoBytes(src []byte, pg []byte, writePos *int, endPos int, alreadyWritten *int) bool {
	if len(src) == 0 {
		return true
	}
	spaceLeft := endPos - *writePos
	if spaceLeft <= 0 {
		return false
	}
	n := len(src)
	if n > spaceLeft {
		n = spaceLeft
	}
	copy(pg[*writePos:*writePos+n], src[:n])
	*writePos += n
	*alreadyWritten += n
	return n == len(src)
}

// readUndoBytes is the read-side analogue of insertUndoBytes (ReadUndoBytes).
func readUndoBytes(dst []byte, pg []byte, readPos *int, endPos int, alreadyRead *int) bool {
	if len(dst) == 0 {
		return true
	}
	spaceLeft := endPos - *readPos
	if spaceLeft <= 0 {
		return false
	}
	n := len(dst)
	if n > spaceLeft {
		n = spaceLeft
	}
	copy(dst[:n], pg[*readPos:*readPos+n])
	*readPos += n
	*alreadyRead += n
	return n == len(dst)
}

// DeserialiseState retains partially-read field bytes between resumption
// calls to Deserialise.
type DeserialiseState struct {
	hdr      [sizeOfHeader]byte
	rd       [sizeOfRelationDetails]byte
	blk      [sizeOfBlock]byte
	txn      [sizeOfTransaction]byte
	ph       [sizeOfPayloadHeader]byte
	payload  []byte
	tupleBuf []byte
}

// Deserialise reads as much of a record as is present starting at
// startingByte of pg, resuming into rec across page boundaries exactly the
// way Serialise resumes writing it.
func Deserialise(rec *UnpackedUndoRecord, st *DeserialiseState, pg []byte, startingByte int, alreadyRead *int) bool {
	readPos := startingByte
	endPos := len(pg)
	total := 0

	step := func(dst []byte) bool {
		consumed := skipAlready(len(dst), total, alreadyRead)
		ok := readUndoBytes(dst[consumed:], pg, &readPos, endPos, alreadyRead)
		total += len(dst)
		return ok
	}

	if !step(st.hdr[:]) {
		return false
	}
	decodeHeader(rec, st.hdr[:])

	if rec.Info&InfoRelationDetails != 0 {
		if !step(st.rd[:]) {
			return false
		}
		decodeRelationDetails(rec, st.rd[:])
	}
	if rec.Info&InfoBlock != 0 {
		if !step(st.blk[:]) {
			return false
		}
		decodeBlock(rec, st.blk[:])
	}
	if rec.Info&InfoTransaction != 0 {
		if !step(st.txn[:]) {
			return false
		}
		decodeTransaction(rec, st.txn[:])
	}
	if rec.Info&InfoPayload != 0 {
		if !step(st.ph[:]) {
			return false
		}
		payloadLen, tupleLen := decodePayloadHeader(st.ph[:])
		if st.payload == nil {
			st.payload = make([]byte, payloadLen)
		}
		if st.tupleBuf == nil {
			st.tupleBuf = make([]byte, tupleLen)
		}
		if !step(st.payload) {
			return false
		}
		rec.Payload = st.payload
		if !step(st.tupleBuf) {
			return false
		}
		if tupleLen > 0 {
			rec.Tuple = tuple.NewTuple(st.tupleBuf)
		}
	}
	return true
}

func decodeHeader(rec *UnpackedUndoRecord, b []byte) {
	rec.Type = RecordType(b[0])
	rec.Info = Info(b[1])
	rec.Prevlen = types.NewUint16FromBytes(b[2:4])
	rec.RelFileNode = uint32(types.NewUInt32FromBytes(b[4:8]))
	rec.PrevXid = types.NewTxnIDFromBytes(b[8:12])
	rec.Xid = types.NewTxnIDFromBytes(b[12:16])
	rec.Cid = uint32(types.NewUInt32FromBytes(b[16:20]))
}

func decodeRelationDetails(rec *UnpackedUndoRecord, b []byte) {
	rec.Tsid = uint32(types.NewUInt32FromBytes(b[0:4]))
	rec.Fork = types.NewUint16FromBytes(b[4:6])
}

func decodeBlock(rec *UnpackedUndoRecord, b []byte) {
	rec.Blkprev = types.NewUndoRecPtrFromBytes(b[0:8])
	rec.Block = types.NewPageIDFromBytes(b[8:12])
	rec.Offset = types.NewUint16FromBytes(b[12:14])
}

func decodeTransaction(rec *UnpackedUndoRecord, b []byte) {
	rec.Next = types.NewUndoRecPtrFromBytes(b[0:8])
	rec.XidEpoch = types.NewXactEpochFromBytes(b[8:12])
}

func decodePayloadHeader(b []byte) (payloadLen, tupleLen int) {
	payloadLen = int(int32(uint32(types.NewUInt32FromBytes(b[0:4]))))
	tupleLen = int(int32(uint32(types.NewUInt32FromBytes(b[4:8]))))
	return
}

// Release drops a record's payload and tuple slices. Deserialise copies
// payload and tuple bytes into fresh allocations whether the record lies on
// one page or spans several; no record references pg directly.
func Release(rec *UnpackedUndoRecord) {
	rec.Payload = nil
	rec.Tuple = nil
}
