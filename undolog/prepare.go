// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import (
	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/access"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// defaultMaxPreparedUndo mirrors MAX_PREPARED_UNDO: the built-in capacity of
// the staging arrays before SetPrepareSize grows them.
const defaultMaxPreparedUndo = 2

// maxBufferPerUndo mirrors MAX_BUFFER_PER_UNDO: an undo record spans at most
// two buffers (it never needs a third page).
const maxBufferPerUndo = 2

// preparedUndo is one staged-but-not-yet-inserted record (PreparedUndoSpace).
type preparedUndo struct {
	urp     types.UndoRecPtr
	rec     *UnpackedUndoRecord
	log     *UndoLog
	bufIdx  [maxBufferPerUndo]int
	nBuf    int
	// scheduleUpdateTransInfo is set when this record starts a new top
	// transaction whose predecessor's "next" field must be patched
	scheduleUpdateTransInfo bool
	prevXactUrp             types.UndoRecPtr
}

// undoBuffer is one pinned page backing a prepared record, addressed by
// block number the way InsertFindBufferSlot deduplicates pins.
type undoBuffer struct {
	block uint64 // undo-log-relative block number (offset / PageSize)
	pg    *page.Page
	pgID  types.PageID
}

// Staging is the per-session two-phase prepare/insert builder. It owns
// pinned buffers and staged records between PrepareUndoInsert and
// InsertPreparedUndo/UnlockReleaseUndoBuffers, releasing pins on any exit
// path; it must not be copied by value, always used through a pointer.
type Staging struct {
	bpm       *buffer.BufferPoolManager
	allocator *Allocator

	maxPrepared int
	prepared    []preparedUndo
	buffers     []undoBuffer

	// prevTxid[persistence] is the last top transaction id this session
	// inserted a record for, used to detect "first record of transaction"
	// without consulting the log.
	prevTxid map[types.Persistence]types.TxnID

	// locked is set once InsertPreparedUndo has latched s.buffers
	locked bool
}

func NewStaging(bpm *buffer.BufferPoolManager, allocator *Allocator) *Staging {
	return &Staging{
		bpm:         bpm,
		allocator:   allocator,
		maxPrepared: defaultMaxPreparedUndo,
		prevTxid:    make(map[types.Persistence]types.TxnID),
	}
}

// SetPrepareSize enlarges the staging capacity when more than the default
// number of records will be prepared before the next InsertPreparedUndo
func (s *Staging) SetPrepareSize(n int) {
	if n > s.maxPrepared {
		s.maxPrepared = n
	}
}

// isFirstRecOfTransaction implements step 1's two detection modes: the
// in-memory prevTxid table during normal operation, or the transaction's
// own bookkeeping during replay (IsTransactionFirstRec).
func (s *Staging) isFirstRecOfTransaction(txn *access.Transaction, l *UndoLog, persistence types.Persistence) bool {
	if txn.IsRecoveryPhase() {
		return txn.IsFirstUndoRecord(persistence)
	}
	prev, ok := s.prevTxid[persistence]
	return !ok || prev != txn.GetTransactionId()
}

// PrepareUndoInsert runs outside the WAL critical section: it pins buffers
// and reserves address space (both of which may fail) but writes no bytes.
func (s *Staging) PrepareUndoInsert(rec *UnpackedUndoRecord, l *UndoLog, txn *access.Transaction) (types.UndoRecPtr, *CheckpointSnapshot, error) {
	if len(s.prepared) >= s.maxPrepared {
		return types.InvalidUndoRecPtr, nil, ErrOutOfAddressSpace
	}

	persistence := l.Persistence()
	rec.Xid = txn.GetTransactionId()
	rec.XidEpoch = txn.GetEpoch()

	// Step 1: first record of this top transaction on this log?
	firstRec := s.isFirstRecOfTransaction(txn, l, persistence)
	if firstRec {
		rec.Next = SpecialUndoRecPtr
	}

	// Step 2: compute expected size and allocate.
	size := rec.ExpectedSize()
	needMeta := firstRec
	urp, meta, err := s.allocator.Allocate(l, size, needMeta)
	if err != nil {
		return types.InvalidUndoRecPtr, nil, err
	}

	// Step 3: subtransaction rollback may have unwound the whole
	// transaction, landing the new insert offset back on last_xact_start;
	// if so this is retroactively this transaction's first record too, and
	// the bytes its transaction header adds are reserved right after the
	// first reservation.
	l.mutex.Lock()
	lastXactStart := l.lastXactStart
	l.mutex.Unlock()
	if urp.Offset() == lastXactStart && !firstRec {
		firstRec = true
		rec.Next = SpecialUndoRecPtr
		newSize := rec.ExpectedSize()
		if _, _, err := s.allocator.Allocate(l, newSize-size, false); err != nil {
			return types.InvalidUndoRecPtr, nil, err
		}
		size = newSize
	}

	p := preparedUndo{urp: urp, rec: rec, log: l}

	// Step 4: if this starts a new transaction chain, there is a real
	// predecessor (not this log's very first transaction), and that
	// predecessor hasn't already been discarded, schedule UpdateTransInfo.
	hasPredecessor := firstRec && lastXactStart != 0 && lastXactStart != urp.Offset()
	if hasPredecessor {
		prevXactUrp := types.MakeUndoRecPtr(l.LogNo(), lastXactStart)
		if PrepareUndoRecordUpdateTransInfo(l, prevXactUrp) {
			p.scheduleUpdateTransInfo = true
			p.prevXactUrp = prevXactUrp
		}
	}

	// Step 5: update last_xact_start.
	if firstRec {
		l.mutex.Lock()
		l.lastXactStart = urp.Offset()
		l.mutex.Unlock()
		txn.SetStartUndoRecPtr(persistence, urp)
	}
	txn.SetLatestUndoRecPtr(persistence, urp)
	s.prevTxid[persistence] = txn.GetTransactionId()

	// Step 6: pin every page the record spans and remember them.
	nBuf, err := s.pinRecordPages(&p, urp, size)
	if err != nil {
		return types.InvalidUndoRecPtr, nil, err
	}
	p.nBuf = nBuf

	s.prepared = append(s.prepared, p)
	return urp, meta, nil
}

func (s *Staging) pinRecordPages(p *preparedUndo, urp types.UndoRecPtr, size int) (int, error) {
	startBlock := urp.Offset() / common.PageSize
	endOffset := urp.Offset() + uint64(size) - 1
	endBlock := endOffset / common.PageSize

	n := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		idx := s.findOrPinBuffer(p.log.LogNo(), blk)
		p.bufIdx[n] = idx
		n++
		if n >= maxBufferPerUndo {
			break
		}
	}
	return n, nil
}

// findOrPinBuffer returns the index into s.buffers for (logNo, block),
// pinning a fresh page if it isn't already held (InsertFindBufferSlot).
func (s *Staging) findOrPinBuffer(logNo uint32, block uint64) int {
	for i, b := range s.buffers {
		if b.block == block {
			return i
		}
	}
	pgID := undoPageID(logNo, block)
	pg := s.bpm.FetchPage(pgID)
	if pg == nil {
		pg = s.bpm.NewPageWithID(pgID)
	}
	s.buffers = append(s.buffers, undoBuffer{block: block, pg: pg, pgID: pgID})
	return len(s.buffers) - 1
}

// undoPageID maps an undo-log-relative block number to a PageID in the
// shared buffer pool's id space, distinct per log so two logs' block 0
// never collide, and marked so the buffer pool routes it through the
// undo segment files rather than the data file.
func undoPageID(logNo uint32, block uint64) types.PageID {
	return types.NewUndoPageID(logNo, block)
}

// InsertPreparedUndo runs inside the WAL critical section: it locks every
// pinned buffer in pin order, serialises the staged records, marks pages
// dirty, and applies any scheduled transaction-chain patch
func (s *Staging) InsertPreparedUndo() {
	for i := range s.buffers {
		s.buffers[i].pg.WLatch()
	}
	s.locked = true

	for i := range s.prepared {
		p := &s.prepared[i]

		p.log.mutex.Lock()
		p.rec.Prevlen = p.log.prevlen
		startsAtPageBoundary := p.urp.Offset()%common.PageSize == 0
		p.log.mutex.Unlock()
		if startsAtPageBoundary {
			// Starting at a page boundary: include the page header in
			// prevlen so PrevRecordPointer still lands on a real record
			// byte rather than inside the header.
			p.rec.Prevlen += page_HDR
		}

		st := &SerialiseState{}
		written := 0
		offset := int(p.urp.Offset() % common.PageSize)
		for bi := 0; bi < p.nBuf; bi++ {
			b := &s.buffers[p.bufIdx[bi]]
			done := Serialise(p.rec, st, b.pg.Data()[:], offset, &written)
			b.pg.SetIsDirty(true)
			if done {
				break
			}
			offset = page_HDR
		}

		size := p.rec.ExpectedSize()
		p.log.mutex.Lock()
		p.log.prevlen = uint16(size)
		p.log.mutex.Unlock()

		if p.scheduleUpdateTransInfo {
			s.UndoRecordUpdateTransInfo(p)
		}
	}
}

// UndoRecordUpdateTransInfo writes the new transaction's urp across the
// previous transaction's "next" field inside the critical section.
func (s *Staging) UndoRecordUpdateTransInfo(p *preparedUndo) {
	if p.log.Persistence() == types.TEMP {
		// TEMP logs short-circuit: other sessions can't read these
		// buffers, so the chain is pointless.
		return
	}

	fieldOffset, buf, ok := s.locatePrevNextField(p)
	if !ok {
		return
	}
	buf.pg.Copy(uint32(fieldOffset), p.urp.Serialize())
	buf.pg.SetIsDirty(true)
}

// locatePrevNextField re-reads the previous transaction's header to find
// the byte offset of its "next" field, pinning and latching whatever buffer
// holds it. Real PostgreSQL schedules this during
// PrepareUndoRecordUpdateTransInfo before the critical section; here it is
// folded into InsertPreparedUndo. The discard check happens at prepare time
// in PrepareUndoRecordUpdateTransInfo; the patch itself is written without
// holding the discard-lock.
func (s *Staging) locatePrevNextField(p *preparedUndo) (int, *undoBuffer, bool) {
	block := p.prevXactUrp.Offset() / common.PageSize
	pgID := undoPageID(p.log.LogNo(), block)

	idx := -1
	for i, b := range s.buffers {
		if b.pgID == pgID {
			idx = i
			break
		}
	}
	if idx == -1 {
		pg := s.bpm.FetchPage(pgID)
		if pg == nil {
			return 0, nil, false
		}
		pg.WLatch()
		s.buffers = append(s.buffers, undoBuffer{block: block, pg: pg, pgID: pgID})
		idx = len(s.buffers) - 1
	}

	var prev UnpackedUndoRecord
	inPageOffset := int(p.prevXactUrp.Offset() % common.PageSize)
	st := &DeserialiseState{}
	read := 0
	Deserialise(&prev, st, s.buffers[idx].pg.Data()[:], inPageOffset, &read)

	nextFieldOffset := inPageOffset + sizeOfHeader
	if prev.Info&InfoRelationDetails != 0 {
		nextFieldOffset += sizeOfRelationDetails
	}
	if prev.Info&InfoBlock != 0 {
		nextFieldOffset += sizeOfBlock
	}
	return nextFieldOffset, &s.buffers[idx], true
}

// UnlockReleaseUndoBuffers releases the latches InsertPreparedUndo took (if
// it ran) and every pin, resets staging, and shrinks over-sized arrays back
// to defaults.
func (s *Staging) UnlockReleaseUndoBuffers() {
	for i := range s.buffers {
		if s.locked {
			s.buffers[i].pg.WUnlatch()
		}
		s.bpm.UnpinPage(s.buffers[i].pgID, s.buffers[i].pg.IsDirty())
	}
	s.locked = false
	s.buffers = nil
	s.prepared = nil
	if s.maxPrepared > defaultMaxPreparedUndo {
		s.maxPrepared = defaultMaxPreparedUndo
	}
}
