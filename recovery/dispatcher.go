// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/recovery/log_recovery.go
// there is license and copyright notice in licenses/SamehadaDB dir

package recovery

import (
	"encoding/binary"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/errors"
	"github.com/skyformat99/zheap/storage/access"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
	"github.com/skyformat99/zheap/undolog"
)

// ErrUrpMismatch is the DO/REDO equality invariant violation: a handler
// re-prepared an undo record whose address doesn't match the one the
// original DO-time insert recorded in the WAL.
const ErrUrpMismatch = errors.Error("redo: recreated undo record pointer does not match WAL record")

// Dispatcher replays one WAL record at a time, driving the undo log's
// prepare/insert staging and the data page's physical mutation exactly the
// way the original DO-time path did, so a crash mid-replay leaves the same
// invariants intact.
type Dispatcher struct {
	bpm      *buffer.BufferPoolManager
	registry *undolog.Registry
	staging  *undolog.Staging
}

func NewDispatcher(bpm *buffer.BufferPoolManager, registry *undolog.Registry, staging *undolog.Staging) *Dispatcher {
	return &Dispatcher{bpm: bpm, registry: registry, staging: staging}
}

// Redo applies one log record read back from the WAL. It is idempotent in
// the sense FetchPageForRedo provides: a page whose LSN already dominates
// the record's LSN is left untouched.
func (d *Dispatcher) Redo(rec *LogRecord, persistence types.Persistence) error {
	switch rec.Type {
	case INSERT:
		return d.redoInsert(rec, persistence)
	case DELETE:
		return d.redoDelete(rec, persistence)
	case INPLACE_UPDATE:
		return d.redoInplaceUpdate(rec, persistence)
	case UPDATE:
		return d.redoUpdate(rec, persistence)
	case MULTI_INSERT:
		return d.redoMultiInsert(rec, persistence)
	case LOCK:
		return d.redoSlotOp(rec, persistence, undolog.UNDO_XID_LOCK_ONLY)
	case CLEAN:
		return d.redoClean(rec)
	case UNUSED:
		return d.redoSlotOp(rec, persistence, undolog.UNDO_ITEMID_UNUSED)
	case CONFIRM:
		return d.redoConfirm(rec)
	case FREEZE_SLOT:
		return d.redoFreezeSlot(rec)
	case INVALIDATE_SLOT:
		return d.redoInvalidateSlot(rec)
	case BEGIN, COMMIT, ABORT, GRACEFUL_SHUTDOWN:
		return nil
	default:
		return nil
	}
}

// prepareAndInsert runs the common prepare/verify/insert skeleton shared
// by every tuple-mutating opcode: build the undo record, prepare it
// against the txn's log, assert the recreated urp equals expectedUrp,
// then write it. Callers that emit more than one undo record per WAL
// record (redoUpdate's delete/insert pair, redoMultiInsert's per-range
// records) call this once per record, each against its own expected urp.
func (d *Dispatcher) prepareAndInsert(rec *LogRecord, persistence types.Persistence, uur *undolog.UnpackedUndoRecord, expectedUrp types.UndoRecPtr) error {
	l, ok := d.registry.Get(expectedUrp.LogNo())
	if !ok {
		l = d.registry.Attach(persistence, 0, int64(rec.TxnID))
	}

	txn := access.NewTransaction(rec.TxnID, 0)
	txn.SetIsRecoveryPhase(true)

	urp, _, err := d.staging.PrepareUndoInsert(uur, l, txn)
	if err != nil {
		return err
	}
	if urp != expectedUrp {
		d.staging.UnlockReleaseUndoBuffers()
		return ErrUrpMismatch
	}
	d.staging.InsertPreparedUndo()
	d.staging.UnlockReleaseUndoBuffers()
	return nil
}

// acquireAndSetTransSlot assigns rec.TxnID a transaction slot on dp, using
// the TPD overflow chain once the inline array is full, and writes urp into
// it. It returns ErrNoFreeSlot rather than silently dropping the write when
// no slot can be found or allocated.
func (d *Dispatcher) acquireAndSetTransSlot(dp *access.DataPage, txnID types.TxnID, urp types.UndoRecPtr) error {
	ref, err := access.AcquireTransSlot(d.bpm, dp, txnID)
	if err != nil {
		return err
	}
	access.SetTransSlotAt(d.bpm, dp, ref, 0, txnID, urp)
	return nil
}

func (d *Dispatcher) fetchDataPage(rid page.RID, lsn types.LSN) (*access.DataPage, buffer.RedoAction) {
	pg, action := d.bpm.FetchPageForRedo(rid.GetPageId(), lsn, false)
	if pg == nil {
		return nil, buffer.NotFound
	}
	return access.CastDataPage(pg), action
}

func (d *Dispatcher) redoInsert(rec *LogRecord, persistence types.Persistence) error {
	uur := &undolog.UnpackedUndoRecord{
		Type:   undolog.UNDO_INSERT,
		Block:  rec.RID.GetPageId(),
		Offset: uint16(rec.RID.GetSlotNum()),
	}
	if err := d.prepareAndInsert(rec, persistence, uur, rec.Urp); err != nil {
		return err
	}

	dp, action := d.fetchDataPage(rec.RID, rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.RID.GetPageId(), false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.RID.GetPageId(), true)

	dp.WLatch()
	defer dp.WUnlatch()
	if _, err := dp.InsertTuple(tuple.NewTuple(rec.Tuple)); err != nil {
		return err
	}
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.Urp); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

func (d *Dispatcher) redoDelete(rec *LogRecord, persistence types.Persistence) error {
	uur := &undolog.UnpackedUndoRecord{
		Type:   undolog.UNDO_DELETE,
		Block:  rec.RID.GetPageId(),
		Offset: uint16(rec.RID.GetSlotNum()),
		Tuple:  tuple.NewTuple(rec.Tuple),
	}
	if err := d.prepareAndInsert(rec, persistence, uur, rec.Urp); err != nil {
		return err
	}

	dp, action := d.fetchDataPage(rec.RID, rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.RID.GetPageId(), false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.RID.GetPageId(), true)

	dp.WLatch()
	defer dp.WUnlatch()
	dp.MarkDelete(rec.RID.GetSlotNum())
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.Urp); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

func (d *Dispatcher) redoInplaceUpdate(rec *LogRecord, persistence types.Persistence) error {
	uur := &undolog.UnpackedUndoRecord{
		Type:   undolog.UNDO_INPLACE_UPDATE,
		Block:  rec.RID.GetPageId(),
		Offset: uint16(rec.RID.GetSlotNum()),
		Tuple:  tuple.NewTuple(rec.Old),
	}
	if err := d.prepareAndInsert(rec, persistence, uur, rec.Urp); err != nil {
		return err
	}

	dp, action := d.fetchDataPage(rec.RID, rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.RID.GetPageId(), false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.RID.GetPageId(), true)

	dp.WLatch()
	defer dp.WUnlatch()
	dp.ApplyDelete(rec.RID.GetSlotNum())
	if _, err := dp.InsertTuple(tuple.NewTuple(rec.New)); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

// ridPayload packs a RID into the 8 bytes an UNDO_UPDATE record's Payload
// carries as its "newtid": the address a rollback needs to find and remove
// the insert half of a non-in-place update.
func ridPayload(rid page.RID) []byte {
	buf := make([]byte, ridSize)
	writeRID(buf, 0, rid)
	return buf
}

// redoUpdate is the non-in-place path: the old tuple is marked updated (not
// deleted — a reader following its item pointer still needs to find the new
// version) on its own page, and the new tuple is inserted fresh wherever it
// landed at DO time, which may or may not be the same page as the old
// tuple's. Two undo records are produced, chained the way a real
// non-in-place update chains them: UNDO_UPDATE against the old page carries
// the new tuple's RID as its payload so rollback can find and remove it;
// UNDO_INSERT against the new page is the ordinary "undo this insert"
// record redoInsert also emits.
func (d *Dispatcher) redoUpdate(rec *LogRecord, persistence types.Persistence) error {
	oldUur := &undolog.UnpackedUndoRecord{
		Type:    undolog.UNDO_UPDATE,
		Block:   rec.RID.GetPageId(),
		Offset:  uint16(rec.RID.GetSlotNum()),
		Tuple:   tuple.NewTuple(rec.Old),
		Payload: ridPayload(rec.NewRID),
	}
	if err := d.prepareAndInsert(rec, persistence, oldUur, rec.Urp); err != nil {
		return err
	}

	newUur := &undolog.UnpackedUndoRecord{
		Type:   undolog.UNDO_INSERT,
		Block:  rec.NewRID.GetPageId(),
		Offset: uint16(rec.NewRID.GetSlotNum()),
	}
	if err := d.prepareAndInsert(rec, persistence, newUur, rec.NewUrp); err != nil {
		return err
	}

	samePage := rec.RID.GetPageId() == rec.NewRID.GetPageId()
	if samePage {
		return d.applyUpdateOnOnePage(rec)
	}
	if err := d.applyUpdateOldHalf(rec); err != nil {
		return err
	}
	return d.applyUpdateNewHalf(rec)
}

// applyUpdateOnOnePage handles the case the new tuple landed back on the
// same page as the old one: both halves must go through a single fetch and
// a single SetLSN, since a second FetchPageForRedo call after the first
// SetLSN would see its own Lsn already applied and skip the insert half.
func (d *Dispatcher) applyUpdateOnOnePage(rec *LogRecord) error {
	dp, action := d.fetchDataPage(rec.RID, rec.Lsn)
	if dp == nil {
		return nil
	}
	defer d.bpm.UnpinPage(rec.RID.GetPageId(), action == buffer.NeedsRedo)
	if action != buffer.NeedsRedo {
		return nil
	}

	dp.WLatch()
	defer dp.WUnlatch()
	dp.MarkUpdated(rec.RID.GetSlotNum())
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.Urp); err != nil {
		return err
	}
	if _, err := dp.InsertTuple(tuple.NewTuple(rec.ReconstructNew())); err != nil {
		return err
	}
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.NewUrp); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

func (d *Dispatcher) applyUpdateOldHalf(rec *LogRecord) error {
	dp, action := d.fetchDataPage(rec.RID, rec.Lsn)
	if dp == nil {
		return nil
	}
	defer d.bpm.UnpinPage(rec.RID.GetPageId(), action == buffer.NeedsRedo)
	if action != buffer.NeedsRedo {
		return nil
	}

	dp.WLatch()
	defer dp.WUnlatch()
	dp.MarkUpdated(rec.RID.GetSlotNum())
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.Urp); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

func (d *Dispatcher) applyUpdateNewHalf(rec *LogRecord) error {
	dp, action := d.fetchDataPage(rec.NewRID, rec.Lsn)
	if dp == nil {
		return nil
	}
	defer d.bpm.UnpinPage(rec.NewRID.GetPageId(), action == buffer.NeedsRedo)
	if action != buffer.NeedsRedo {
		return nil
	}

	dp.WLatch()
	defer dp.WUnlatch()
	if _, err := dp.InsertTuple(tuple.NewTuple(rec.ReconstructNew())); err != nil {
		return err
	}
	if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.NewUrp); err != nil {
		return err
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

// rangePayload packs a Range's (startOffset, count) into 4 bytes, the
// payload every per-range UNDO_MULTI_INSERT record carries so rollback
// knows which slots on the block that record's insert filled.
func rangePayload(r Range) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], r.StartOffset)
	binary.LittleEndian.PutUint16(buf[2:4], r.Count)
	return buf
}

// redoMultiInsert emits one undo record per declared range rather than one
// per tuple or one for the whole batch: each record's Blkprev chains to the
// previous range's urp, so undo can walk the ranges of one multi-insert
// back to front without touching a per-tuple undo entry. The page itself is
// fetched once for the whole record rather than once per range: every
// range shares the same WAL Lsn, so a per-range fetch would see the first
// range's SetLSN and treat the rest as already applied.
func (d *Dispatcher) redoMultiInsert(rec *LogRecord, persistence types.Persistence) error {
	if len(rec.Tuples) == 0 || len(rec.Ranges) == 0 {
		return nil
	}

	pageID := rec.Tuples[0].RID.GetPageId()
	dp, action := d.fetchDataPage(page.NewRID(pageID, 0), rec.Lsn)
	if dp == nil {
		return nil
	}
	applyToPage := action == buffer.NeedsRedo
	defer d.bpm.UnpinPage(pageID, applyToPage)
	if applyToPage {
		dp.WLatch()
		defer dp.WUnlatch()
	}

	blkprev := types.InvalidUndoRecPtr
	tupleOffset := 0
	for i, rg := range rec.Ranges {
		uur := &undolog.UnpackedUndoRecord{
			Type:    undolog.UNDO_MULTI_INSERT,
			Block:   pageID,
			Offset:  rg.StartOffset,
			Blkprev: blkprev,
			Payload: rangePayload(rg),
		}
		urp, err := d.prepareAndInsertMultiInsertRange(rec, persistence, uur, i)
		if err != nil {
			return err
		}
		blkprev = urp

		group := rec.Tuples[tupleOffset : tupleOffset+int(rg.Count)]
		tupleOffset += int(rg.Count)

		if !applyToPage {
			continue
		}
		for _, t := range group {
			if _, err := dp.InsertTuple(tuple.NewTuple(t.Data)); err != nil {
				return err
			}
		}
		if err := d.acquireAndSetTransSlot(dp, rec.TxnID, urp); err != nil {
			return err
		}
	}
	if applyToPage {
		dp.SetLSN(rec.Lsn)
	}
	return nil
}

// prepareAndInsertMultiInsertRange prepares range i's undo record. Only
// range 0's urp is checked against the WAL record's single carried Urp
// (the DO/REDO equality invariant every other opcode enforces); later
// ranges have no independent WAL-recorded urp to check against since
// LogRecord carries only one Urp field, so their prepared address is
// trusted and threaded forward as the next range's Blkprev instead.
func (d *Dispatcher) prepareAndInsertMultiInsertRange(rec *LogRecord, persistence types.Persistence, uur *undolog.UnpackedUndoRecord, rangeIdx int) (types.UndoRecPtr, error) {
	l, ok := d.registry.Get(rec.Urp.LogNo())
	if !ok {
		l = d.registry.Attach(persistence, 0, int64(rec.TxnID))
	}

	txn := access.NewTransaction(rec.TxnID, 0)
	txn.SetIsRecoveryPhase(true)

	urp, _, err := d.staging.PrepareUndoInsert(uur, l, txn)
	if err != nil {
		return types.InvalidUndoRecPtr, err
	}
	if rangeIdx == 0 && urp != rec.Urp {
		d.staging.UnlockReleaseUndoBuffers()
		return types.InvalidUndoRecPtr, ErrUrpMismatch
	}
	d.staging.InsertPreparedUndo()
	d.staging.UnlockReleaseUndoBuffers()
	return urp, nil
}

// redoSlotOp covers LOCK and UNUSED: both only touch a page's transaction
// slot / tuple-slot bookkeeping, no tuple bytes move.
func (d *Dispatcher) redoSlotOp(rec *LogRecord, persistence types.Persistence, t undolog.RecordType) error {
	uur := &undolog.UnpackedUndoRecord{
		Type:   t,
		Block:  rec.PageID,
		Offset: uint16(rec.Slot),
	}
	if err := d.prepareAndInsert(rec, persistence, uur, rec.Urp); err != nil {
		return err
	}

	dp, action := d.fetchDataPage(page.NewRID(rec.PageID, rec.Slot), rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.PageID, false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.PageID, true)

	dp.WLatch()
	defer dp.WUnlatch()
	if t == undolog.UNDO_ITEMID_UNUSED {
		dp.ApplyDelete(rec.Slot)
	} else {
		if err := d.acquireAndSetTransSlot(dp, rec.TxnID, rec.Urp); err != nil {
			return err
		}
	}
	dp.SetLSN(rec.Lsn)
	return nil
}

// redoClean reclaims a deleted tuple's slot; it carries no undo record of
// its own (cleanup is not undoable) so it skips prepareAndInsert.
func (d *Dispatcher) redoClean(rec *LogRecord) error {
	dp, action := d.fetchDataPage(page.NewRID(rec.PageID, rec.Slot), rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.PageID, false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.PageID, true)
	dp.WLatch()
	defer dp.WUnlatch()
	dp.ApplyDelete(rec.Slot)
	dp.SetLSN(rec.Lsn)
	return nil
}

// redoConfirm marks a speculatively-inserted tuple visible; physically a
// no-op on the slotted layout here since InsertTuple already made the slot
// visible, but the LSN must still advance so later redo entries that skip
// already-applied pages don't reapply this one.
func (d *Dispatcher) redoConfirm(rec *LogRecord) error {
	dp, action := d.fetchDataPage(page.NewRID(rec.PageID, rec.Slot), rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.PageID, false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.PageID, true)
	dp.WLatch()
	defer dp.WUnlatch()
	dp.SetLSN(rec.Lsn)
	return nil
}

// redoFreezeSlot / redoInvalidateSlot retire a page's inline transaction
// slot once every tuple referencing it is known all-visible, so the slot
// can be reused without consulting undo.
func (d *Dispatcher) redoFreezeSlot(rec *LogRecord) error {
	return d.clearSlot(rec)
}

func (d *Dispatcher) redoInvalidateSlot(rec *LogRecord) error {
	return d.clearSlot(rec)
}

func (d *Dispatcher) clearSlot(rec *LogRecord) error {
	dp, action := d.fetchDataPage(page.NewRID(rec.PageID, rec.Slot), rec.Lsn)
	if action != buffer.NeedsRedo {
		if dp != nil {
			d.bpm.UnpinPage(rec.PageID, false)
		}
		return nil
	}
	defer d.bpm.UnpinPage(rec.PageID, true)
	dp.WLatch()
	defer dp.WUnlatch()
	dp.SetTransSlot(int(rec.Slot)%int(common.TPDInlineSlots), 0, types.InvalidTxnID, types.InvalidUndoRecPtr)
	dp.SetLSN(rec.Lsn)
	return nil
}
