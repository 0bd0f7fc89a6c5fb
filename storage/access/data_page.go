// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/access/table_page.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/errors"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/storage/tuple"
	"github.com/skyformat99/zheap/types"
)

const (
	ErrEmptyTuple     = errors.Error("tuple cannot be empty")
	ErrNotEnoughSpace = errors.Error("not enough space on page")
	ErrNoFreeSlot     = errors.Error("no free transaction slot on page or TPD")
)

// Slotted layout, same shape as the teacher's TablePage but with a
// PageTransSlot array inserted after the fixed header:
//
//	----------------------------------------------------------------------------------
//	| PageId(4) | LSN(4) | PrevPageId(4) | NextPageId(4) | FreeSpacePtr(4) | TupleCnt(4) |
//	----------------------------------------------------------------------------------
//	| TransSlot_0..N-1 (xid_epoch(4)+xid(4)+urec_ptr(8)=16 bytes each) | TPD pageid(4) |
//	----------------------------------------------------------------------------------
//	| ... FREE SPACE ... | Tuple_i offset(4)+size(4)+deleteMask|updatedMask(top 2 bits) ... TUPLES ... |
//	----------------------------------------------------------------------------------
const (
	offPrevPageID    = 8
	offNextPageID    = 12
	offFreeSpace     = 16
	offTupleCount    = 20
	offTransSlots    = 24
	transSlotSize    = 16
	numInlineSlots   = int(common.TPDInlineSlots)
	offTPDPageID     = offTransSlots + transSlotSize*4 // computed for numInlineSlots==4 below
	sizeTupleSlot    = 8
	deleteMask       = uint32(1 << 31)
	updatedMask      = uint32(1 << 30)
)

// header size before the tuple-slot directory / free space region begins.
func headerSize() uint32 {
	return uint32(offTransSlots + transSlotSize*numInlineSlots + 4)
}

// DataPage wraps a buffer-pool page with the slotted heap layout data
// modification handlers operate on. Composition over the teacher's
// unsafe.Pointer TablePage cast: same responsibilities, ordinary Go method
// set on a held *page.Page instead of reinterpreting its memory.
type DataPage struct {
	pg *page.Page
}

func CastDataPage(pg *page.Page) *DataPage {
	if pg == nil {
		return nil
	}
	return &DataPage{pg: pg}
}

func (dp *DataPage) Page() *page.Page { return dp.pg }

func (dp *DataPage) Init(pageID types.PageID, prevPageID types.PageID) {
	dp.SetPageId(pageID)
	dp.setUint32(offPrevPageID, uint32(prevPageID))
	invalidPageID := types.InvalidPageID
	dp.setUint32(offNextPageID, uint32(invalidPageID))
	dp.setUint32(offFreeSpace, common.PageSize)
	dp.setUint32(offTupleCount, 0)
	dp.setUint32(offTPDPageID, uint32(invalidPageID))
	for i := 0; i < numInlineSlots; i++ {
		dp.SetTransSlot(i, types.XactEpoch(0), types.InvalidTxnID, types.InvalidUndoRecPtr)
	}
}

func (dp *DataPage) GetPageId() types.PageID  { return dp.pg.GetPageId() }
func (dp *DataPage) SetPageId(id types.PageID) { dp.pg.SetPageId(id) }
func (dp *DataPage) GetLSN() types.LSN         { return dp.pg.GetLSN() }
func (dp *DataPage) SetLSN(lsn types.LSN)      { dp.pg.SetLSN(lsn) }
func (dp *DataPage) WLatch()                   { dp.pg.WLatch() }
func (dp *DataPage) WUnlatch()                 { dp.pg.WUnlatch() }
func (dp *DataPage) RLatch()                   { dp.pg.RLatch() }
func (dp *DataPage) RUnlatch()                 { dp.pg.RUnlatch() }

func (dp *DataPage) getUint32(off uint32) uint32 {
	return uint32(types.NewUInt32FromBytes(dp.pg.Data()[off : off+4]))
}
func (dp *DataPage) setUint32(off uint32, v uint32) {
	dp.pg.Copy(off, types.UInt32(v).Serialize())
}

func (dp *DataPage) GetFreeSpacePointer() uint32 { return dp.getUint32(offFreeSpace) }
func (dp *DataPage) GetTupleCount() uint32       { return dp.getUint32(offTupleCount) }

func (dp *DataPage) getFreeSpaceRemaining() uint32 {
	return dp.GetFreeSpacePointer() - dp.tupleDirEnd()
}

func (dp *DataPage) tupleDirEnd() uint32 {
	return headerSize() + dp.GetTupleCount()*sizeTupleSlot
}

func (dp *DataPage) tupleSlotOffset(slot uint32) uint32 {
	return headerSize() + slot*sizeTupleSlot
}

func (dp *DataPage) GetTupleOffsetAtSlot(slot uint32) uint32 {
	return dp.getUint32(dp.tupleSlotOffset(slot)) &^ (deleteMask | updatedMask)
}
func (dp *DataPage) GetTupleSize(slot uint32) uint32 {
	return dp.getUint32(dp.tupleSlotOffset(slot) + 4)
}
func (dp *DataPage) IsDeleted(slot uint32) bool {
	return dp.getUint32(dp.tupleSlotOffset(slot))&deleteMask != 0
}

// IsUpdated reports whether slot's tuple is the old version of a
// non-in-place update: still readable for MVCC purposes, but superseded by
// a tuple on another slot/page rather than simply gone like a delete.
func (dp *DataPage) IsUpdated(slot uint32) bool {
	return dp.getUint32(dp.tupleSlotOffset(slot))&updatedMask != 0
}
func (dp *DataPage) setTupleOffsetAtSlot(slot, off uint32, deleted bool) {
	if deleted {
		off |= deleteMask
	}
	dp.setUint32(dp.tupleSlotOffset(slot), off)
}
func (dp *DataPage) setTupleSizeAtSlot(slot, size uint32) {
	dp.setUint32(dp.tupleSlotOffset(slot)+4, size)
}

// GetTransSlot reads inline transaction slot i.
func (dp *DataPage) GetTransSlot(i int) (types.XactEpoch, types.TxnID, types.UndoRecPtr) {
	base := uint32(offTransSlots + i*transSlotSize)
	epoch := types.NewXactEpochFromBytes(dp.pg.Data()[base : base+4])
	xid := types.NewTxnIDFromBytes(dp.pg.Data()[base+4 : base+8])
	urp := types.NewUndoRecPtrFromBytes(dp.pg.Data()[base+8 : base+16])
	return epoch, xid, urp
}

// SetTransSlot writes inline transaction slot i's (epoch, xid, urp) triple.
func (dp *DataPage) SetTransSlot(i int, epoch types.XactEpoch, xid types.TxnID, urp types.UndoRecPtr) {
	base := uint32(offTransSlots + i*transSlotSize)
	dp.pg.Copy(base, epoch.Serialize())
	dp.pg.Copy(base+4, xid.Serialize())
	dp.pg.Copy(base+8, urp.Serialize())
}

// TPDPageID is the overflow page holding extra transaction slots once the
// inline array is full.
func (dp *DataPage) TPDPageID() types.PageID {
	return types.PageID(int32(dp.getUint32(offTPDPageID)))
}
func (dp *DataPage) SetTPDPageID(id types.PageID) {
	dp.setUint32(offTPDPageID, uint32(id))
}

// FindOrAssignTransSlot returns the inline slot index already owned by xid,
// or the first free/reusable slot, or -1 if the inline array is full and a
// TPD page must be consulted.
func (dp *DataPage) FindOrAssignTransSlot(xid types.TxnID) int {
	free := -1
	for i := 0; i < numInlineSlots; i++ {
		_, slotXid, _ := dp.GetTransSlot(i)
		if slotXid == xid {
			return i
		}
		if free == -1 && slotXid == types.InvalidTxnID {
			free = i
		}
	}
	return free
}

// InsertTuple appends tup to the page's free space, returning its RID.
// Locking and the undo record are prepared by the caller (the redo handler
// or the foreground insert path); this only performs the physical slotted-
// page mutation.
func (dp *DataPage) InsertTuple(tup *tuple.Tuple) (page.RID, error) {
	if tup.Size() == 0 {
		return page.RID{}, ErrEmptyTuple
	}
	if dp.getFreeSpaceRemaining() < tup.Size()+sizeTupleSlot {
		return page.RID{}, ErrNotEnoughSpace
	}

	var slot uint32
	for slot = 0; slot < dp.GetTupleCount(); slot++ {
		if dp.GetTupleSize(slot) == 0 {
			break
		}
	}

	newFsp := dp.GetFreeSpacePointer() - tup.Size()
	dp.pg.Copy(newFsp, tup.Data())
	dp.setTupleOffsetAtSlot(slot, newFsp, false)
	dp.setTupleSizeAtSlot(slot, tup.Size())
	dp.setUint32(offFreeSpace, newFsp)
	if slot == dp.GetTupleCount() {
		dp.setUint32(offTupleCount, dp.GetTupleCount()+1)
	}

	rid := page.NewRID(dp.GetPageId(), slot)
	return rid, nil
}

// MarkDelete flips the delete bit on a tuple's slot entry without
// reclaiming its bytes (deferred to CLEAN); the deleting transaction's undo
// pointer is recorded separately in the page's transaction slot.
func (dp *DataPage) MarkDelete(slot uint32) {
	off := dp.tupleSlotOffset(slot)
	dp.setUint32(off, dp.getUint32(off)|deleteMask)
}

// MarkUpdated flips the updated bit on a tuple's slot entry, leaving the
// bytes and the delete bit untouched: used on the old tuple of a
// non-in-place update, where the row is superseded rather than removed.
func (dp *DataPage) MarkUpdated(slot uint32) {
	off := dp.tupleSlotOffset(slot)
	dp.setUint32(off, dp.getUint32(off)|updatedMask)
}

// ApplyDelete zeroes a slot's size and offset, marking the slot entry
// reusable by a future insert. The tuple's bytes are not reclaimed:
// InsertTuple always places new bytes at the free-space pointer.
func (dp *DataPage) ApplyDelete(slot uint32) {
	dp.setTupleSizeAtSlot(slot, 0)
	dp.setTupleOffsetAtSlot(slot, 0, false)
}

// ReadTuple copies out the bytes stored at slot.
func (dp *DataPage) ReadTuple(slot uint32) *tuple.Tuple {
	off := dp.GetTupleOffsetAtSlot(slot)
	size := dp.GetTupleSize(slot)
	data := make([]byte, size)
	copy(data, dp.pg.Data()[off:off+size])
	t := tuple.NewTuple(data)
	t.SetRID(page.NewRID(dp.GetPageId(), slot))
	return t
}
