// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/access/table_page.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// TPDPage is the overflow page a DataPage's TPDPageID chains to once its
// inline PageTransSlot array (numInlineSlots entries) is full: the same
// (xid_epoch, xid, urec_ptr) triple, just more of them, plus a link to the
// next TPD page so the chain can grow again.
//
//	----------------------------------------------------------
//	| PageId(4) | LSN(4) | NextTPDPageId(4) | TransSlot_0..N-1 |
//	----------------------------------------------------------
type TPDPage struct {
	pg *page.Page
}

const (
	tpdOffNext  = page.HeaderSize
	tpdOffSlots = tpdOffNext + 4
	tpdCapacity = (common.PageSize - tpdOffSlots) / transSlotSize
)

func CastTPDPage(pg *page.Page) *TPDPage {
	if pg == nil {
		return nil
	}
	return &TPDPage{pg: pg}
}

func (t *TPDPage) Page() *page.Page { return t.pg }

// Init zero-initializes a freshly allocated TPD page: no next page, every
// slot unowned.
func (t *TPDPage) Init() {
	t.setNextTPDPageID(types.InvalidPageID)
	for i := 0; i < tpdCapacity; i++ {
		t.SetSlot(i, types.XactEpoch(0), types.InvalidTxnID, types.InvalidUndoRecPtr)
	}
}

func (t *TPDPage) getUint32(off uint32) uint32 {
	return uint32(types.NewUInt32FromBytes(t.pg.Data()[off : off+4]))
}
func (t *TPDPage) setUint32(off uint32, v uint32) {
	t.pg.Copy(off, types.UInt32(v).Serialize())
}

func (t *TPDPage) nextTPDPageID() types.PageID {
	return types.PageID(int32(t.getUint32(tpdOffNext)))
}
func (t *TPDPage) setNextTPDPageID(id types.PageID) {
	t.setUint32(tpdOffNext, uint32(id))
}

// GetSlot reads overflow transaction slot i.
func (t *TPDPage) GetSlot(i int) (types.XactEpoch, types.TxnID, types.UndoRecPtr) {
	base := uint32(tpdOffSlots + i*transSlotSize)
	epoch := types.NewXactEpochFromBytes(t.pg.Data()[base : base+4])
	xid := types.NewTxnIDFromBytes(t.pg.Data()[base+4 : base+8])
	urp := types.NewUndoRecPtrFromBytes(t.pg.Data()[base+8 : base+16])
	return epoch, xid, urp
}

// SetSlot writes overflow transaction slot i.
func (t *TPDPage) SetSlot(i int, epoch types.XactEpoch, xid types.TxnID, urp types.UndoRecPtr) {
	base := uint32(tpdOffSlots + i*transSlotSize)
	t.pg.Copy(base, epoch.Serialize())
	t.pg.Copy(base+4, xid.Serialize())
	t.pg.Copy(base+8, urp.Serialize())
}

func (t *TPDPage) findOrAssign(xid types.TxnID) int {
	free := -1
	for i := 0; i < tpdCapacity; i++ {
		_, slotXid, _ := t.GetSlot(i)
		if slotXid == xid {
			return i
		}
		if free == -1 && slotXid == types.InvalidTxnID {
			free = i
		}
	}
	return free
}

// TransSlotRef addresses one PageTransSlot triple, either inline on a
// DataPage (Page == InvalidPageID) or on one of its TPD overflow pages.
type TransSlotRef struct {
	Page  types.PageID
	Index int
}

// AcquireTransSlot finds xid's transaction slot, walking dp's inline array
// and then its TPD overflow chain, allocating one more TPD page through bpm
// when every page visited so far is full. It returns ErrNoFreeSlot when bpm
// is nil and there is nowhere left to grow the chain, or when bpm cannot
// supply a new page.
func AcquireTransSlot(bpm *buffer.BufferPoolManager, dp *DataPage, xid types.TxnID) (TransSlotRef, error) {
	if i := dp.FindOrAssignTransSlot(xid); i >= 0 {
		return TransSlotRef{Page: types.InvalidPageID, Index: i}, nil
	}

	var lastID types.PageID = types.InvalidPageID
	tpdID := dp.TPDPageID()
	for tpdID.IsValid() {
		pg := bpm.FetchPage(tpdID)
		if pg == nil {
			break
		}
		tpd := CastTPDPage(pg)
		if i := tpd.findOrAssign(xid); i >= 0 {
			bpm.UnpinPage(tpdID, false)
			return TransSlotRef{Page: tpdID, Index: i}, nil
		}
		lastID = tpdID
		next := tpd.nextTPDPageID()
		bpm.UnpinPage(tpdID, false)
		tpdID = next
	}

	if bpm == nil {
		return TransSlotRef{}, ErrNoFreeSlot
	}

	newPg := bpm.NewPage()
	if newPg == nil {
		return TransSlotRef{}, ErrNoFreeSlot
	}
	newTPD := CastTPDPage(newPg)
	newTPD.Init()
	newID := newPg.GetPageId()
	slot := newTPD.findOrAssign(xid)
	bpm.UnpinPage(newID, true)

	if lastID.IsValid() {
		pg := bpm.FetchPage(lastID)
		CastTPDPage(pg).setNextTPDPageID(newID)
		bpm.UnpinPage(lastID, true)
	} else {
		dp.SetTPDPageID(newID)
	}

	return TransSlotRef{Page: newID, Index: slot}, nil
}

// GetTransSlotAt reads the triple addressed by ref.
func GetTransSlotAt(bpm *buffer.BufferPoolManager, dp *DataPage, ref TransSlotRef) (types.XactEpoch, types.TxnID, types.UndoRecPtr) {
	if !ref.Page.IsValid() {
		return dp.GetTransSlot(ref.Index)
	}
	pg := bpm.FetchPage(ref.Page)
	defer bpm.UnpinPage(ref.Page, false)
	return CastTPDPage(pg).GetSlot(ref.Index)
}

// SetTransSlotAt writes the triple addressed by ref.
func SetTransSlotAt(bpm *buffer.BufferPoolManager, dp *DataPage, ref TransSlotRef, epoch types.XactEpoch, xid types.TxnID, urp types.UndoRecPtr) {
	if !ref.Page.IsValid() {
		dp.SetTransSlot(ref.Index, epoch, xid, urp)
		return
	}
	pg := bpm.FetchPage(ref.Page)
	CastTPDPage(pg).SetSlot(ref.Index, epoch, xid, urp)
	bpm.UnpinPage(ref.Page, true)
}

// ClearTransSlotAt resets the triple addressed by ref, mirroring FREEZE/
// INVALIDATE redo on whichever page (inline or TPD) actually holds it.
func ClearTransSlotAt(bpm *buffer.BufferPoolManager, dp *DataPage, ref TransSlotRef) {
	SetTransSlotAt(bpm, dp, ref, types.XactEpoch(0), types.InvalidTxnID, types.InvalidUndoRecPtr)
}
