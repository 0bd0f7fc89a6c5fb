// this code is adapted from https://github.com/ryogrid/SamehadaDB storage/page/rid.go
// there is license and copyright notice in licenses/SamehadaDB dir

package page

import "github.com/skyformat99/zheap/types"

// RID identifies a tuple: the page it lives on plus its slot number.
type RID struct {
	pageID  types.PageID
	slotNum uint32
}

func NewRID(pageID types.PageID, slot uint32) RID {
	return RID{pageID, slot}
}

func (r *RID) Set(pageID types.PageID, slot uint32) {
	r.pageID = pageID
	r.slotNum = slot
}

func (r RID) GetPageId() types.PageID { return r.pageID }
func (r RID) GetSlotNum() uint32      { return r.slotNum }

// InvalidBlock is the page.RID.GetPageId() sentinel Undo Fetch/Scan
// checks for to mean "caller wants the first record unconditionally".
const InvalidBlock = types.InvalidPageID
