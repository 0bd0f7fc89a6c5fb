// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/page/page.go
// there is license and copyright notice in licenses/SamehadaDB dir

package page

import (
	"sync/atomic"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/types"
)

// SizePageHeader is the number of bytes every page (data, undo, TPD) reserves
// at offset 0 for the standard header (page id and LSN);
// usable bytes start at HeaderSize.
const (
	OffsetPageID = 0
	OffsetLSN    = 4
	SizePageHeader = 8
	HeaderSize     = SizePageHeader
)

// Page is the in-memory frame backing one on-disk page of any kind (data
// page, undo page, TPD page) — the buffer pool pins/locks/dirties Pages
// without caring which kind of content they hold.
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     *[common.PageSize]byte
	latch    common.ReaderWriterLatch
}

func New(id types.PageID, isDirty bool, data *[common.PageSize]byte) *Page {
	return &Page{id, 1, isDirty, data, common.NewRWLatch()}
}

func NewEmpty(id types.PageID) *Page {
	return &Page{id, 1, false, &[common.PageSize]byte{}, common.NewRWLatch()}
}

func (p *Page) IncPinCount() { atomic.AddInt32(&p.pinCount, 1) }
func (p *Page) DecPinCount() { atomic.AddInt32(&p.pinCount, -1) }
func (p *Page) PinCount() int32 { return atomic.LoadInt32(&p.pinCount) }

func (p *Page) GetPageId() types.PageID { return p.id }
func (p *Page) SetPageId(id types.PageID) {
	p.id = id
	p.Copy(OffsetPageID, id.Serialize())
}

func (p *Page) Data() *[common.PageSize]byte { return p.data }

func (p *Page) SetIsDirty(isDirty bool) { p.isDirty = isDirty }
func (p *Page) IsDirty() bool           { return p.isDirty }

// Copy writes data into the page's backing array at offset.
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

// GetLSN returns the page's stamped LSN.
func (p *Page) GetLSN() types.LSN {
	return types.NewLSNFromBytes(p.data[OffsetLSN : OffsetLSN+types.SizeOfLSN])
}

// SetLSN stamps the page's LSN; the redo dispatcher calls this after every
// successful mutation and compares against it before replay.
func (p *Page) SetLSN(lsn types.LSN) {
	p.Copy(OffsetLSN, lsn.Serialize())
}

func (p *Page) WLatch()   { p.latch.WLock() }
func (p *Page) WUnlatch() { p.latch.WUnlock() }
func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
