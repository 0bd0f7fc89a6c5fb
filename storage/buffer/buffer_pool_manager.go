// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/buffer/buffer_pool_manager.go
// there is license and copyright notice in licenses/go-bustub dir

package buffer

import (
	"fmt"
	"sync"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// RedoAction is the outcome of preparing a buffer for replay.
type RedoAction int

const (
	NeedsRedo RedoAction = iota
	Restored
	NotFound
)

// BufferPoolManager pins, locks, reads, dirties and WAL-stamps fixed-size
// pages by page id. Data pages and undo pages share one pool and one
// pageTable; id.IsUndoPage distinguishes them on every path that touches
// disk, routing undo pages through the per-segment undo files instead of
// the main data file.
type BufferPoolManager struct {
	mutex       sync.Mutex
	diskManager disk.DiskManager
	pages       []*page.Page
	replacer    *clockReplacer
	freeList    []FrameID
	pageTable   map[types.PageID]FrameID
}

func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager) *BufferPoolManager {
	freeList := make([]FrameID, poolSize)
	for i := range freeList {
		freeList[i] = FrameID(i)
	}
	return &BufferPoolManager{
		diskManager: diskManager,
		pages:       make([]*page.Page, poolSize),
		replacer:    newClockReplacer(poolSize),
		freeList:    freeList,
		pageTable:   make(map[types.PageID]FrameID),
	}
}

func (b *BufferPoolManager) getFrameID() (FrameID, bool) {
	if len(b.freeList) > 0 {
		id := b.freeList[0]
		b.freeList = b.freeList[1:]
		return id, true
	}
	return b.replacer.Victim()
}

// evict writes back the current occupant of frameID, if dirty, and removes
// it from the page table.
func (b *BufferPoolManager) evict(frameID FrameID) {
	cur := b.pages[frameID]
	if cur == nil {
		return
	}
	if cur.IsDirty() {
		data := cur.Data()
		id := cur.GetPageId()
		if id.IsUndoPage() {
			seg, off := undoSegmentFor(id)
			b.diskManager.WriteUndoSegment(seg, off, data[:])
		} else {
			b.diskManager.WritePage(id, data[:])
		}
	}
	delete(b.pageTable, cur.GetPageId())
}

// undoSegmentFor translates an undo PageID into the segment file and
// in-segment byte offset that backs it, per common.UndoSegmentSize.
func undoSegmentFor(id types.PageID) (disk.SegmentID, int64) {
	logNo, block := id.DecodeUndoPage()
	byteOffset := int64(block) * common.PageSize
	segStart := (byteOffset / common.UndoSegmentSize) * common.UndoSegmentSize
	return disk.SegmentID{LogNo: logNo, Start: uint64(segStart)}, byteOffset - segStart
}

// FetchPage fetches the requested page from the buffer pool, reading it from
// disk on a miss.
func (b *BufferPoolManager) FetchPage(id types.PageID) *page.Page {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if frameID, ok := b.pageTable[id]; ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.Pin(frameID)
		return pg
	}

	frameID, fromFreeList := b.getFrameID()
	if !fromFreeList {
		_, ok := b.pageTable[id]
		_ = ok
	}
	if !fromFreeList && b.pages[frameID] == nil && len(b.pageTable) == 0 {
		return nil
	}
	if !fromFreeList {
		b.evict(frameID)
	}

	var buf [common.PageSize]byte
	if id.IsUndoPage() {
		seg, off := undoSegmentFor(id)
		if err := b.diskManager.ReadUndoSegment(seg, off, buf[:]); err != nil {
			return nil
		}
	} else if err := b.diskManager.ReadPage(id, buf[:]); err != nil {
		return nil
	}
	pg := page.New(id, false, &buf)
	b.pageTable[id] = frameID
	b.pages[frameID] = pg
	return pg
}

// FetchPageForRedo mirrors XLogReadBufferForRedo/XLogInitBufferForRedo: when
// initIfMissing is set (the WAL record's INIT_PAGE bit), the page is
// obtained through NewPageWithID instead of being read from disk, whether or
// not it already exists, and is reported as NeedsRedo without an LSN check.
func (b *BufferPoolManager) FetchPageForRedo(id types.PageID, recordLSN types.LSN, initIfMissing bool) (*page.Page, RedoAction) {
	if initIfMissing {
		pg := b.NewPageWithID(id)
		if pg == nil {
			return nil, NotFound
		}
		return pg, NeedsRedo
	}
	pg := b.FetchPage(id)
	if pg == nil {
		return nil, NotFound
	}
	if pg.GetLSN() >= recordLSN {
		return pg, Restored
	}
	return pg, NeedsRedo
}

// UnpinPage unpins the target page from the buffer pool.
func (b *BufferPoolManager) UnpinPage(id types.PageID, isDirty bool) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[id]
	if !ok {
		return fmt.Errorf("could not find page %d", id)
	}
	pg := b.pages[frameID]
	pg.DecPinCount()
	if pg.PinCount() <= 0 {
		b.replacer.Unpin(frameID)
	}
	if isDirty {
		pg.SetIsDirty(true)
	}
	return nil
}

func (b *BufferPoolManager) FlushPage(id types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[id]
	if !ok {
		return false
	}
	pg := b.pages[frameID]
	data := pg.Data()
	if id.IsUndoPage() {
		seg, off := undoSegmentFor(id)
		b.diskManager.WriteUndoSegment(seg, off, data[:])
	} else {
		b.diskManager.WritePage(id, data[:])
	}
	pg.SetIsDirty(false)
	return true
}

func (b *BufferPoolManager) FlushAllPages() {
	b.mutex.Lock()
	ids := make([]types.PageID, 0, len(b.pageTable))
	for id := range b.pageTable {
		ids = append(ids, id)
	}
	b.mutex.Unlock()
	for _, id := range ids {
		b.FlushPage(id)
	}
}

// NewPage allocates a fresh page id via the disk manager and pins it.
func (b *BufferPoolManager) NewPage() *page.Page {
	id := b.diskManager.AllocatePage()
	return b.NewPageWithID(id)
}

// NewPageWithID installs a zero-initialized page at a caller-chosen id,
// used both by NewPage and by FetchPageForRedo's INIT_PAGE path.
func (b *BufferPoolManager) NewPageWithID(id types.PageID) *page.Page {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, fromFreeList := b.getFrameID()
	if !fromFreeList {
		if b.pages[frameID] == nil {
			return nil
		}
		b.evict(frameID)
	}

	pg := page.NewEmpty(id)
	b.pageTable[id] = frameID
	b.pages[frameID] = pg
	return pg
}

func (b *BufferPoolManager) DeletePage(id types.PageID) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[id]
	if !ok {
		return nil
	}
	pg := b.pages[frameID]
	if pg.PinCount() > 0 {
		return fmt.Errorf("pin count greater than 0")
	}
	delete(b.pageTable, id)
	b.replacer.Pin(frameID)
	b.diskManager.DeallocatePage(id)
	b.freeList = append(b.freeList, frameID)
	return nil
}
