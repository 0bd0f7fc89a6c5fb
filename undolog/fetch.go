// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import (
	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/buffer"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// VisibilityCallback decides, for one undo record encountered while walking
// a per-block chain, whether the scan should stop here.
type VisibilityCallback func(rec *UnpackedUndoRecord, block types.PageID, offset uint16, xid types.TxnID) bool

// Fetcher walks undo chains for one caller, amortising page pins across
// consecutive hops that stay on the same block and log.
type Fetcher struct {
	bpm      *buffer.BufferPoolManager
	registry *Registry

	pinned    bool
	pinnedPg  *page.Page
	pinnedID  types.PageID
}

func NewFetcher(bpm *buffer.BufferPoolManager, registry *Registry) *Fetcher {
	return &Fetcher{bpm: bpm, registry: registry}
}

// PrevRecordPointer computes the address of the record inserted just before
// urp in the same log: urp - prevlen.
func PrevRecordPointer(urp types.UndoRecPtr, prevlen uint16) types.UndoRecPtr {
	return types.MakeUndoRecPtr(urp.LogNo(), urp.Offset()-uint64(prevlen))
}

// FetchRecord walks the per-block undo chain starting at urp, invoking
// callback on each record, following blkprev until callback accepts, the
// record falls below the log's discard pointer, or block is InvalidBlock
// (meaning "return the first record unconditionally").
func (f *Fetcher) FetchRecord(urp types.UndoRecPtr, block types.PageID, offset uint16, xid types.TxnID, callback VisibilityCallback) *UnpackedUndoRecord {
	l, ok := f.registry.Get(urp.LogNo())
	if !ok {
		return nil
	}

	l.DiscardLock().RLock()
	defer l.DiscardLock().RUnlock()

	cur := urp
	for {
		if cur.Offset() < l.Discard() {
			f.releasePin()
			return nil
		}

		rec, owned := f.readOneRecord(l, cur)
		if rec == nil {
			f.releasePin()
			return nil
		}

		if block == page.InvalidBlock {
			if !owned {
				f.releasePin()
			}
			return rec
		}
		if callback(rec, block, offset, xid) {
			if !owned {
				f.releasePin()
			}
			return rec
		}

		if !rec.Blkprev.IsValid() {
			if owned {
				Release(rec)
			}
			f.releasePin()
			return nil
		}

		sameChain := rec.Blkprev.LogNo() == cur.LogNo() &&
			(rec.Blkprev.Offset()/common.PageSize) == (cur.Offset()/common.PageSize)
		cur = rec.Blkprev
		if owned {
			Release(rec)
		}
		if !sameChain {
			f.releasePin()
		}
	}
}

// readOneRecord reads the record at urp, pinning (or reusing the already
// pinned) page it starts on. owned reports whether the record was
// assembled across pages (split-record case). Deserialise copies payload
// and tuple bytes in both cases, so neither kind references the pinned page.
func (f *Fetcher) readOneRecord(l *UndoLog, urp types.UndoRecPtr) (*UnpackedUndoRecord, bool) {
	block := urp.Offset() / common.PageSize
	pgID := undoPageID(urp.LogNo(), block)

	pg := f.pinIfNeeded(pgID)
	if pg == nil {
		return nil, false
	}

	var rec UnpackedUndoRecord
	st := &DeserialiseState{}
	read := 0
	startByte := int(urp.Offset() % common.PageSize)
	done := Deserialise(&rec, st, pg.Data()[:], startByte, &read)
	if done {
		return &rec, false
	}

	// Split across pages: walk forward copying into an owned record.
	nextBlock := block + 1
	for !done {
		nextPgID := undoPageID(urp.LogNo(), nextBlock)
		f.releasePin()
		nextPg := f.pinIfNeeded(nextPgID)
		if nextPg == nil {
			return nil, false
		}
		done = Deserialise(&rec, st, nextPg.Data()[:], page_HDR, &read)
		nextBlock++
	}
	return &rec, true
}

func (f *Fetcher) pinIfNeeded(pgID types.PageID) *page.Page {
	if f.pinned && f.pinnedID == pgID {
		return f.pinnedPg
	}
	f.releasePin()
	pg := f.bpm.FetchPage(pgID)
	if pg == nil {
		return nil
	}
	pg.RLatch()
	f.pinned = true
	f.pinnedPg = pg
	f.pinnedID = pgID
	return pg
}

func (f *Fetcher) releasePin() {
	if !f.pinned {
		return
	}
	f.pinnedPg.RUnlatch()
	f.bpm.UnpinPage(f.pinnedID, false)
	f.pinned = false
	f.pinnedPg = nil
}

// Close releases any buffer still pinned across hops.
func (f *Fetcher) Close() { f.releasePin() }
