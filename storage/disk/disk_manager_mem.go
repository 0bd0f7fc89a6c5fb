// this code is adapted from https://github.com/ryogrid/SamehadaDB storage/disk/virtual_disk_manager_impl.go
// there is license and copyright notice in licenses/SamehadaDB dir

package disk

import (
	"fmt"
	"sync"

	"github.com/dsnet/golib/memfile"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/types"
)

// MemDiskManager keeps the data file, the WAL and every undo segment in
// memfile-backed buffers. It never touches the filesystem, so codec/redo
// property tests run fast and in parallel without a temp-dir dance.
type MemDiskManager struct {
	db         *memfile.File
	log        *memfile.File
	size       int64
	nextPageID types.PageID

	segments map[SegmentID]*memfile.File

	dbMutex  sync.Mutex
	logMutex sync.Mutex
	segMutex sync.Mutex
}

func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{
		db:       memfile.New(nil),
		log:      memfile.New(nil),
		segments: make(map[SegmentID]*memfile.File),
	}
}

func (d *MemDiskManager) ShutDown() {}

func (d *MemDiskManager) WritePage(id types.PageID, src []byte) error {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()
	off := int64(id) * common.PageSize
	if _, err := d.db.WriteAt(src, off); err != nil {
		return err
	}
	if end := off + int64(len(src)); end > d.size {
		d.size = end
	}
	return nil
}

func (d *MemDiskManager) ReadPage(id types.PageID, dst []byte) error {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()
	off := int64(id) * common.PageSize
	if off+int64(len(dst)) > d.size {
		return fmt.Errorf("read past end of file")
	}
	_, err := d.db.ReadAt(dst, off)
	return err
}

func (d *MemDiskManager) AllocatePage() types.PageID {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()
	ret := d.nextPageID
	d.nextPageID++
	return ret
}

func (d *MemDiskManager) DeallocatePage(id types.PageID) {}

func (d *MemDiskManager) WriteLog(data []byte) error {
	d.logMutex.Lock()
	defer d.logMutex.Unlock()
	_, err := d.log.WriteAt(data, int64(len(d.log.Bytes())))
	return err
}

func (d *MemDiskManager) ReadLog(dst []byte, offset int32, readBytes *uint32) bool {
	d.logMutex.Lock()
	defer d.logMutex.Unlock()
	if int64(offset) >= int64(len(d.log.Bytes())) {
		return false
	}
	n, err := d.log.ReadAt(dst, int64(offset))
	*readBytes = uint32(n)
	return err == nil
}

func (d *MemDiskManager) CreateUndoSegment(seg SegmentID) error {
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	if _, ok := d.segments[seg]; !ok {
		d.segments[seg] = memfile.New(make([]byte, common.UndoSegmentSize))
	}
	return nil
}

func (d *MemDiskManager) WriteUndoSegment(seg SegmentID, offsetInSeg int64, src []byte) error {
	d.segMutex.Lock()
	f, ok := d.segments[seg]
	if !ok {
		f = memfile.New(make([]byte, common.UndoSegmentSize))
		d.segments[seg] = f
	}
	d.segMutex.Unlock()
	_, err := f.WriteAt(src, offsetInSeg)
	return err
}

func (d *MemDiskManager) ReadUndoSegment(seg SegmentID, offsetInSeg int64, dst []byte) error {
	d.segMutex.Lock()
	f, ok := d.segments[seg]
	d.segMutex.Unlock()
	if !ok {
		return fmt.Errorf("undo segment %d.%x not found", seg.LogNo, seg.Start)
	}
	_, err := f.ReadAt(dst, offsetInSeg)
	return err
}

func (d *MemDiskManager) RemoveUndoSegment(seg SegmentID) error {
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	delete(d.segments, seg)
	return nil
}
