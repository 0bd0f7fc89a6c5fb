// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/disk/disk_manager_impl.go
// there is license and copyright notice in licenses/SamehadaDB dir

package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/types"
)

// FileDiskManager backs the data file, the WAL file and one file per undo
// segment with real os.File handles: every segment file, whatever the log's
// persistence class or tablespace, lives in one "<base>-undo" directory
// (base being dbFilename without its extension); the data/log files sit
// next to each other named off dbFilename.
type FileDiskManager struct {
	db         *os.File
	log        *os.File
	logName    string
	undoDir    string
	nextPageID types.PageID

	segments map[SegmentID]*os.File

	dbMutex  sync.Mutex
	logMutex sync.Mutex
	segMutex sync.Mutex
}

func NewFileDiskManager(dbFilename string) (*FileDiskManager, error) {
	db, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("open db file: %w", err)
	}

	dot := strings.LastIndex(dbFilename, ".")
	base := dbFilename
	if dot >= 0 {
		base = dbFilename[:dot]
	}
	logName := base + ".log"
	logFile, err := os.OpenFile(logName, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if _, err := logFile.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}

	undoDir := base + "-undo"
	if err := os.MkdirAll(undoDir, 0777); err != nil {
		return nil, fmt.Errorf("create undo dir: %w", err)
	}

	fi, err := db.Stat()
	if err != nil {
		return nil, err
	}
	nPages := fi.Size() / common.PageSize
	nextPageID := types.PageID(0)
	if nPages > 0 {
		nextPageID = types.PageID(nPages)
	}

	return &FileDiskManager{
		db:         db,
		log:        logFile,
		logName:    logName,
		undoDir:    undoDir,
		nextPageID: nextPageID,
		segments:   make(map[SegmentID]*os.File),
	}, nil
}

func (d *FileDiskManager) ShutDown() {
	d.dbMutex.Lock()
	d.db.Close()
	d.dbMutex.Unlock()

	d.logMutex.Lock()
	d.log.Close()
	d.logMutex.Unlock()

	d.segMutex.Lock()
	for _, f := range d.segments {
		f.Close()
	}
	d.segMutex.Unlock()
}

func (d *FileDiskManager) WritePage(id types.PageID, src []byte) error {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()

	off := int64(id) * common.PageSize
	if _, err := d.db.Seek(off, io.SeekStart); err != nil {
		return err
	}
	n, err := d.db.Write(src)
	if err != nil {
		return err
	}
	if n != common.PageSize {
		common.SH_Assert(false, "short page write")
	}
	return d.db.Sync()
}

func (d *FileDiskManager) ReadPage(id types.PageID, dst []byte) error {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()

	off := int64(id) * common.PageSize
	fi, err := d.db.Stat()
	if err != nil {
		return err
	}
	if off >= fi.Size() {
		return fmt.Errorf("read past end of file")
	}
	if _, err := d.db.Seek(off, io.SeekStart); err != nil {
		return err
	}
	n, err := d.db.Read(dst)
	if err != nil && err != io.EOF {
		return err
	}
	if n < len(dst) {
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	}
	return nil
}

func (d *FileDiskManager) AllocatePage() types.PageID {
	d.dbMutex.Lock()
	defer d.dbMutex.Unlock()
	ret := d.nextPageID
	d.nextPageID++
	return ret
}

func (d *FileDiskManager) DeallocatePage(id types.PageID) {}

func (d *FileDiskManager) WriteLog(data []byte) error {
	d.logMutex.Lock()
	defer d.logMutex.Unlock()
	if _, err := d.log.Write(data); err != nil {
		return err
	}
	return d.log.Sync()
}

func (d *FileDiskManager) ReadLog(dst []byte, offset int32, readBytes *uint32) bool {
	d.logMutex.Lock()
	defer d.logMutex.Unlock()

	fi, err := d.log.Stat()
	if err != nil || int64(offset) >= fi.Size() {
		return false
	}
	if _, err := d.log.Seek(int64(offset), io.SeekStart); err != nil {
		return false
	}
	n, err := d.log.Read(dst)
	*readBytes = uint32(n)
	return err == nil
}

// segmentPath gives the file name "L.OOOOOOOOOO" inside the undo directory.
func (d *FileDiskManager) segmentPath(seg SegmentID) string {
	return filepath.Join(d.undoDir, fmt.Sprintf("%d.%010x", seg.LogNo, seg.Start))
}

func (d *FileDiskManager) CreateUndoSegment(seg SegmentID) error {
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	if _, ok := d.segments[seg]; ok {
		return nil
	}
	f, err := os.OpenFile(d.segmentPath(seg), os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return err
	}
	if err := f.Truncate(common.UndoSegmentSize); err != nil {
		return err
	}
	d.segments[seg] = f
	return nil
}

func (d *FileDiskManager) segmentFile(seg SegmentID) (*os.File, error) {
	d.segMutex.Lock()
	f, ok := d.segments[seg]
	d.segMutex.Unlock()
	if ok {
		return f, nil
	}
	if err := d.CreateUndoSegment(seg); err != nil {
		return nil, err
	}
	d.segMutex.Lock()
	f = d.segments[seg]
	d.segMutex.Unlock()
	return f, nil
}

func (d *FileDiskManager) WriteUndoSegment(seg SegmentID, offsetInSeg int64, src []byte) error {
	f, err := d.segmentFile(seg)
	if err != nil {
		return err
	}
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	if _, err := f.WriteAt(src, offsetInSeg); err != nil {
		return err
	}
	return f.Sync()
}

func (d *FileDiskManager) ReadUndoSegment(seg SegmentID, offsetInSeg int64, dst []byte) error {
	f, err := d.segmentFile(seg)
	if err != nil {
		return err
	}
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	_, err = f.ReadAt(dst, offsetInSeg)
	if err == io.EOF {
		err = nil
	}
	return err
}

func (d *FileDiskManager) RemoveUndoSegment(seg SegmentID) error {
	d.segMutex.Lock()
	defer d.segMutex.Unlock()
	if f, ok := d.segments[seg]; ok {
		f.Close()
		delete(d.segments, seg)
	}
	return os.Remove(d.segmentPath(seg))
}
