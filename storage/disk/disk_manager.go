// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/disk/disk_manager.go
// there is license and copyright notice in licenses/SamehadaDB dir

package disk

import "github.com/skyformat99/zheap/types"

// SegmentID names one 1 MiB undo segment file by its log number and the
// starting byte offset of the segment within that log.
type SegmentID struct {
	LogNo uint32
	Start uint64
}

// DiskManager is the file-level interface consumed by the buffer pool and
// the undo log allocator. Everything above this layer (pinning, WAL
// ordering) is out of scope; this is only the "consumed" contract.
type DiskManager interface {
	ReadPage(id types.PageID, dst []byte) error
	WritePage(id types.PageID, src []byte) error
	AllocatePage() types.PageID
	DeallocatePage(id types.PageID)

	WriteLog(data []byte) error
	ReadLog(dst []byte, offset int32, readBytes *uint32) bool

	// CreateUndoSegment creates a new 1 MiB segment file for seg if it
	// doesn't already exist.
	CreateUndoSegment(seg SegmentID) error
	// ReadUndoSegment/WriteUndoSegment address bytes within one segment file.
	ReadUndoSegment(seg SegmentID, offsetInSeg int64, dst []byte) error
	WriteUndoSegment(seg SegmentID, offsetInSeg int64, src []byte) error
	// RemoveUndoSegment deletes a segment once every byte in it is below
	// the log's discard pointer.
	RemoveUndoSegment(seg SegmentID) error

	ShutDown()
}
