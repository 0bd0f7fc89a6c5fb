// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import (
	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/errors"
	"github.com/skyformat99/zheap/types"
)

// Allocator reserves undo address space on a registry's logs, creating new
// 1 MiB segment files as the end pointer is advanced.
type Allocator struct {
	registry *Registry
	// xidToLogNo is the replay-time map rebuilt from WAL so
	// AllocateInRecovery reproduces the same log for a given xid
	xidToLogNo map[types.TxnID]uint32
}

func NewAllocator(registry *Registry) *Allocator {
	return &Allocator{registry: registry, xidToLogNo: make(map[types.TxnID]uint32)}
}

// ErrOutOfAddressSpace/ErrSegmentCreateFailed are the two failure modes an
// allocation can hit: address-space exhaustion is recoverable by the
// caller (attach a different log), a segment-create failure is a fatal
// I/O error propagated straight up.
const (
	ErrOutOfAddressSpace  = errors.Error("undo log out of address space")
	ErrSegmentCreateFailed = errors.Error("undo segment create failed")
)

// maxLogOffset is the largest offset representable in the low 40 bits of an
// UndoRecPtr.
const maxLogOffset = uint64(1)<<40 - 1

// Allocate reserves size bytes starting at l's insert pointer, creating a
// new segment first if the reservation would cross a 1 MiB boundary.
// meta is a snapshot of the log's checkpoint-relevant state taken after the
// reservation, returned only when needMeta is set (PrepareUndoInsert sets
// it for a transaction's first record on the log).
func (a *Allocator) Allocate(l *UndoLog, size int, needMeta bool) (types.UndoRecPtr, *CheckpointSnapshot, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	start := l.insert
	newEnd := l.end
	if start+uint64(size) > newEnd {
		newEnd = ((start+uint64(size))/common.UndoSegmentSize + 1) * common.UndoSegmentSize
	}
	if newEnd > maxLogOffset {
		return types.InvalidUndoRecPtr, nil, ErrOutOfAddressSpace
	}

	for segStart := l.end; segStart < newEnd; segStart += common.UndoSegmentSize {
		seg := segmentIDFor(l.logNo, segStart)
		if err := a.registry.diskMgr.CreateUndoSegment(seg); err != nil {
			return types.InvalidUndoRecPtr, nil, ErrSegmentCreateFailed
		}
	}
	l.end = newEnd

	urp := types.MakeUndoRecPtr(l.logNo, start)
	l.insert = start + uint64(size)

	var meta *CheckpointSnapshot
	if needMeta {
		s := l.snapshotLocked()
		meta = &s
	}
	return urp, meta, nil
}

// snapshotLocked is Snapshot without re-acquiring l.mutex, for callers that
// already hold it.
func (l *UndoLog) snapshotLocked() CheckpointSnapshot {
	return CheckpointSnapshot{
		LogNo: l.logNo, Persistence: l.persistence, Tablespace: l.tablespace,
		Discard: l.discard, Insert: l.insert, End: l.end,
		LastXactStart: l.lastXactStart, Prevlen: l.prevlen,
	}
}

// AllocateInRecovery mirrors Allocate but resolves xid to the log it was
// attached to during the original run, reproducing identical undo addresses.
func (a *Allocator) AllocateInRecovery(xid types.TxnID, persistence types.Persistence, size int, needMeta bool) (types.UndoRecPtr, *CheckpointSnapshot, error) {
	logNo, ok := a.xidToLogNo[xid]
	var l *UndoLog
	if ok {
		l, ok = a.registry.Get(logNo)
	}
	if !ok {
		l = a.registry.Attach(persistence, 0, int64(xid))
		a.xidToLogNo[xid] = l.logNo
	}
	return a.Allocate(l, size, needMeta)
}

// AdvanceInsert commits the allocation after the bytes are actually
// written. Allocate already advanced l.insert eagerly (the
// single-writer-per-log rule means no other session can observe the gap
// between reservation and write), so this only asserts the caller's
// bookkeeping agrees.
func (a *Allocator) AdvanceInsert(l *UndoLog, urp types.UndoRecPtr, size int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	common.SH_Assert(urp.LogNo() == l.logNo, "AdvanceInsert on wrong log")
	common.SH_Assert(urp.Offset()+uint64(size) <= l.insert, "AdvanceInsert past reserved insert pointer")
}

// ForgetXid drops xid's recovery log mapping once its transaction is fully
// replayed, bounding xidToLogNo's size across a long recovery.
func (a *Allocator) ForgetXid(xid types.TxnID) {
	delete(a.xidToLogNo, xid)
}
