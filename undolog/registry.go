// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/disk/disk_manager_impl.go
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/skyformat99/zheap/common"
	"github.com/skyformat99/zheap/storage/disk"
	"github.com/skyformat99/zheap/types"
)

// UndoLog is the per-log control object: monotone
// discard/insert/end pointers, the currently-owning transaction's chain
// head, and the length of the most recently inserted record.
type UndoLog struct {
	mutex common.SH_Mutex

	logNo       uint32
	persistence types.Persistence
	tablespace  uint32

	discard uint64
	insert  uint64
	end     uint64

	lastXactStart uint64
	prevlen       uint16

	attached   bool
	attachedBy int64 // opaque session identifier

	discardLock common.ReaderWriterLatch
}

func newUndoLog(logNo uint32, persistence types.Persistence, tablespace uint32) *UndoLog {
	return &UndoLog{
		logNo:       logNo,
		persistence: persistence,
		tablespace:  tablespace,
		discard:     uint64(page_HDR),
		insert:      uint64(page_HDR),
		end:         uint64(page_HDR),
		discardLock: common.NewRWLatch(),
	}
}

// page_HDR is where usable undo bytes begin on the log's first page
const page_HDR = 8

func (l *UndoLog) LogNo() uint32                    { return l.logNo }
func (l *UndoLog) Persistence() types.Persistence   { return l.persistence }
func (l *UndoLog) Discard() uint64                  { l.mutex.Lock(); defer l.mutex.Unlock(); return l.discard }
func (l *UndoLog) Insert() uint64                   { l.mutex.Lock(); defer l.mutex.Unlock(); return l.insert }
func (l *UndoLog) End() uint64                      { l.mutex.Lock(); defer l.mutex.Unlock(); return l.end }
func (l *UndoLog) LastXactStart() uint64            { l.mutex.Lock(); defer l.mutex.Unlock(); return l.lastXactStart }
func (l *UndoLog) Prevlen() uint16                  { l.mutex.Lock(); defer l.mutex.Unlock(); return l.prevlen }

// DiscardLock exposes the shared/exclusive lock guarding discard advances
func (l *UndoLog) DiscardLock() common.ReaderWriterLatch { return l.discardLock }

// AdvanceDiscard moves the discard pointer forward under the exclusive
// discard-lock.
func (l *UndoLog) AdvanceDiscard(newDiscard uint64) {
	l.discardLock.WLock()
	defer l.discardLock.WUnlock()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	common.SH_Assert(newDiscard >= l.discard, "discard pointer must advance monotonically")
	common.SH_Assert(newDiscard <= l.insert, "discard cannot pass insert")
	l.discard = newDiscard
}

// CheckpointSnapshot is one log's checkpoint-relevant meta-data as an
// in-memory value; this package does not write it to or read it from disk.
type CheckpointSnapshot struct {
	LogNo         uint32
	Persistence   types.Persistence
	Tablespace    uint32
	Discard       uint64
	Insert        uint64
	End           uint64
	LastXactStart uint64
	Prevlen       uint16
}

func (l *UndoLog) Snapshot() CheckpointSnapshot {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return CheckpointSnapshot{
		LogNo: l.logNo, Persistence: l.persistence, Tablespace: l.tablespace,
		Discard: l.discard, Insert: l.insert, End: l.end,
		LastXactStart: l.lastXactStart, Prevlen: l.prevlen,
	}
}

func restoreUndoLog(s CheckpointSnapshot) *UndoLog {
	l := newUndoLog(s.LogNo, s.Persistence, s.Tablespace)
	l.discard, l.insert, l.end = s.Discard, s.Insert, s.End
	l.lastXactStart, l.prevlen = s.LastXactStart, s.Prevlen
	return l
}

// Registry is the process-wide table of active undo logs. One registry
// lock guards the map of logs and the set of attached log numbers;
// per-log field updates go through each UndoLog's own mutex.
type Registry struct {
	mutex     sync.Mutex
	logs      map[uint32]*UndoLog
	nextLogNo uint32
	attached  mapset.Set[uint32]
	diskMgr   disk.DiskManager
}

func NewRegistry(diskMgr disk.DiskManager) *Registry {
	return &Registry{
		logs:     make(map[uint32]*UndoLog),
		attached: mapset.NewSet[uint32](),
		diskMgr:  diskMgr,
	}
}

// createLog allocates a brand-new log number and control object
func (r *Registry) createLog(persistence types.Persistence, tablespace uint32) *UndoLog {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	logNo := r.nextLogNo
	r.nextLogNo++
	l := newUndoLog(logNo, persistence, tablespace)
	r.logs[logNo] = l
	return l
}

func (r *Registry) Get(logNo uint32) (*UndoLog, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	l, ok := r.logs[logNo]
	return l, ok
}

// Attach returns a log this session may exclusively write to, creating one
// if every existing log of the persistence class is attached or exhausted
func (r *Registry) Attach(persistence types.Persistence, tablespace uint32, sessionID int64) *UndoLog {
	r.mutex.Lock()
	for _, l := range r.logs {
		if l.persistence != persistence || l.tablespace != tablespace {
			continue
		}
		l.mutex.Lock()
		exhausted := l.insert >= l.end && l.discard >= l.insert
		attached := l.attached
		l.mutex.Unlock()
		if attached || exhausted {
			continue
		}
		l.mutex.Lock()
		l.attached = true
		l.attachedBy = sessionID
		l.mutex.Unlock()
		r.attached.Add(l.logNo)
		r.mutex.Unlock()
		return l
	}
	r.mutex.Unlock()

	l := r.createLog(persistence, tablespace)
	l.mutex.Lock()
	l.attached = true
	l.attachedBy = sessionID
	l.mutex.Unlock()
	r.mutex.Lock()
	r.attached.Add(l.logNo)
	r.mutex.Unlock()
	return l
}

// Detach releases a session's exclusive claim on a log without discarding
// any of its bytes; used on session exit and by recovery once replay of a
// log's transactions is complete.
func (r *Registry) Detach(l *UndoLog) {
	l.mutex.Lock()
	l.attached = false
	l.attachedBy = 0
	l.mutex.Unlock()
	r.mutex.Lock()
	r.attached.Remove(l.logNo)
	r.mutex.Unlock()
}

// AttachedLogNumbers reports which logs currently have a writer, used by the
// discard worker to skip logs it cannot safely inspect concurrently and by
// checkpoint to decide which logs' meta-data is still moving.
func (r *Registry) AttachedLogNumbers() []uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.attached.ToSlice()
}

// Snapshot returns a checkpoint-ready image of every log's meta-data
func (r *Registry) Snapshot() []CheckpointSnapshot {
	r.mutex.Lock()
	logs := make([]*UndoLog, 0, len(r.logs))
	for _, l := range r.logs {
		logs = append(logs, l)
	}
	r.mutex.Unlock()

	out := make([]CheckpointSnapshot, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Snapshot())
	}
	return out
}

// Restore rebuilds the registry from checkpoint snapshots supplied by the
// caller (as Snapshot returns them), used at the start of crash recovery.
func (r *Registry) Restore(snapshots []CheckpointSnapshot) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.logs = make(map[uint32]*UndoLog, len(snapshots))
	var maxLogNo uint32
	for _, s := range snapshots {
		r.logs[s.LogNo] = restoreUndoLog(s)
		if s.LogNo >= maxLogNo {
			maxLogNo = s.LogNo + 1
		}
	}
	r.nextLogNo = maxLogNo
}

// segmentIDFor locates the 1 MiB segment containing offset within logNo.
func segmentIDFor(logNo uint32, offset uint64) disk.SegmentID {
	segStart := (offset / common.UndoSegmentSize) * common.UndoSegmentSize
	return disk.SegmentID{LogNo: logNo, Start: segStart}
}

func (r *Registry) String() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return fmt.Sprintf("Registry{logs=%d, attached=%v}", len(r.logs), r.attached.ToSlice())
}
