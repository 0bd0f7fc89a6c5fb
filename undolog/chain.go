// this code is adapted from https://github.com/ryogrid/SamehadaDB original_source/src/backend/access/undo/undorecord.c
// there is license and copyright notice in licenses/SamehadaDB dir

package undolog

import "github.com/skyformat99/zheap/types"

// PrepareUndoRecordUpdateTransInfo runs outside the critical section: given
// prevXactUrp, the address the caller built from the log's last_xact_start,
// it checks under the discard-lock in shared mode whether that previous
// transaction's first record has already been discarded. If so there is nothing useful to patch and
// scheduling is skipped.
func PrepareUndoRecordUpdateTransInfo(l *UndoLog, prevXactUrp types.UndoRecPtr) bool {
	l.DiscardLock().RLock()
	defer l.DiscardLock().RUnlock()

	discard := l.Discard()
	return prevXactUrp.Offset() >= discard
}
