// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/common/rwlatch.go
// there is license and copyright notice in licenses/SamehadaDB dir

package common

import "github.com/sasha-s/go-deadlock"

// ReaderWriterLatch is the reader/writer latch shape used throughout the
// engine: page latches, the per-log discard-lock and the WAL log manager's
// latch implement it. The undo log registry's lock is a plain sync.Mutex.
type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

type readerWriterLatch struct {
	mutex deadlock.RWMutex
}

// NewRWLatch returns a deadlock-detecting reader/writer latch. Using
// go-deadlock here (rather than sync.RWMutex) turns a lock-ordering bug
// among concurrent writer sessions into a panic with a cycle report
// instead of a silent hang.
func NewRWLatch() ReaderWriterLatch {
	return &readerWriterLatch{}
}

func (l *readerWriterLatch) WLock()   { l.mutex.Lock() }
func (l *readerWriterLatch) WUnlock() { l.mutex.Unlock() }
func (l *readerWriterLatch) RLock()   { l.mutex.RLock() }
func (l *readerWriterLatch) RUnlock() { l.mutex.RUnlock() }
