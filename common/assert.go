package common

import (
	"runtime"
	"sync"

	"github.com/devlights/gomy/output"
)

// SH_Assert panics with msg when condition is false. Used at every point
// where a caller violating this package's contract must fail loudly
// rather than silently corrupt state.
func SH_Assert(condition bool, msg string) {
	if !condition {
		panic(msg)
	}
}

// SH_Mutex is a sync.Mutex that asserts its own locked/unlocked
// bookkeeping, used for per-log mutexes: Unlock panics when the mutex is not
// locked. Lock acquires the inner mutex before checking, so a re-entrant
// Lock from the goroutine already holding it blocks like a plain sync.Mutex
// rather than panicking.
type SH_Mutex struct {
	mutex    sync.Mutex
	isLocked bool
}

func NewSH_Mutex() *SH_Mutex { return &SH_Mutex{} }

func (m *SH_Mutex) Lock() {
	m.mutex.Lock()
	SH_Assert(!m.isLocked, "SH_Mutex locked twice")
	m.isLocked = true
}

func (m *SH_Mutex) Unlock() {
	SH_Assert(m.isLocked, "SH_Mutex unlocked while not locked")
	m.isLocked = false
	m.mutex.Unlock()
}

// RuntimeStack dumps every goroutine's stack, used from panic handlers when
// diagnosing a stuck discard worker or wedged writer session.
func RuntimeStack() {
	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)
		buf := make([]byte, 1024)
		for {
			n := runtime.Stack(buf, true)
			if n < len(buf) {
				ch <- buf[:n]
				return
			}
			buf = make([]byte, 2*len(buf))
		}
	}()
	for v := range ch {
		output.Stdoutl("=== stack-all ", string(v))
	}
}
