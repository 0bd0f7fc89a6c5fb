// this code is adapted from https://github.com/ryogrid/SamehadaDB storage/access/lock_manager.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"sync"

	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// TwoPLMode selects strict vs. regular two-phase locking; this subsystem
// sits outside the undo log core and is kept only to the depth
// TransactionManager needs it.
type TwoPLMode int32

const (
	REGULAR TwoPLMode = iota
	STRICT
)

type LockMode int32

const (
	SHARED LockMode = iota
	EXCLUSIVE
)

type lockRequest struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
}

type lockQueue struct {
	requests []*lockRequest
}

// LockManager hands out shared/exclusive locks on RIDs to transactions
// under strict two-phase locking.
type LockManager struct {
	mutex     sync.Mutex
	mode      TwoPLMode
	lockTable map[page.RID]*lockQueue
}

func NewLockManager(mode TwoPLMode) *LockManager {
	return &LockManager{mode: mode, lockTable: make(map[page.RID]*lockQueue)}
}

func (lm *LockManager) LockShared(txn *Transaction, rid page.RID) bool {
	return lm.acquire(txn, rid, SHARED)
}

func (lm *LockManager) LockExclusive(txn *Transaction, rid page.RID) bool {
	return lm.acquire(txn, rid, EXCLUSIVE)
}

func (lm *LockManager) acquire(txn *Transaction, rid page.RID, mode LockMode) bool {
	if txn.GetState() != GROWING {
		return false
	}
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	q, ok := lm.lockTable[rid]
	if !ok {
		q = &lockQueue{}
		lm.lockTable[rid] = q
	}
	if mode == EXCLUSIVE {
		for _, r := range q.requests {
			if r.txnID != txn.GetTransactionId() && r.granted {
				return false
			}
		}
	}
	q.requests = append(q.requests, &lockRequest{txnID: txn.GetTransactionId(), mode: mode, granted: true})
	if mode == SHARED {
		txn.AddSharedLock(rid)
	} else {
		txn.AddExclusiveLock(rid)
	}
	return true
}

// Unlock releases every lock in the given set. TransactionManager.releaseLocks
// calls it at commit/abort, once for the shared set and once for the
// exclusive set.
func (lm *LockManager) Unlock(txn *Transaction, rids []page.RID) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	for _, rid := range rids {
		q, ok := lm.lockTable[rid]
		if !ok {
			continue
		}
		kept := q.requests[:0]
		for _, r := range q.requests {
			if r.txnID != txn.GetTransactionId() {
				kept = append(kept, r)
			}
		}
		q.requests = kept
	}
	if txn.GetState() == GROWING {
		txn.SetState(SHRINKING)
	}
}
