// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/access/transaction_manager.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"sync"

	"github.com/skyformat99/zheap/types"
)

// WAL kinds for the three transaction-boundary records this package emits.
// Mirrors recovery.BEGIN/COMMIT/ABORT's numeric values without importing
// that package (recovery depends on access for DataPage, so the dependency
// can't run both ways).
const (
	WalBegin  = int32(1)
	WalCommit = int32(2)
	WalAbort  = int32(3)
)

// WalWriter is the subset of recovery.LogManager that transaction-boundary
// logging needs, kept to primitive types so this package never has to
// import recovery.
type WalWriter interface {
	IsEnabledLogging() bool
	AppendTxnRecord(txnID types.TxnID, prevLsn types.LSN, kind int32) types.LSN
	Flush()
}

// TransactionManager tracks every running transaction and drives the
// BEGIN/COMMIT/ABORT WAL records. The actual undo-chain rollback walk lives
// in the orchestration layer that also owns the undolog.Fetcher, since
// undolog already depends on this package for *Transaction; Abort here only
// flips state and releases locks, leaving AbortHook to do the undo-apply
// walk when one is installed.
type TransactionManager struct {
	mutex          sync.Mutex
	nextTxnID      types.TxnID
	lockManager    *LockManager
	logManager     WalWriter
	globalTxnLatch sync.RWMutex
	txns           map[types.TxnID]*Transaction

	// AbortHook, if set, is invoked with the transaction being aborted
	// before locks are released, so a caller holding an undolog.Fetcher
	// can walk startUndoRecPtr..latestUndoRecPtr and apply the rollback.
	AbortHook func(txn *Transaction)
}

func NewTransactionManager(lockManager *LockManager, logManager WalWriter) *TransactionManager {
	return &TransactionManager{
		lockManager: lockManager,
		logManager:  logManager,
		txns:        make(map[types.TxnID]*Transaction),
	}
}

func (tm *TransactionManager) Begin(epoch types.XactEpoch) *Transaction {
	tm.globalTxnLatch.RLock()

	tm.mutex.Lock()
	tm.nextTxnID++
	txn := NewTransaction(tm.nextTxnID, epoch)
	tm.mutex.Unlock()

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		lsn := tm.logManager.AppendTxnRecord(txn.GetTransactionId(), txn.GetPrevLSN(), WalBegin)
		txn.SetPrevLSN(lsn)
	}

	tm.mutex.Lock()
	tm.txns[txn.GetTransactionId()] = txn
	tm.mutex.Unlock()
	return txn
}

func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.MakeNotAbortable()

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		lsn := tm.logManager.AppendTxnRecord(txn.GetTransactionId(), txn.GetPrevLSN(), WalCommit)
		txn.SetPrevLSN(lsn)
		tm.logManager.Flush()
	}

	txn.SetState(COMMITTED)
	tm.releaseLocks(txn)
	tm.globalTxnLatch.RUnlock()
}

func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.MakeNotAbortable()

	if tm.AbortHook != nil {
		tm.AbortHook(txn)
	}

	if tm.logManager != nil && tm.logManager.IsEnabledLogging() {
		lsn := tm.logManager.AppendTxnRecord(txn.GetTransactionId(), txn.GetPrevLSN(), WalAbort)
		txn.SetPrevLSN(lsn)
		tm.logManager.Flush()
	}

	txn.SetState(ABORTED)
	tm.releaseLocks(txn)
	tm.globalTxnLatch.RUnlock()
}

func (tm *TransactionManager) releaseLocks(txn *Transaction) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.lockManager.Unlock(txn, txn.GetSharedLockSet())
	tm.lockManager.Unlock(txn, txn.GetExclusiveLockSet())
}

// BlockAllTransactions takes the global latch exclusively, used by
// checkpoint creation to get a consistent snapshot of undo log state
func (tm *TransactionManager) BlockAllTransactions() { tm.globalTxnLatch.Lock() }
func (tm *TransactionManager) ResumeTransactions()   { tm.globalTxnLatch.Unlock() }

func (tm *TransactionManager) Get(txnID types.TxnID) (*Transaction, bool) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	txn, ok := tm.txns[txnID]
	return txn, ok
}
