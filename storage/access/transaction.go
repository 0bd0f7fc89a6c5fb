// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/access/transaction.go
// there is license and copyright notice in licenses/SamehadaDB dir

package access

import (
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

// TransactionState is the two-phase-locking style state machine a
// transaction moves through: GROWING/SHRINKING while it runs, then
// COMMITTED or ABORTED.
type TransactionState int32

const (
	GROWING TransactionState = iota
	SHRINKING
	COMMITTED
	ABORTED
)

// Transaction tracks everything the undo log subsystem needs to know about
// one in-flight transaction: its id, its epoch (for wraparound-safe xid
// comparisons per the TRANSACTION info block), and — per persistence class,
// since each class has its own undo log — the urp of this transaction's
// first record and of its most recently prepared record on that log.
type Transaction struct {
	state TransactionState
	txnID types.TxnID
	epoch types.XactEpoch

	// startUndoRecPtr[persistence] is InvalidUndoRecPtr until this txn
	// inserts its first record on that persistence class's log.
	startUndoRecPtr map[types.Persistence]types.UndoRecPtr
	// latestUndoRecPtr[persistence] is this transaction's most recently
	// prepared record on that log.
	latestUndoRecPtr map[types.Persistence]types.UndoRecPtr

	prevLSN types.LSN

	sharedLockSet    []page.RID
	exclusiveLockSet []page.RID

	dbgInfo         string
	abortable       bool
	isRecoveryPhase bool
}

func NewTransaction(txnID types.TxnID, epoch types.XactEpoch) *Transaction {
	return &Transaction{
		state:            GROWING,
		txnID:            txnID,
		epoch:            epoch,
		startUndoRecPtr:  make(map[types.Persistence]types.UndoRecPtr),
		latestUndoRecPtr: make(map[types.Persistence]types.UndoRecPtr),
		prevLSN:          types.InvalidLSN,
		abortable:        true,
	}
}

func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txnID }
func (txn *Transaction) GetEpoch() types.XactEpoch      { return txn.epoch }

func (txn *Transaction) GetState() TransactionState  { return txn.state }
func (txn *Transaction) SetState(s TransactionState) { txn.state = s }

func (txn *Transaction) GetPrevLSN() types.LSN     { return txn.prevLSN }
func (txn *Transaction) SetPrevLSN(lsn types.LSN)  { txn.prevLSN = lsn }

// IsFirstUndoRecord reports whether txn has not yet placed a record on the
// given persistence class's log, i.e. this insert would be the transaction's
// first on that log.
func (txn *Transaction) IsFirstUndoRecord(p types.Persistence) bool {
	urp, ok := txn.startUndoRecPtr[p]
	return !ok || !urp.IsValid()
}

func (txn *Transaction) StartUndoRecPtr(p types.Persistence) types.UndoRecPtr {
	return txn.startUndoRecPtr[p]
}

func (txn *Transaction) SetStartUndoRecPtr(p types.Persistence, urp types.UndoRecPtr) {
	if _, ok := txn.startUndoRecPtr[p]; !ok {
		txn.startUndoRecPtr[p] = urp
	}
}

func (txn *Transaction) LatestUndoRecPtr(p types.Persistence) types.UndoRecPtr {
	return txn.latestUndoRecPtr[p]
}

func (txn *Transaction) SetLatestUndoRecPtr(p types.Persistence, urp types.UndoRecPtr) {
	txn.latestUndoRecPtr[p] = urp
}

func (txn *Transaction) GetDebugInfo() string        { return txn.dbgInfo }
func (txn *Transaction) SetDebugInfo(dbgInfo string) { txn.dbgInfo = dbgInfo }

func (txn *Transaction) MakeNotAbortable() { txn.abortable = false }
func (txn *Transaction) IsAbortable() bool { return txn.abortable }

func (txn *Transaction) IsRecoveryPhase() bool       { return txn.isRecoveryPhase }
func (txn *Transaction) SetIsRecoveryPhase(v bool)   { txn.isRecoveryPhase = v }

func (txn *Transaction) GetSharedLockSet() []page.RID    { return txn.sharedLockSet }
func (txn *Transaction) GetExclusiveLockSet() []page.RID { return txn.exclusiveLockSet }

func (txn *Transaction) AddSharedLock(rid page.RID)    { txn.sharedLockSet = append(txn.sharedLockSet, rid) }
func (txn *Transaction) AddExclusiveLock(rid page.RID) { txn.exclusiveLockSet = append(txn.exclusiveLockSet, rid) }
