// this code is adapted from https://github.com/ryogrid/SamehadaDB types/txn_id.go
// there is license and copyright notice in licenses/SamehadaDB dir

package types

import (
	"bytes"
	"encoding/binary"
)

// TxnID identifies a transaction.
type TxnID int32

// InvalidTxnID represents "no owner".
const InvalidTxnID = TxnID(-1)

func (id TxnID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, id)
	return buf.Bytes()
}

func NewTxnIDFromBytes(data []byte) (ret TxnID) {
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return ret
}

// XactEpoch counts TxnID wraparounds, carried alongside an xid wherever a
// PageTransSlot or a TRANSACTION undo sub-header stores one.
type XactEpoch uint32

func (e XactEpoch) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, e)
	return buf.Bytes()
}

func NewXactEpochFromBytes(data []byte) (ret XactEpoch) {
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return ret
}
