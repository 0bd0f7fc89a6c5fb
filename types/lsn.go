// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/types/lsn.go
// there is license and copyright notice in licenses/SamehadaDB dir

package types

import (
	"bytes"
	"encoding/binary"
)

// LSN is a log sequence number, stamped on both data pages and undo pages.
type LSN int32

const SizeOfLSN = 4

const InvalidLSN = LSN(-1)

func (lsn LSN) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lsn)
	return buf.Bytes()
}

func NewLSNFromBytes(data []byte) (ret LSN) {
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return ret
}
