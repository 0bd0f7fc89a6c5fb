// this code is adapted from https://github.com/ryogrid/SamehadaDB types/uint32.go
// there is license and copyright notice in licenses/SamehadaDB dir

package types

import (
	"bytes"
	"encoding/binary"
)

// UInt16 is a little-endian-serializable uint16, used for undo record
// sub-header fields narrower than a full word (prevlen, tuple offset, fork).
type UInt16 uint16

func (v UInt16) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(v))
	return buf.Bytes()
}

func NewUint16FromBytes(data []byte) uint16 {
	var ret uint16
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return ret
}
