// this code is adapted from https://github.com/ryogrid/SamehadaDB types/uint32.go
// there is license and copyright notice in licenses/SamehadaDB dir

package types

import (
	"bytes"
	"encoding/binary"
)

// UInt32 is a little-endian-serializable uint32, used for every fixed-width
// scalar field (free-space pointer, tuple count, tuple offsets/sizes) in the
// slotted page header.
type UInt32 uint32

func (v UInt32) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(v))
	return buf.Bytes()
}

func NewUInt32FromBytes(data []byte) UInt32 {
	var ret uint32
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return UInt32(ret)
}

// UInt64 is a little-endian-serializable uint64, used for undo log pointers
// (discard/insert/end) that must exceed a 32-bit offset.
type UInt64 uint64

func (v UInt64) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint64(v))
	return buf.Bytes()
}

func NewUInt64FromBytes(data []byte) UInt64 {
	var ret uint64
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &ret)
	return UInt64(ret)
}
