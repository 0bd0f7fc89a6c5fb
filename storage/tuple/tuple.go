// this code is adapted from https://github.com/ryogrid/SamehadaDB storage/table/tuple.go
// there is license and copyright notice in licenses/SamehadaDB dir

// Package tuple holds the raw byte image of one heap row. Undo records carry
// whole tuple images (the "full prior image" payload of an undo record's
// PAYLOAD block) rather than schema-aware column values, so unlike the
// teacher's Tuple this type never touches a Schema or unsafe.Pointer column
// offsets.
package tuple

import (
	"encoding/binary"

	"github.com/skyformat99/zheap/storage/page"
)

// Tuple is a length-prefixable, self-contained row image.
type Tuple struct {
	rid  page.RID
	size uint32
	data []byte
}

func NewTuple(data []byte) *Tuple {
	return &Tuple{size: uint32(len(data)), data: data}
}

func (t *Tuple) Size() uint32 { return t.size }
func (t *Tuple) Data() []byte { return t.data }

func (t *Tuple) GetRID() page.RID    { return t.rid }
func (t *Tuple) SetRID(rid page.RID) { t.rid = rid }

// SerializeTo appends the tuple's wire form (uint32 length prefix + bytes)
// to dst and returns the extended slice.
func (t *Tuple) SerializeTo(dst []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], t.size)
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, t.data...)
	return dst
}

// DeserializeTupleFrom reads one length-prefixed tuple starting at src[0]
// and returns it along with the number of bytes consumed.
func DeserializeTupleFrom(src []byte) (*Tuple, int) {
	size := binary.LittleEndian.Uint32(src[0:4])
	data := make([]byte, size)
	copy(data, src[4:4+size])
	return &Tuple{size: size, data: data}, 4 + int(size)
}
