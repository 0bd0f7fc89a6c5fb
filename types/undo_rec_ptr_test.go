package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeUndoRecPtrRoundTrips(t *testing.T) {
	p := MakeUndoRecPtr(7, 123456)
	assert.Equal(t, uint32(7), p.LogNo())
	assert.Equal(t, uint64(123456), p.Offset())
}

func TestUndoRecPtrIsValid(t *testing.T) {
	require.False(t, InvalidUndoRecPtr.IsValid())
	require.False(t, SpecialUndoRecPtr.IsValid())
	assert.True(t, MakeUndoRecPtr(0, 1).IsValid())
}

func TestUndoRecPtrSerializeRoundTrip(t *testing.T) {
	p := MakeUndoRecPtr(1<<20, 987654321)
	got := NewUndoRecPtrFromBytes(p.Serialize())
	assert.Equal(t, p, got)
}

func TestUndoRecPtrOffsetMaskedTo40Bits(t *testing.T) {
	// offset larger than 40 bits is truncated, log number still recovers cleanly
	p := MakeUndoRecPtr(3, uint64(1)<<41)
	assert.Equal(t, uint32(3), p.LogNo())
	assert.Equal(t, uint64(0), p.Offset())
}
