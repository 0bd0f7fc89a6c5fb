package undolog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyformat99/zheap/storage/access"
	"github.com/skyformat99/zheap/storage/page"
	"github.com/skyformat99/zheap/types"
)

func TestPrevRecordPointerWalksBackByPrevlen(t *testing.T) {
	urp := types.MakeUndoRecPtr(2, 500)
	prev := PrevRecordPointer(urp, 37)
	assert.Equal(t, uint32(2), prev.LogNo())
	assert.Equal(t, uint64(463), prev.Offset())
}

func TestFetchRecordReturnsFirstRecordWhenBlockIsInvalid(t *testing.T) {
	s, registry, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5), Payload: []byte("hello")}
	urp, _ := insertAndRelease(t, s, rec, l, txn)

	fetcher := NewFetcher(s.bpm, registry)
	defer fetcher.Close()

	got := fetcher.FetchRecord(urp, page.InvalidBlock, 0, txn.GetTransactionId(), nil)
	require.NotNil(t, got)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestFetchRecordWalksBlockChainUntilCallbackAccepts(t *testing.T) {
	s, registry, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec1 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
	urp1, _ := insertAndRelease(t, s, rec1, l, txn)

	rec2 := &UnpackedUndoRecord{Type: UNDO_DELETE, Block: types.PageID(5), Blkprev: urp1}
	urp2, _ := insertAndRelease(t, s, rec2, l, txn)

	fetcher := NewFetcher(s.bpm, registry)
	defer fetcher.Close()

	callback := func(rec *UnpackedUndoRecord, block types.PageID, offset uint16, xid types.TxnID) bool {
		return rec.Type == UNDO_INSERT
	}
	got := fetcher.FetchRecord(urp2, types.PageID(5), 0, txn.GetTransactionId(), callback)
	require.NotNil(t, got)
	assert.Equal(t, UNDO_INSERT, got.Type)
}

func TestFetchRecordStopsAtChainHead(t *testing.T) {
	s, registry, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec1 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
	urp1, _ := insertAndRelease(t, s, rec1, l, txn)

	fetcher := NewFetcher(s.bpm, registry)
	defer fetcher.Close()

	neverAccept := func(rec *UnpackedUndoRecord, block types.PageID, offset uint16, xid types.TxnID) bool {
		return false
	}
	got := fetcher.FetchRecord(urp1, types.PageID(5), 0, txn.GetTransactionId(), neverAccept)
	assert.Nil(t, got, "the chain head has no blkprev, so the walk must terminate with nil")
}

func TestFetchRecordReturnsNilBelowDiscardPointer(t *testing.T) {
	s, registry, l := newTestStaging()
	txn := access.NewTransaction(types.TxnID(1), types.XactEpoch(0))

	rec1 := &UnpackedUndoRecord{Type: UNDO_INSERT, Block: types.PageID(5)}
	urp1, _ := insertAndRelease(t, s, rec1, l, txn)

	rec2 := &UnpackedUndoRecord{Type: UNDO_DELETE, Block: types.PageID(5), Blkprev: urp1}
	urp2, _ := insertAndRelease(t, s, rec2, l, txn)

	l.AdvanceDiscard(urp2.Offset())

	fetcher := NewFetcher(s.bpm, registry)
	defer fetcher.Close()

	got := fetcher.FetchRecord(urp1, page.InvalidBlock, 0, txn.GetTransactionId(), nil)
	assert.Nil(t, got)
}
