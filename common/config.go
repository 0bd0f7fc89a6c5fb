// this code is adapted from https://github.com/ryogrid/SamehadaDB common/config.go
// there is license and copyright notice in licenses/SamehadaDB dir

package common

import "time"

var LogTimeout time.Duration

// EnableDebug gates every ShPrintf call; flip to true when chasing a bug.
const EnableDebug = false

const (
	// InvalidPageID is returned by allocators/lookups on failure.
	InvalidPageID = -1
	// InvalidLSN marks "no LSN yet" in a fresh page or record.
	InvalidLSN = -1
	// InvalidTxnID marks "no owner".
	InvalidTxnID = -1

	// PageSize is the size in bytes of a data page, an undo page and a TPD page.
	PageSize = 4096

	// LogBufferSizeBase sizes the WAL buffer: one buffer holds
	// LogBufferSizeBase+1 PageSize-sized chunks.
	LogBufferSizeBase = 128
	LogBufferSize     = (LogBufferSizeBase + 1) * PageSize

	// UndoSegmentSize is the size of one undo log segment file.
	UndoSegmentSize = 1 << 20 // 1 MiB

	// DefaultPrepareCapacity is the built-in maximum number of undo records a
	// single Prepared-Undo staging batch holds before SetPrepareSize grows it.
	DefaultPrepareCapacity = 2

	// TPDInlineSlots is the number of PageTransSlot entries a data page holds
	// inline before spilling to a TPD overflow page.
	TPDInlineSlots = 4

	// FreeSpaceFSMThresholdNum/Den express "free space fell below 20% of
	// block size" as an integer fraction.
	FreeSpaceFSMThresholdNum = 1
	FreeSpaceFSMThresholdDen = 5
)

// ActiveLogKindSetting mirrors the teacher's bitmask debug-log selector.
var ActiveLogKindSetting LogLevel = INFO
