package docufort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedClock stands in for DummyInput::current_timestamp() in the
// original: a clock that always returns the same value, so two
// independently-built files end up byte-identical.
const fixedClock uint64 = 0x0706050403020100

var bContent = []byte("Some content")
var aContent = []byte("Atomic content")

// buildTailByHand writes the same file buildTailViaPerformFileOp below
// produces, but by calling the low-level writer functions directly:
// one best-effort block with three content components, followed by
// two standalone atomic blocks.
func buildTailByHand(t *testing.T, cfg Config) *memRWS {
	t.Helper()
	m := &memRWS{}
	require.NoError(t, InitFile(m, cfg))
	require.NoError(t, WriteMagicFrame(m, cfg.ECCLen))

	bBlockHeader := NewComponentHeader(TagStartB, fixedClock, 0)
	require.NoError(t, WriteHeader(m, bBlockHeader, cfg.ECCLen))

	hasher := cfg.NewHasher()
	_, _, err := WriteContentComponent(m, cfg, false, false, fixedClock, bContent, hasher)
	require.NoError(t, err)
	_, _, err = WriteContentComponent(m, cfg, true, false, fixedClock, bContent, hasher)
	require.NoError(t, err)
	_, _, err = WriteContentComponent(m, cfg, false, false, fixedClock, bContent, hasher)
	require.NoError(t, err)

	bBlockHash := hasher.Finalize()
	endHeader := NewComponentHeader(TagEnd, fixedClock, 0)
	require.NoError(t, WriteBlockEnd(m, cfg, endHeader, bBlockHash))

	require.NoError(t, WriteMagicFrame(m, cfg.ECCLen))
	require.NoError(t, WriteAtomicBlock(m, cfg, fixedClock, aContent, false, false, nil, fixedClock))

	require.NoError(t, WriteMagicFrame(m, cfg.ECCLen))
	require.NoError(t, WriteAtomicBlock(m, cfg, fixedClock, aContent, true, false, nil, fixedClock))

	return m
}

// buildTailViaPerformFileOp produces the same layout, but by driving
// PerformFileOp with the high-level Operation sequence a caller would
// actually issue: three content writes against an implicitly-opened
// best-effort block, then two atomic writes (the first of which closes
// the still-open best-effort block as a side effect).
func buildTailViaPerformFileOp(t *testing.T, cfg Config) *memRWS {
	t.Helper()
	m := &memRWS{}
	require.NoError(t, InitFile(m, cfg))

	ts := fixedClock
	ops := []Operation{
		{Op: OpContentWrite, Data: bContent, Timestamp: &ts, CalcECC: false},
		{Op: OpContentWrite, Data: bContent, Timestamp: &ts, CalcECC: true},
		{Op: OpContentWrite, Data: bContent, Timestamp: &ts, CalcECC: false},
		{Op: OpAtomicWrite, Data: aContent, Timestamp: &ts, CalcECC: false},
		{Op: OpAtomicWrite, Data: aContent, Timestamp: &ts, CalcECC: true},
	}

	tail := ClosedTailState()
	policy := DefaultRetryPolicy()
	now := func() uint64 { return fixedClock }
	var err error
	for _, oper := range ops {
		tail, err = PerformFileOp(m, cfg, tail, oper, policy, now)
		require.NoError(t, err)
	}
	_ = tail
	return m
}

func TestPerformFileOpMatchesHandWrittenLayout(t *testing.T) {
	cfg := testConfig(4)
	byHand := buildTailByHand(t, cfg)
	viaOp := buildTailViaPerformFileOp(t, cfg)

	require.Equal(t, len(byHand.buf), len(viaOp.buf))
	require.Equal(t, byHand.buf, viaOp.buf)
}

func TestPerformFileOpClosesOpenBlockOnAtomicWrite(t *testing.T) {
	cfg := testConfig(4)
	m := &memRWS{}
	require.NoError(t, InitFile(m, cfg))

	ts := fixedClock
	policy := DefaultRetryPolicy()
	now := func() uint64 { return fixedClock }

	tail := ClosedTailState()
	tail, err := PerformFileOp(m, cfg, tail, Operation{Op: OpContentWrite, Data: bContent, Timestamp: &ts}, policy, now)
	require.NoError(t, err)
	require.Equal(t, "open", tail.Kind)
	require.NotNil(t, tail.Hasher)

	tail, err = PerformFileOp(m, cfg, tail, Operation{Op: OpAtomicWrite, Data: aContent, Timestamp: &ts}, policy, now)
	require.NoError(t, err)
	require.Equal(t, "closed", tail.Kind)

	m.pos = 0
	ok, err := IntegrityCheckFile(m, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, ok.NumBlocks)
}

func TestPerformFileOpCloseBlockExplicitly(t *testing.T) {
	cfg := testConfig(4)
	m := &memRWS{}
	require.NoError(t, InitFile(m, cfg))

	ts := fixedClock
	policy := DefaultRetryPolicy()
	now := func() uint64 { return fixedClock }

	tail := ClosedTailState()
	tail, err := PerformFileOp(m, cfg, tail, Operation{Op: OpContentWrite, Data: bContent, Timestamp: &ts}, policy, now)
	require.NoError(t, err)

	tail, err = PerformFileOp(m, cfg, tail, Operation{Op: OpCloseBlock, Timestamp: &ts}, policy, now)
	require.NoError(t, err)
	require.Equal(t, "closed", tail.Kind)

	m.pos = 0
	ok, err := IntegrityCheckFile(m, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, ok.NumBlocks)
	require.Equal(t, 0, ok.ErrorsCorrected)
}
