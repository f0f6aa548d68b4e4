package docufort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, cfg Config, blocks int) *memRWS {
	t.Helper()
	m := &memRWS{}
	require.NoError(t, InitFile(m, cfg))
	for i := 0; i < blocks; i++ {
		require.NoError(t, WriteMagicFrame(m, cfg.ECCLen))
		content := []byte{byte(i), byte(i + 1), byte(i + 2)}
		require.NoError(t, WriteAtomicBlock(m, cfg, uint64(i), content, false, false, nil, uint64(i)))
	}
	return m
}

func TestFindBlockStartLocatesLastBlock(t *testing.T) {
	cfg := testConfig(4)
	m := writeTestFile(t, cfg, 2)

	offset, err := FindBlockStart(m, cfg)
	require.NoError(t, err)
	require.Greater(t, offset, uint64(FileHeaderLen))
}

func TestTryReadBlockClosedAtomic(t *testing.T) {
	cfg := testConfig(4)
	m := writeTestFile(t, cfg, 1)

	m.pos = int64(FileHeaderLen) + int64(MagicFrameLen(cfg.ECCLen))
	state, err := TryReadBlock(m, cfg, true, true)
	require.NoError(t, err)
	require.True(t, state.IsClosed())
	require.True(t, state.Closed.IsAtomic)
	require.Equal(t, uint32(3), state.Closed.AtomicContent.DataLen)
}

func TestTryReadBlockOpenAWhenTruncatedMidContent(t *testing.T) {
	cfg := testConfig(4)
	m := writeTestFile(t, cfg, 1)
	// cut off the file partway through the single block's content: drop
	// the hash, the end header, and two of the three content bytes
	m.buf = m.buf[:len(m.buf)-(HashLen+cfg.ECCLen)-(HeaderLen+cfg.ECCLen)-2]

	m.pos = int64(FileHeaderLen) + int64(MagicFrameLen(cfg.ECCLen))
	state, err := TryReadBlock(m, cfg, true, true)
	require.NoError(t, err)
	require.True(t, state.IsOpenA())
}

func TestRecoverTailTruncatesIncompleteTrailingBlock(t *testing.T) {
	cfg := testConfig(4)
	m := writeTestFile(t, cfg, 2)
	fullLen := len(m.buf)
	// append a few stray bytes simulating a torn write
	m.buf = append(m.buf, 0x01, 0x02, 0x03)

	summary, err := RecoverTail(m, cfg, func() uint64 { return 99 })
	require.NoError(t, err)
	require.True(t, summary.HasBlocks)
	require.Equal(t, uint64(fullLen), summary.RecoveredFileLen)
}
