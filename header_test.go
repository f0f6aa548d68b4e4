package docufort

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComponentHeaderRoundTrip(t *testing.T) {
	h := NewComponentHeader(TagContent|FlagHasECC|FlagIsComp, 12345, 678)
	require.True(t, h.HasECC())
	require.True(t, h.IsCompressed())
	require.Equal(t, TagContent, h.blockTag())

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h, 4))
	require.Equal(t, HeaderLen+4, buf.Len())

	got, err := ReadHeader(&buf, 4, 100)
	require.NoError(t, err)
	require.Equal(t, h.Tag, got.Tag)
	require.Equal(t, h.Timestamp, got.Timestamp)
	require.Equal(t, h.PayloadLen, got.PayloadLen)
	require.Equal(t, uint64(100), got.StartPos)
}

func TestReadHeaderCorrectsDamagedByte(t *testing.T) {
	h := NewComponentHeader(TagStartA, 99, 0)
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h, 4))

	raw := buf.Bytes()
	raw[0] ^= 0xFF // corrupt the tag byte on the wire

	got, err := ReadHeader(bytes.NewReader(raw), 4, 0)
	require.NoError(t, err)
	require.Equal(t, h.Tag, got.Tag)
}

func TestAsContentAccountsForECCParity(t *testing.T) {
	h := ComponentHeader{Tag: TagContent | FlagHasECC, Timestamp: 1, PayloadLen: 500, StartPos: 50}
	c := h.AsContent(4)
	require.True(t, c.ECC)
	require.Equal(t, uint32(500), c.DataLen)

	wantParity := uint64(ParityLength(500, 4))
	wantStart := h.StartPos + uint64(HeaderLen+4) + wantParity
	require.Equal(t, wantStart, c.DataStart)
}

func TestAsContentWithoutECC(t *testing.T) {
	h := ComponentHeader{Tag: TagContent, Timestamp: 1, PayloadLen: 10, StartPos: 0}
	c := h.AsContent(4)
	require.False(t, c.ECC)
	require.Equal(t, uint64(HeaderLen+4), c.DataStart)
}
