package docufort

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHasher struct{ data []byte }

func (f *fakeHasher) Update(b []byte) { f.data = append(f.data, b...) }
func (f *fakeHasher) Finalize() [HashLen]byte {
	var out [HashLen]byte
	copy(out[:], f.data)
	return out
}
func (f *fakeHasher) Clone() Hasher {
	cp := append([]byte{}, f.data...)
	return &fakeHasher{data: cp}
}

func testConfig(eccLen int) Config {
	return Config{ECCLen: eccLen, NewHasher: func() Hasher { return NewBLAKE3Hasher() }}
}

func TestWriteHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	h := NewComponentHeader(TagStartB, 0x0101010101010101, 0)
	require.NoError(t, WriteHeader(&buf, h, 4))

	data := buf.Bytes()
	require.Equal(t, TagStartB, data[0])
	require.Equal(t, []byte{1, 1, 1, 1, 1, 1, 1, 1}, data[1:9])
	require.Equal(t, []byte{0, 0, 0, 0}, data[9:13])
}

func TestWriteContentNoECC(t *testing.T) {
	var buf bytes.Buffer
	hasher := &fakeHasher{}
	require.NoError(t, WriteContent(&buf, testConfig(4), []byte{1, 2, 3}, false, hasher))
	require.Equal(t, []byte{1, 2, 3}, buf.Bytes())
	require.Equal(t, []byte{1, 2, 3}, hasher.data)
}

func TestWriteContentWithECCPrependsParity(t *testing.T) {
	var buf bytes.Buffer
	hasher := &fakeHasher{}
	require.NoError(t, WriteContent(&buf, testConfig(4), []byte{1, 2, 3}, true, hasher))

	parity := Encode([]byte{1, 2, 3}, 4)
	want := append(append([]byte{}, parity...), 1, 2, 3)
	require.Equal(t, want, buf.Bytes())
	// the block hash covers the parity bytes too, not just the data
	require.Equal(t, want, hasher.data)
}

func TestWriteAtomicBlockLayout(t *testing.T) {
	cfg := testConfig(4)
	var buf bytes.Buffer
	content := make([]byte, 10)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, WriteAtomicBlock(&buf, cfg, 1, content, false, false, nil, 2))

	data := buf.Bytes()
	require.Equal(t, TagStartA, data[0])
	payloadLen := getUint32LE(data[9:13])
	require.Equal(t, uint32(10), payloadLen)

	contentStart := HeaderLen + cfg.ECCLen
	require.Equal(t, content, data[contentStart:contentStart+10])
	require.Equal(t, TagEnd, data[contentStart+10])
}

func TestWriteAtomicBlockWithECCAndCompression(t *testing.T) {
	cfg := Config{ECCLen: 4, NewHasher: func() Hasher { return NewBLAKE3Hasher() }, Compressor: NewZstdCompressor(0)}
	var buf bytes.Buffer
	content := bytes.Repeat([]byte{0xAB}, 200)
	require.NoError(t, WriteAtomicBlock(&buf, cfg, 1, content, true, true, nil, 2))

	data := buf.Bytes()
	require.Equal(t, TagStartA|FlagHasECC|FlagIsComp, data[0])
}

func TestWriteBBlockThenContentComponents(t *testing.T) {
	cfg := testConfig(4)
	var buf bytes.Buffer
	require.NoError(t, WriteBBlockStart(&buf, cfg, 0))

	hasher := cfg.NewHasher()
	n, isComp, err := WriteContentComponent(&buf, cfg, true, false, 5, []byte("hello"), hasher)
	require.NoError(t, err)
	require.False(t, isComp)
	require.Equal(t, 5, n)

	data := buf.Bytes()
	require.Equal(t, TagStartB, data[0])
	componentTag := data[HeaderLen+cfg.ECCLen]
	require.Equal(t, TagContent|FlagHasECC, componentTag)
}
