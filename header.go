package docufort

import "io"

// ComponentHeader is the fixed-length header that precedes every
// component (block start, content, block end): a tag byte, an opaque
// big-endian timestamp, and a little-endian payload length whose
// meaning depends on the tag. The header itself always carries its own
// ECC parity on disk, independent of whether the content it describes
// does.
type ComponentHeader struct {
	Tag        byte
	Timestamp  uint64
	PayloadLen uint32

	// StartPos is the on-disk offset of this header's first byte. It is
	// populated by ReadHeader/recovery for bookkeeping and is zero for
	// headers constructed purely for writing.
	StartPos uint64
}

// NewComponentHeader builds a header for writing. Use PayloadLen 0 for
// tags that don't carry a length (e.g. TagStartB, TagEnd).
func NewComponentHeader(tag byte, timestamp uint64, payloadLen uint32) ComponentHeader {
	return ComponentHeader{Tag: tag, Timestamp: timestamp, PayloadLen: payloadLen}
}

// Bytes encodes the header's on-disk representation (without ECC).
func (h ComponentHeader) Bytes() [HeaderLen]byte {
	var b [HeaderLen]byte
	b[0] = h.Tag
	putUint64(b[1:9], h.Timestamp)
	putUint32LE(b[9:13], h.PayloadLen)
	return b
}

// blockTag reports which block-start tag family this header's tag
// belongs to, masking off the ECC/compression modifier bits.
func (h ComponentHeader) blockTag() byte { return h.Tag &^ (FlagHasECC | FlagIsComp) }

func (h ComponentHeader) HasECC() bool    { return h.Tag&FlagHasECC != 0 }
func (h ComponentHeader) IsCompressed() bool { return h.Tag&FlagIsComp != 0 }

func parseComponentHeader(b []byte, startPos uint64) ComponentHeader {
	return ComponentHeader{
		Tag:        b[0],
		Timestamp:  getUint64(b[1:9]),
		PayloadLen: getUint32LE(b[9:13]),
		StartPos:   startPos,
	}
}

// Content describes where a component's payload bytes live on disk and
// how to interpret them, derived from a header plus the file's ECC
// length: the original's HeaderAsContent/Content.
type Content struct {
	// DataLen is the on-disk length of the payload (post-compression,
	// pre-ECC-chunking).
	DataLen uint32
	// DataStart is the absolute file offset of the first payload byte,
	// after any ECC parity prepended to it.
	DataStart uint64
	// ECC reports whether the payload itself (not just the header) is
	// protected by chunked Reed-Solomon parity.
	ECC bool
	// Compressed reports whether the payload is zstd-compressed; if so,
	// its first 4 bytes (big-endian) give the uncompressed length.
	Compressed bool
}

// AsContent derives the Content descriptor implied by this header,
// given the file's configured ECC length.
func (h ComponentHeader) AsContent(eccLen int) Content {
	endPos := h.StartPos + uint64(HeaderLen+eccLen)
	dataStart := endPos
	hasECC := h.HasECC()
	if hasECC {
		dataStart += uint64(ParityLength(int(h.PayloadLen), eccLen))
	}
	return Content{
		DataLen:    h.PayloadLen,
		DataStart:  dataStart,
		ECC:        hasECC,
		Compressed: h.IsCompressed(),
	}
}

// WriteHeader writes a header and its ECC parity.
func WriteHeader(w io.Writer, h ComponentHeader, eccLen int) error {
	b := h.Bytes()
	if _, err := w.Write(b[:]); err != nil {
		return classifyEOF(err, "write header")
	}
	if eccLen > 0 {
		parity := Encode(b[:], eccLen)
		if _, err := w.Write(parity); err != nil {
			return classifyEOF(err, "write header ecc")
		}
	}
	return nil
}

// ReadHeader reads a header plus its ECC parity at the given stream
// position, corrects any byte errors the parity can fix, and returns
// the decoded header. startPos is the absolute file offset the header
// begins at (used only for Content/recovery bookkeeping).
func ReadHeader(r io.Reader, eccLen int, startPos uint64) (ComponentHeader, error) {
	buf := make([]byte, HeaderLen+eccLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ComponentHeader{}, classifyEOF(err, "read header")
	}
	if eccLen > 0 {
		if _, err := DecodeInPlace(buf, eccLen); err != nil {
			return ComponentHeader{}, err
		}
	}
	return parseComponentHeader(buf[:HeaderLen], startPos), nil
}
