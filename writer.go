package docufort

import "io"

// hashingWriter forwards writes to an underlying writer while folding
// every written byte into a Hasher, the original's HashAdapter.
type hashingWriter struct {
	w io.Writer
	h Hasher
}

func (hw hashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		hw.h.Update(p[:n])
	}
	return n, err
}

// WriteContentHeader computes the tag for a content component (always
// TagContent plus modifier bits) and writes it, folding header bytes
// into hasher.
func WriteContentHeader(w io.Writer, cfg Config, dataLen uint32, hasECC, isComp bool, timestamp uint64, hasher Hasher) error {
	tag := TagContent
	if hasECC {
		tag |= FlagHasECC
	}
	if isComp {
		tag |= FlagIsComp
	}
	h := NewComponentHeader(tag, timestamp, dataLen)
	hw := hashingWriter{w: w, h: hasher}
	return WriteHeader(hw, h, cfg.ECCLen)
}

// WriteContent writes raw content bytes, optionally prepending chunked
// ECC parity, and folds both the parity and the content into hasher —
// the block hash covers every byte of the component on disk. Callers
// are responsible for having already compressed the content, if
// requested; this function only frames and protects the bytes given.
func WriteContent(w io.Writer, cfg Config, content []byte, calcECC bool, hasher Hasher) error {
	hw := hashingWriter{w: w, h: hasher}
	if calcECC {
		parity := EncodeChunks(content, cfg.ECCLen)
		if _, err := hw.Write(parity); err != nil {
			return classifyEOF(err, "write content ecc")
		}
	}
	if _, err := hw.Write(content); err != nil {
		return classifyEOF(err, "write content")
	}
	return nil
}

// WriteBlockHash writes a block's hash and its ECC parity.
func WriteBlockHash(w io.Writer, cfg Config, hash [HashLen]byte) error {
	if _, err := w.Write(hash[:]); err != nil {
		return classifyEOF(err, "write block hash")
	}
	if cfg.ECCLen > 0 {
		parity := Encode(hash[:], cfg.ECCLen)
		if _, err := w.Write(parity); err != nil {
			return classifyEOF(err, "write block hash ecc")
		}
	}
	return nil
}

// WriteBlockEnd writes an end-block header followed by the block hash.
func WriteBlockEnd(w io.Writer, cfg Config, header ComponentHeader, hash [HashLen]byte) error {
	if err := WriteHeader(w, header, cfg.ECCLen); err != nil {
		return err
	}
	return WriteBlockHash(w, cfg, hash)
}

// maybeCompress applies cfg.Compressor to content if requested, per the
// shrink-or-discard contract: compressed output is kept only if
// strictly smaller than the input, otherwise the original bytes are
// used uncompressed.
func maybeCompress(cfg Config, content []byte, compress bool) (out []byte, isCompressed bool) {
	if !compress || cfg.Compressor == nil {
		return content, false
	}
	compressed, ok := cfg.Compressor.Compress(content)
	if !ok {
		return content, false
	}
	return compressed, true
}

// WriteContentComponent writes a header+content pair for a best-effort
// block, optionally compressing and/or ECC-protecting the content, and
// folds everything written into hasher. It returns the on-disk length
// of the content written and whether it ended up compressed.
func WriteContentComponent(w io.Writer, cfg Config, calcECC, compress bool, timestamp uint64, content []byte, hasher Hasher) (int, bool, error) {
	toWrite, isComp := maybeCompress(cfg, content, compress)
	if err := WriteContentHeader(w, cfg, uint32(len(toWrite)), calcECC, isComp, timestamp, hasher); err != nil {
		return 0, false, err
	}
	if err := WriteContent(w, cfg, toWrite, calcECC, hasher); err != nil {
		return 0, false, err
	}
	return len(toWrite), isComp, nil
}

// WriteAtomicBlock writes a full A-block: start header, single content
// blob, and end header+hash. If endHeader is nil, a default EndBlock
// header is synthesized with the given writer clock. The magic frame
// preceding the block is NOT written by this function — callers write
// it (or rely on the previous block's close) so that retry and recovery
// logic can reason about magic frames uniformly.
func WriteAtomicBlock(w io.Writer, cfg Config, startTimestamp uint64, content []byte, calcECC, compress bool, endHeader *ComponentHeader, endTimestamp uint64) error {
	hasher := cfg.NewHasher()
	toWrite, isComp := maybeCompress(cfg, content, compress)

	tag := TagStartA
	if calcECC {
		tag |= FlagHasECC
	}
	if isComp {
		tag |= FlagIsComp
	}
	startHeader := NewComponentHeader(tag, startTimestamp, uint32(len(toWrite)))
	if err := WriteHeader(w, startHeader, cfg.ECCLen); err != nil {
		return err
	}
	if err := WriteContent(w, cfg, toWrite, calcECC, hasher); err != nil {
		return err
	}
	hash := hasher.Finalize()

	if endHeader != nil {
		if endHeader.blockTag() != TagEnd {
			return ErrInvalidBlockStructure
		}
		return WriteBlockEnd(w, cfg, *endHeader, hash)
	}
	h := NewComponentHeader(TagEnd, endTimestamp, 0)
	return WriteBlockEnd(w, cfg, h, hash)
}

// WriteBBlockStart writes the start header of a best-effort block. The
// caller follows with one or more WriteContentComponent calls and a
// final WriteBlockEnd.
func WriteBBlockStart(w io.Writer, cfg Config, timestamp uint64) error {
	h := NewComponentHeader(TagStartB, timestamp, 0)
	return WriteHeader(w, h, cfg.ECCLen)
}
