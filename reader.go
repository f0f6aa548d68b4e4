package docufort

import "io"

// ReadContentHeader reads a content component's header, corrects any
// correctable errors, folds the (corrected) header bytes into hasher,
// and — mirroring readAndRewriteHeader/rewriteMagicFrame — writes the
// corrected bytes back in place so the correction converges instead of
// being re-derived on every subsequent pass. startPos is the absolute
// offset rw is positioned at when called.
func ReadContentHeader(rw ReadWriteSeeker, cfg Config, startPos uint64, hasher Hasher) (ComponentHeader, error) {
	buf := make([]byte, HeaderLen+cfg.ECCLen)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return ComponentHeader{}, classifyEOF(err, "read content header")
	}
	if cfg.ECCLen > 0 {
		n, err := DecodeInPlace(buf, cfg.ECCLen)
		if err != nil {
			return ComponentHeader{}, err
		}
		if n > 0 {
			if _, err := rw.Seek(int64(startPos), io.SeekStart); err != nil {
				return ComponentHeader{}, err
			}
			if _, err := rw.Write(buf); err != nil {
				return ComponentHeader{}, err
			}
		}
	}
	hasher.Update(buf)
	return parseComponentHeader(buf[:HeaderLen], startPos), nil
}

// ReadHash reads a block-end hash and its ECC parity, correcting any
// correctable errors.
func ReadHash(r io.Reader, cfg Config) ([HashLen]byte, error) {
	buf := make([]byte, HashLen+cfg.ECCLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return [HashLen]byte{}, classifyEOF(err, "read hash")
	}
	if cfg.ECCLen > 0 {
		if _, err := DecodeInPlace(buf, cfg.ECCLen); err != nil {
			return [HashLen]byte{}, err
		}
	}
	var out [HashLen]byte
	copy(out[:], buf[:HashLen])
	return out, nil
}

// bufferHash streams numBytes from r into hasher without retaining
// them, the original's buffer_hash: used when the caller only wants the
// hash contribution of a content region, not its bytes.
func bufferHash(r io.Reader, numBytes int, hasher Hasher) error {
	const bufLen = 4096
	buf := make([]byte, bufLen)
	for numBytes > 0 {
		want := bufLen
		if numBytes < want {
			want = numBytes
		}
		n, err := r.Read(buf[:want])
		if n > 0 {
			hasher.Update(buf[:n])
		}
		if n == 0 {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return classifyEOF(err, "buffer hash")
		}
		numBytes -= n
	}
	return nil
}

// ReadContent streams a content region, correcting chunked ECC errors
// in place when errorCorrect is true and r also implements io.Writer +
// io.Seeker, and always folding the (corrected) parity and content
// bytes into hasher. r's position must be at the start of the region
// (its ECC parity, if any, precedes the data). This never aborts on an
// uncorrectable chunk — those chunks are reported as CorruptChunk
// entries converted to CorruptDataSegment by the caller, and the
// original on-disk bytes are left untouched for that chunk.
func ReadContent(rw ReadWriteSeeker, cfg Config, content Content, errorCorrect bool, hasher Hasher) (int, []CorruptChunk, error) {
	eccLen := 0
	if content.ECC {
		eccLen = ParityLength(int(content.DataLen), cfg.ECCLen)
	}
	toRead := int(content.DataLen) + eccLen
	cursorStart := content.DataStart - uint64(eccLen)

	if _, err := rw.Seek(int64(cursorStart), io.SeekStart); err != nil {
		return 0, nil, err
	}

	if !content.ECC || !errorCorrect {
		if err := bufferHash(rw, toRead, hasher); err != nil {
			return 0, nil, err
		}
		return 0, nil, nil
	}

	region := make([]byte, toRead)
	if _, err := io.ReadFull(rw, region); err != nil {
		return 0, nil, classifyEOF(err, "read content region")
	}
	errs, corrupt, err := DecodeChunkedInPlace(region, cfg.ECCLen)
	if err != nil {
		return 0, nil, err
	}
	if errs > 0 {
		if _, err := rw.Seek(int64(cursorStart), io.SeekStart); err != nil {
			return 0, nil, err
		}
		if _, err := rw.Write(region); err != nil {
			return 0, nil, err
		}
	}
	// the block hash covers the parity bytes too, matching WriteContent.
	hasher.Update(region)
	return errs, corrupt, nil
}

// BlockMiddleState is the outcome of reading the content components of
// a best-effort block up to (and possibly including) its end header.
type BlockMiddleState struct {
	// Kind is one of "invalid", "eof", "corruption", "closed".
	Kind string

	// Valid when Kind == "invalid" or "eof".
	LastGoodComponentEnd uint64
	// Valid when Kind == "eof".
	HashAtLastGoodComponent [HashLen]byte
	Content                 []HeaderContent

	// Valid when Kind == "corruption".
	ComponentStart uint64
	ComponentTag   ComponentTag

	// Valid when Kind == "closed".
	End                   ComponentHeader
	Hash                  ComponentHeader
	BlockHash             [HashLen]byte
	ErrorsCorrected       int
	CorruptedContentBlocks []CorruptDataSegment
}

// HeaderContent pairs a content component's header with its derived
// Content descriptor.
type HeaderContent struct {
	Header  ComponentHeader
	Content Content
}

// ReadBlockMiddle reads all content components of a best-effort block,
// starting right after the B-block start header, up to and including
// its end header + hash. It never returns a Go error for expected
// structural conditions (EOF mid-block, header corruption); those are
// reported via BlockMiddleState.Kind, matching the original's
// read_block_middle contract of folding those outcomes into its return
// value rather than surfacing them as errors.
func ReadBlockMiddle(rw ReadWriteSeeker, cfg Config, errorCorrectHeader, errorCorrectContent bool) (BlockMiddleState, error) {
	var middle []HeaderContent
	errorsCorrected := 0
	hasher := cfg.NewHasher()
	var corrupted []CorruptDataSegment

	for {
		lastGoodEndI, err := rw.Seek(0, io.SeekCurrent)
		if err != nil {
			return BlockMiddleState{}, err
		}
		lastGoodEnd := uint64(lastGoodEndI)
		hashAtLastGood := hasher.Finalize()

		header, err := readHeaderForMiddle(rw, cfg, errorCorrectHeader, hasher, uint64(lastGoodEnd))
		if err == io.EOF || err == ErrUnexpectedEOF {
			return BlockMiddleState{Kind: "eof", LastGoodComponentEnd: lastGoodEnd, HashAtLastGoodComponent: hashAtLastGood, Content: middle}, nil
		}
		if err == ErrTooManyErrors {
			return BlockMiddleState{Kind: "corruption", ComponentStart: lastGoodEnd, ComponentTag: ComponentHeaderGeneric}, nil
		}
		if err != nil {
			return BlockMiddleState{}, err
		}
		header.StartPos = lastGoodEnd

		switch header.blockTag() {
		case TagStartA, TagStartB:
			return BlockMiddleState{Kind: "invalid", LastGoodComponentEnd: lastGoodEnd}, nil
		case TagContent:
			content := header.AsContent(cfg.ECCLen)
			if _, err := rw.Seek(int64(content.DataStart)-int64(contentECCLen(content, cfg)), io.SeekStart); err != nil {
				return BlockMiddleState{}, err
			}
			errs, cc, err := ReadContent(rw, cfg, content, errorCorrectContent, hasher)
			if err == ErrUnexpectedEOF {
				return BlockMiddleState{Kind: "eof", LastGoodComponentEnd: lastGoodEnd, HashAtLastGoodComponent: hashAtLastGood, Content: middle}, nil
			}
			if err != nil {
				return BlockMiddleState{}, err
			}
			errorsCorrected += errs
			if !content.ECC && errorCorrectContent {
				corrupted = append(corrupted, CorruptDataSegment{Kind: "maybe-corrupt", DataStart: content.DataStart, DataLen: content.DataLen})
			} else {
				regionStart := content.DataStart - uint64(contentECCLen(content, cfg))
				for _, c := range cc {
					corrupted = append(corrupted, CorruptDataSegment{
						Kind: "ecc-chunk", DataStart: content.DataStart, DataLen: content.DataLen,
						ChunkStart: regionStart + uint64(c.DataStart), ChunkECCStart: regionStart + uint64(c.ECCStart),
					})
				}
			}
			middle = append(middle, HeaderContent{Header: header, Content: content})
		case TagEnd:
			hash, err := ReadHash(rw, cfg)
			if err == ErrUnexpectedEOF {
				return BlockMiddleState{Kind: "eof", LastGoodComponentEnd: lastGoodEnd, HashAtLastGoodComponent: hashAtLastGood, Content: middle}, nil
			}
			if err == ErrTooManyErrors {
				return BlockMiddleState{Kind: "corruption", ComponentStart: lastGoodEnd, ComponentTag: ComponentHash}, nil
			}
			if err != nil {
				return BlockMiddleState{}, err
			}
			if hash == hashAtLastGood && errorCorrectContent {
				corrupted = nil
			}
			return BlockMiddleState{
				Kind: "closed", End: header, BlockHash: hashAtLastGood,
				ErrorsCorrected: errorsCorrected, CorruptedContentBlocks: corrupted, Content: middle,
			}, nil
		}
	}
}

func contentECCLen(c Content, cfg Config) int {
	if !c.ECC {
		return 0
	}
	return ParityLength(int(c.DataLen), cfg.ECCLen)
}

func readHeaderForMiddle(rw ReadWriteSeeker, cfg Config, errorCorrect bool, hasher Hasher, pos uint64) (ComponentHeader, error) {
	if errorCorrect {
		return ReadContentHeader(rw, cfg, pos, hasher)
	}
	buf := make([]byte, HeaderLen+cfg.ECCLen)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return ComponentHeader{}, classifyEOF(err, "read content header")
	}
	hasher.Update(buf)
	return parseComponentHeader(buf[:HeaderLen], pos), nil
}
