package docufort

import (
	"io"

	"github.com/pkg/errors"
)

// BlockReadSummary is the outcome of a fully closed block read.
type BlockReadSummary struct {
	ErrorsCorrected        int
	IsAtomic               bool
	Start                  ComponentHeader
	AtomicContent          Content
	Middle                 []HeaderContent
	End                    ComponentHeader
	BlockStart             uint64
	BlockStartTimestamp    uint64
	HashAsRead             [HashLen]byte
	EndHash                [HashLen]byte
	CorruptedContentBlocks []CorruptDataSegment
}

// BlockState is a tagged union describing the outcome of trying to read
// one block, starting right after its magic frame. Exactly one set of
// fields is meaningful, selected by Kind.
type BlockState struct {
	Kind string // "closed", "invalid", "openA", "openB", "incompleteStart", "probablyNotStart", "dataCorruption"

	Closed BlockReadSummary

	// "invalid"
	EndOfLastGoodComponent uint64
	Info                   string

	// "openA", "incompleteStart"
	TruncateAt uint64

	// "openB"
	OpenBHash    [HashLen]byte
	OpenBContent []HeaderContent

	// "probablyNotStart"
	StartFrom uint64

	// "dataCorruption"
	ComponentStart uint64
	IsBBlock       bool
	ComponentTag   ComponentTag
}

func (s BlockState) IsClosed() bool { return s.Kind == "closed" }
func (s BlockState) IsOpenA() bool  { return s.Kind == "openA" }
func (s BlockState) IsOpenB() bool  { return s.Kind == "openB" }

// FindBlockStart walks backward from the reader's current position
// looking for the highest-offset byte range that decodes to a valid
// (possibly ECC-corrected) magic frame, per spec's backward-scan
// tie-break decision: the first (highest-offset) match wins. Returns
// the offset just after that magic frame (i.e. where the block's start
// header would begin), or FileHeaderLen if none is found before that
// point (the file has no blocks).
func FindBlockStart(rw ReadWriteSeeker, cfg Config) (uint64, error) {
	frameLen := uint64(MagicFrameLen(cfg.ECCLen))
	startPosI, err := rw.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	startPos := uint64(startPosI)
	if startPos == uint64(FileHeaderLen) {
		return uint64(FileHeaderLen), nil
	}
	minSize := uint64(FileHeaderLen) + frameLen
	if startPos > uint64(FileHeaderLen) && startPos < minSize {
		return uint64(FileHeaderLen), nil
	}
	if startPos < minSize {
		return 0, errors.New("docufort: file is too small")
	}

	buf := make([]byte, frameLen)
	endIndex := startPos - frameLen
	for idx := endIndex; ; idx-- {
		if _, err := rw.Seek(int64(idx), io.SeekStart); err != nil {
			return 0, err
		}
		if _, err := io.ReadFull(rw, buf); err != nil {
			return 0, err
		}
		scratch := make([]byte, len(buf))
		copy(scratch, buf)
		if _, err := DecodeInPlace(scratch, cfg.ECCLen); err == nil && string(scratch[:len(MagicNumber)]) == string(MagicNumber[:]) {
			return idx + frameLen, nil
		}
		if idx == uint64(FileHeaderLen) {
			break
		}
	}
	return uint64(FileHeaderLen), nil
}

// TryReadBlock reads one block starting right after a magic frame
// (reader positioned at the start header), classifying every expected
// failure mode as a BlockState instead of a Go error — an unexpected
// structural error still surfaces as err.
func TryReadBlock(rw ReadWriteSeeker, cfg Config, errorCorrectHeader, errorCorrectContent bool) (BlockState, error) {
	frameLen := uint64(MagicFrameLen(cfg.ECCLen))
	blockStartI, err := rw.Seek(0, io.SeekCurrent)
	if err != nil {
		return BlockState{}, err
	}
	blockStart := uint64(blockStartI)
	hasher := cfg.NewHasher()

	start, errorsCorrected, err := readHeaderAt(rw, cfg, blockStart, errorCorrectHeader)
	if err == ErrUnexpectedEOF {
		return BlockState{Kind: "incompleteStart", TruncateAt: blockStart - frameLen}, nil
	}
	if err == ErrTooManyErrors {
		return BlockState{Kind: "probablyNotStart", StartFrom: blockStart}, nil
	}
	if err != nil {
		return BlockState{}, err
	}

	switch start.blockTag() {
	case TagStartA:
		content := start.AsContent(cfg.ECCLen)
		if _, serr := rw.Seek(int64(content.DataStart)-int64(contentECCLen(content, cfg)), io.SeekStart); serr != nil {
			return BlockState{}, serr
		}
		errs, cc, cerr := ReadContent(rw, cfg, content, errorCorrectContent, hasher)
		if cerr == ErrUnexpectedEOF {
			return BlockState{Kind: "openA", TruncateAt: blockStart - frameLen}, nil
		}
		if cerr != nil {
			return BlockState{}, cerr
		}
		errorsCorrected += errs
		var corrupted []CorruptDataSegment
		regionStart := content.DataStart - uint64(contentECCLen(content, cfg))
		for _, c := range cc {
			corrupted = append(corrupted, CorruptDataSegment{
				Kind: "ecc-chunk", DataStart: content.DataStart, DataLen: content.DataLen,
				ChunkStart: regionStart + uint64(c.DataStart), ChunkECCStart: regionStart + uint64(c.ECCStart),
			})
		}

		endPosI, _ := rw.Seek(0, io.SeekCurrent)
		endPos := uint64(endPosI)
		endHeader, endErrs, eerr := readHeaderAt(rw, cfg, endPos, errorCorrectHeader)
		if eerr == ErrUnexpectedEOF {
			return BlockState{Kind: "openA", TruncateAt: blockStart - frameLen}, nil
		}
		if eerr == ErrTooManyErrors {
			return BlockState{Kind: "dataCorruption", ComponentStart: endPos, IsBBlock: false, ComponentTag: ComponentEndHeader}, nil
		}
		if eerr != nil {
			return BlockState{}, eerr
		}
		errorsCorrected += endErrs
		if endHeader.blockTag() != TagEnd {
			return BlockState{Kind: "invalid", EndOfLastGoodComponent: blockStart, Info: "did not find block end at correct position"}, nil
		}
		hashPosI, _ := rw.Seek(0, io.SeekCurrent)
		hashPos := uint64(hashPosI)
		hash, herr := ReadHash(rw, cfg)
		if herr == ErrUnexpectedEOF {
			return BlockState{Kind: "openA", TruncateAt: blockStart - frameLen}, nil
		}
		if herr == ErrTooManyErrors {
			return BlockState{Kind: "dataCorruption", ComponentStart: hashPos, IsBBlock: false, ComponentTag: ComponentHash}, nil
		}
		if herr != nil {
			return BlockState{}, herr
		}
		hashAsRead := hasher.Finalize()
		if !content.ECC && hashAsRead != hash && errorCorrectContent {
			corrupted = append(corrupted, CorruptDataSegment{Kind: "corrupt", DataStart: content.DataStart, DataLen: content.DataLen})
		}
		return BlockState{Kind: "closed", Closed: BlockReadSummary{
			ErrorsCorrected: errorsCorrected, IsAtomic: true, Start: start, AtomicContent: content,
			End: endHeader, BlockStart: blockStart, BlockStartTimestamp: start.Timestamp,
			HashAsRead: hashAsRead, EndHash: hash, CorruptedContentBlocks: corrupted,
		}}, nil

	case TagStartB:
		mid, merr := ReadBlockMiddle(rw, cfg, errorCorrectHeader, errorCorrectContent)
		if merr != nil {
			return BlockState{}, merr
		}
		switch mid.Kind {
		case "closed":
			return BlockState{Kind: "closed", Closed: BlockReadSummary{
				ErrorsCorrected: errorsCorrected + mid.ErrorsCorrected, IsAtomic: false, Start: start,
				Middle: mid.Content, End: mid.End, BlockStart: blockStart, BlockStartTimestamp: start.Timestamp,
				HashAsRead: mid.BlockHash, EndHash: mid.BlockHash, CorruptedContentBlocks: mid.CorruptedContentBlocks,
			}}, nil
		case "invalid":
			return BlockState{Kind: "invalid", EndOfLastGoodComponent: mid.LastGoodComponentEnd, Info: "found a block-start tag inside a best-effort block"}, nil
		case "eof":
			return BlockState{Kind: "openB", TruncateAt: mid.LastGoodComponentEnd, OpenBHash: mid.HashAtLastGoodComponent, OpenBContent: mid.Content}, nil
		case "corruption":
			return BlockState{Kind: "dataCorruption", ComponentStart: mid.ComponentStart, IsBBlock: true, ComponentTag: mid.ComponentTag}, nil
		}
		return BlockState{}, ErrInvalidBlockStructure

	case TagContent:
		return BlockState{Kind: "invalid", EndOfLastGoodComponent: blockStart, Info: "found a content component, expected a block start"}, nil
	case TagEnd:
		return BlockState{Kind: "invalid", EndOfLastGoodComponent: blockStart, Info: "found a block end, expected a block start"}, nil
	}
	return BlockState{}, ErrInvalidBlockStructure
}

func readHeaderAt(rw ReadWriteSeeker, cfg Config, pos uint64, errorCorrect bool) (ComponentHeader, int, error) {
	if _, err := rw.Seek(int64(pos), io.SeekStart); err != nil {
		return ComponentHeader{}, 0, err
	}
	if errorCorrect {
		return readAndRewriteHeader(rw, cfg, pos)
	}
	h, err := ReadHeader(rw, cfg.ECCLen, pos)
	return h, 0, err
}

// readAndRewriteHeader reads a header and, if ECC corrected any bytes,
// writes the corrected bytes back in place — the original's
// self-healing read_header. It returns the number of bytes corrected.
func readAndRewriteHeader(rw ReadWriteSeeker, cfg Config, pos uint64) (ComponentHeader, int, error) {
	buf := make([]byte, HeaderLen+cfg.ECCLen)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return ComponentHeader{}, 0, classifyEOF(err, "read header")
	}
	n := 0
	if cfg.ECCLen > 0 {
		var err error
		n, err = DecodeInPlace(buf, cfg.ECCLen)
		if err != nil {
			return ComponentHeader{}, 0, err
		}
		if n > 0 {
			if _, err := rw.Seek(int64(pos), io.SeekStart); err != nil {
				return ComponentHeader{}, 0, err
			}
			if _, err := rw.Write(buf); err != nil {
				return ComponentHeader{}, 0, err
			}
		}
	}
	return parseComponentHeader(buf[:HeaderLen], pos), n, nil
}

// TailRecoverySummary reports what RecoverTail found and did.
type TailRecoverySummary struct {
	OriginalFileLen        uint64
	RecoveredFileLen        uint64
	FileOps                []TailOp
	HasBlocks               bool
	TotErrorsCorrected      int
	CorruptedContentBlocks  []CorruptDataSegment
}

// TailOp records one attempt RecoverTail made at a given block offset.
type TailOp struct {
	Offset uint64
	State  BlockState
}

// RecoverTail walks backward from the end of the file looking for the
// last clean block boundary, truncating or (for an interrupted
// best-effort block) synthesizing a closing end-header as needed. It
// never repairs a block whose *content* is corrupted beyond ECC's
// ability — only structural / header-level damage is healed, per the
// forward-only recovery contract.
func RecoverTail(f ReadWriteSeekTruncater, cfg Config, now func() uint64) (TailRecoverySummary, error) {
	originalLen, err := fileLen(f)
	if err != nil {
		return TailRecoverySummary{}, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return TailRecoverySummary{}, err
	}

	var fileOps []TailOp
	totErrors := 0
	errorCorrectContent := false
	var otherStart *uint64

	for {
		currentLen, err := fileLen(f)
		if err != nil {
			return TailRecoverySummary{}, err
		}
		if otherStart != nil {
			if _, err := f.Seek(int64(*otherStart), io.SeekStart); err != nil {
				return TailRecoverySummary{}, err
			}
			otherStart = nil
		}
		blockStartOffset, err := FindBlockStart(f, cfg)
		if err != nil {
			return TailRecoverySummary{}, err
		}
		if blockStartOffset <= uint64(FileHeaderLen) {
			return TailRecoverySummary{
				OriginalFileLen: originalLen, RecoveredFileLen: currentLen, FileOps: fileOps,
				HasBlocks: false, TotErrorsCorrected: totErrors,
			}, nil
		}
		if _, err := f.Seek(int64(blockStartOffset), io.SeekStart); err != nil {
			return TailRecoverySummary{}, err
		}
		bs, err := TryReadBlock(f, cfg, true, errorCorrectContent)
		if err != nil {
			return TailRecoverySummary{}, err
		}
		cursorPos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return TailRecoverySummary{}, err
		}
		fileOps = append(fileOps, TailOp{Offset: blockStartOffset, State: bs})

		switch bs.Kind {
		case "probablyNotStart":
			v := bs.StartFrom
			otherStart = &v
		case "closed":
			totErrors += bs.Closed.ErrorsCorrected
			if !errorCorrectContent && bs.Closed.HashAsRead != bs.Closed.EndHash {
				errorCorrectContent = true
				continue
			}
			if uint64(cursorPos) < currentLen {
				if err := f.Truncate(cursorPos); err != nil {
					return TailRecoverySummary{}, err
				}
			}
			return TailRecoverySummary{
				OriginalFileLen: originalLen, RecoveredFileLen: uint64(cursorPos), FileOps: fileOps,
				HasBlocks: true, TotErrorsCorrected: totErrors,
				CorruptedContentBlocks: bs.Closed.CorruptedContentBlocks,
			}, nil
		case "openB":
			if err := f.Truncate(int64(bs.TruncateAt)); err != nil {
				return TailRecoverySummary{}, err
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return TailRecoverySummary{}, err
			}
			endHeader := NewComponentHeader(TagEnd, now(), 0)
			if err := WriteBlockEnd(f, cfg, endHeader, bs.OpenBHash); err != nil {
				return TailRecoverySummary{}, err
			}
			continue
		case "openA":
			if err := f.Truncate(int64(bs.TruncateAt)); err != nil {
				return TailRecoverySummary{}, err
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return TailRecoverySummary{}, err
			}
			errorCorrectContent = false
			continue
		case "invalid":
			if err := f.Truncate(int64(bs.EndOfLastGoodComponent)); err != nil {
				return TailRecoverySummary{}, err
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return TailRecoverySummary{}, err
			}
			errorCorrectContent = false
			continue
		case "dataCorruption":
			if err := f.Truncate(int64(bs.ComponentStart)); err != nil {
				return TailRecoverySummary{}, err
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return TailRecoverySummary{}, err
			}
			errorCorrectContent = false
			continue
		case "incompleteStart":
			if err := f.Truncate(int64(bs.TruncateAt)); err != nil {
				return TailRecoverySummary{}, err
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return TailRecoverySummary{}, err
			}
			errorCorrectContent = false
			continue
		}
	}
}

// ReadWriteSeekTruncater is what RecoverTail needs: a seekable
// read/write stream that can also be shrunk. *os.File satisfies it.
type ReadWriteSeekTruncater interface {
	ReadWriteSeeker
	Truncate(size int64) error
}

func fileLen(f ReadWriteSeekTruncater) (uint64, error) {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return uint64(end), nil
}
