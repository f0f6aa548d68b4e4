package docufort

import "io"

// IntegrityCheckOk is the outcome of a full forward integrity scan.
type IntegrityCheckOk struct {
	LastBlockState      *BlockState
	ErrorsCorrected     int
	DataContents        uint64
	NumBlocks           int
	FileLenChecked      uint64
	CorruptedSegments   []CorruptDataSegment
	BlockTimes          []BlockTime
}

// BlockTime pairs a block's start offset with the timestamp found in
// its start header.
type BlockTime struct {
	Offset    uint64
	Timestamp uint64
}

// IntegrityErr classifies why a forward scan stopped early. Only
// FileConfigMismatch, Corruption, and InvalidBlockStructure represent
// scan-ending problems; a clean scan returns IntegrityCheckOk with a nil
// error, even if it stopped at an open trailing block (that's an
// expected condition recovery exists to fix, not a scan failure).
type IntegrityErr struct {
	Kind           string // "corruption", "invalidStructure", "configMismatch", "other"
	Offset         uint64
	ComponentTag   ComponentTag
	Err            error
}

func (e *IntegrityErr) Error() string {
	switch e.Kind {
	case "corruption":
		return "docufort: corruption detected at offset beyond ECC correction"
	case "invalidStructure":
		return "docufort: invalid block structure encountered during integrity scan"
	case "configMismatch":
		return "docufort: file header does not match configuration"
	default:
		return "docufort: integrity scan error: " + e.Err.Error()
	}
}

func (e *IntegrityErr) Unwrap() error { return e.Err }

// IntegrityCheckFile performs a forward scan of every block in the
// file, verifying each one's hash and ECC-correcting headers (and,
// where requested, content) as it goes. It never aborts on content
// corruption that lacks ECC to fix it — those spots are accumulated
// into CorruptedSegments — but it does stop (with an error) on
// structural corruption it cannot make sense of.
func IntegrityCheckFile(f ReadWriteSeekTruncater, cfg Config) (IntegrityCheckOk, error) {
	fileLenVal, err := fileLen(f)
	if err != nil {
		return IntegrityCheckOk{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return IntegrityCheckOk{}, err
	}
	ok, err := VerifyFileHeader(f, cfg)
	if err != nil {
		return IntegrityCheckOk{}, err
	}
	if !ok {
		return IntegrityCheckOk{}, &IntegrityErr{Kind: "configMismatch"}
	}

	errorsCorrected := 0
	var dataContents uint64
	numBlocks := 0
	var corrupted []CorruptDataSegment
	var blockTimes []BlockTime
	var lastState *BlockState

	for {
		curPosI, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return IntegrityCheckOk{}, err
		}
		curPos := uint64(curPosI)
		mnOk, corrected, mnErr := rewriteMagicFrame(f, cfg.ECCLen)
		afterReadPosI, _ := f.Seek(0, io.SeekCurrent)
		afterReadPos := uint64(afterReadPosI)
		if curPos > fileLenVal || afterReadPos > fileLenVal || mnErr != nil || !mnOk {
			if curPos < fileLenVal {
				fileLenVal = curPos
			}
			break
		}
		errorsCorrected += corrected

		bs, err := TryReadBlock(f, cfg, true, true)
		if err != nil {
			return IntegrityCheckOk{}, err
		}
		lastState = &bs
		switch bs.Kind {
		case "closed":
			errorsCorrected += bs.Closed.ErrorsCorrected
			corrupted = append(corrupted, bs.Closed.CorruptedContentBlocks...)
			if bs.Closed.IsAtomic {
				dataContents += uint64(bs.Closed.AtomicContent.DataLen)
			} else {
				for _, hc := range bs.Closed.Middle {
					dataContents += uint64(hc.Content.DataLen)
				}
			}
			numBlocks++
			blockTimes = append(blockTimes, BlockTime{Offset: bs.Closed.BlockStart, Timestamp: bs.Closed.BlockStartTimestamp})
		case "openA", "openB":
			fileLenVal = bs.TruncateAt
			return IntegrityCheckOk{
				LastBlockState: lastState, ErrorsCorrected: errorsCorrected, DataContents: dataContents,
				NumBlocks: numBlocks, FileLenChecked: fileLenVal, CorruptedSegments: corrupted, BlockTimes: blockTimes,
			}, nil
		case "incompleteStart":
			fileLenVal = bs.TruncateAt
			return IntegrityCheckOk{
				LastBlockState: lastState, ErrorsCorrected: errorsCorrected, DataContents: dataContents,
				NumBlocks: numBlocks, FileLenChecked: fileLenVal, CorruptedSegments: corrupted, BlockTimes: blockTimes,
			}, nil
		case "invalid":
			return IntegrityCheckOk{}, &IntegrityErr{Kind: "invalidStructure", Offset: bs.EndOfLastGoodComponent}
		case "probablyNotStart":
			return IntegrityCheckOk{}, &IntegrityErr{Kind: "corruption", Offset: bs.StartFrom, ComponentTag: ComponentStartHeader}
		case "dataCorruption":
			return IntegrityCheckOk{}, &IntegrityErr{Kind: "corruption", Offset: bs.ComponentStart, ComponentTag: bs.ComponentTag}
		}
	}

	return IntegrityCheckOk{
		LastBlockState: lastState, ErrorsCorrected: errorsCorrected, DataContents: dataContents,
		NumBlocks: numBlocks, FileLenChecked: fileLenVal, CorruptedSegments: corrupted, BlockTimes: blockTimes,
	}, nil
}
