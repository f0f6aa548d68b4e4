package docufort

import "io"

// TimestampRange optionally bounds FindContent by the (monotonically
// increasing, per the format's invariant) timestamps stored in
// component headers. A nil Start/End means unbounded on that side.
type TimestampRange struct {
	Start *uint64
	End   *uint64
}

func (r *TimestampRange) contains(ts uint64) bool {
	if r == nil {
		return true
	}
	if r.Start != nil && ts < *r.Start {
		return false
	}
	if r.End != nil && ts > *r.End {
		return false
	}
	return true
}

// pastEnd reports whether ts has moved beyond the range's end bound,
// letting FindContent exploit the monotonic-timestamp invariant to stop
// scanning early instead of reading to EOF.
func (r *TimestampRange) pastEnd(ts uint64) bool {
	return r != nil && r.End != nil && ts > *r.End
}

// FoundContent pairs a content component's header timestamp with its
// Content descriptor, relative to the file given to FindContent.
type FoundContent struct {
	Timestamp uint64
	Content   Content
}

// FindContent scans blocks starting at startHint (a block-start offset;
// if nil, the first block in the file) and collects every content
// component whose header timestamp falls in the given range, stopping
// as soon as a timestamp is seen past the range's end — relying on the
// format's monotonic-timestamp invariant. It requests no ECC correction
// of content and does not modify the file (headers, hashes and magic
// frames are still ECC-decoded in memory); it is meant to run after an integrity
// check or recovery pass has already established the file is sound.
func FindContent(r ReadSeeker, cfg Config, startHint *uint64, timeRange *TimestampRange) ([]FoundContent, error) {
	var found []FoundContent

	start := uint64(FileHeaderLen) + uint64(MagicFrameLen(cfg.ECCLen))
	if startHint != nil {
		start = *startHint
	}
	if _, err := r.Seek(int64(start), io.SeekStart); err != nil {
		return nil, err
	}

	for {
		bs, err := tryReadBlockNoECC(r, cfg)
		if err != nil {
			return found, nil
		}
		stop := false
		switch bs.Kind {
		case "closed":
			if bs.Closed.IsAtomic {
				ts := bs.Closed.BlockStartTimestamp
				if timeRange.contains(ts) {
					found = append(found, FoundContent{Timestamp: ts, Content: bs.Closed.AtomicContent})
				} else if timeRange.pastEnd(ts) {
					stop = true
				}
			} else {
				for _, hc := range bs.Closed.Middle {
					ts := hc.Header.Timestamp
					if timeRange.contains(ts) {
						found = append(found, FoundContent{Timestamp: ts, Content: hc.Content})
					} else if timeRange.pastEnd(ts) {
						stop = true
						break
					}
				}
			}
		case "openB":
			for _, hc := range bs.OpenBContent {
				ts := hc.Header.Timestamp
				if timeRange.contains(ts) {
					found = append(found, FoundContent{Timestamp: ts, Content: hc.Content})
				} else if timeRange.pastEnd(ts) {
					stop = true
					break
				}
			}
			stop = true
		default:
			stop = true
		}
		if stop {
			return found, nil
		}
		if _, _, err := readMagicFrameNoECC(r, cfg.ECCLen); err != nil {
			return found, nil
		}
	}
}

// ReadSeeker is the capability FindContent needs: a read-only stream
// positioned by absolute offset.
type ReadSeeker interface {
	io.Reader
	io.Seeker
}

// noopWriter discards writes; used to adapt a read-only ReadSeeker to
// the ReadWriteSeeker that TryReadBlock's internals expect, since
// FindContent never asks for error correction (and thus never writes).
type noopWriter struct{ ReadSeeker }

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func tryReadBlockNoECC(r ReadSeeker, cfg Config) (BlockState, error) {
	return TryReadBlock(noopWriter{r}, cfg, false, false)
}

func readMagicFrameNoECC(r ReadSeeker, eccLen int) (bool, int, error) {
	return ReadMagicFrame(r, eccLen)
}
