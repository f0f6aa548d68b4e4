package docufort

import (
	"time"

	"github.com/pkg/errors"
)

// Op is the high-level operation a caller wants performed against the
// tail of an open file: append a standalone atomic block, append one
// more content component to an open best-effort block, or close the
// currently open best-effort block.
type Op int

const (
	OpAtomicWrite Op = iota
	OpContentWrite
	OpCloseBlock
)

// Operation bundles an Op with its payload and writer-chosen metadata.
type Operation struct {
	Op         Op
	Data       []byte
	Timestamp  *uint64
	CalcECC    bool
	Compress   bool
}

// TailState tracks what the end of the file currently looks like, so
// PerformFileOp knows which inner steps are needed (e.g. whether a
// magic frame must be written first, whether a block is already open).
type TailState struct {
	Kind   string // "open", "closed", "magicNumber"
	Hasher Hasher // valid when Kind == "open"
}

func ClosedTailState() TailState { return TailState{Kind: "closed"} }
func MagicNumberTailState() TailState { return TailState{Kind: "magicNumber"} }
func OpenTailState(h Hasher) TailState { return TailState{Kind: "open", Hasher: h} }

func (s TailState) isClosed() bool { return s.Kind == "closed" }

// RetryPolicy bounds how hard PerformFileOp retries a failed inner
// step before giving up. This implements the state-machine/retry
// *policy* only; per-OS-error classification is left to the caller —
// see IsTransient.
type RetryPolicy struct {
	MaxAttempts       int
	MaxTotalDuration  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MaxTotalDuration: 5 * time.Second}
}

// innerOp is one low-level, individually-retryable write step.
type innerOp struct {
	kind       string // matches the original's InnerOp variants
	dataLen    uint32
	timestamp  uint64
	calcECC    bool
	isComp     bool
	data       []byte
	hasher     Hasher
	hasTS      bool
}

// PerformFileOp performs one high-level Operation against the tail of
// an already-open file, retrying each inner write step up to
// policy.MaxAttempts times before giving up. now supplies the writer's
// clock for any timestamp the caller didn't pin. On success it returns
// the new TailState; on exhausted retries it returns every error
// encountered, oldest first, wrapped with the inner step name.
func PerformFileOp(w ReadWriteSeeker, cfg Config, tail TailState, oper Operation, policy RetryPolicy, now func() uint64) (TailState, error) {
	newTail, ops := planInnerOps(tail, oper, cfg, now)

	// process back-to-front so retried ops can be pushed back onto the
	// tail of the slice (treated as a stack), matching the original's
	// reversed inner_ops Vec + pop loop.
	stack := make([]innerOp, len(ops))
	copy(stack, ops)
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}

	var errs []error
	attemptsLeft := policy.MaxAttempts
	deadline := time.Now().Add(policy.MaxTotalDuration)

	for len(stack) > 0 {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		producedHasher, err := performInnerOp(w, cfg, op)
		if err != nil {
			// on a failed hash-affecting write, performInnerOp hands back
			// the pre-write clone rather than the (possibly partially
			// mutated) live hasher, so the retry resumes from clean state.
			if producedHasher != nil {
				op.hasher = producedHasher
			}
			stack = append(stack, op)
			errs = append(errs, errors.Wrapf(err, "inner op %s", op.kind))
			if !IsTransient(err) {
				return TailState{}, multiErr(errs)
			}
			attemptsLeft--
			if attemptsLeft <= 0 || time.Now().After(deadline) {
				return TailState{}, multiErr(errs)
			}
			continue
		}
		attemptsLeft = policy.MaxAttempts
		if producedHasher != nil && len(stack) > 0 {
			stack[len(stack)-1].hasher = producedHasher
		} else if producedHasher != nil {
			if newTail.Kind == "open" {
				newTail.Hasher = producedHasher
			}
		}
	}
	return newTail, nil
}

type multiErrList []error

func (m multiErrList) Error() string {
	if len(m) == 0 {
		return "docufort: no error"
	}
	s := m[0].Error()
	for _, e := range m[1:] {
		s += "; " + e.Error()
	}
	return s
}

func multiErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return multiErrList(errs)
}

// planInnerOps is perform_file_op's (tail, op) match expression: it
// decides the resulting TailState and the ordered list of InnerOps.
func planInnerOps(tail TailState, oper Operation, cfg Config, now func() uint64) (TailState, []innerOp) {
	ts := func() uint64 {
		if oper.Timestamp != nil {
			return *oper.Timestamp
		}
		return now()
	}

	switch {
	case tail.Kind == "open" && oper.Op == OpCloseBlock:
		return ClosedTailState(), []innerOp{
			{kind: "writeEndHeader", timestamp: ts(), hasTS: oper.Timestamp != nil},
			{kind: "writeHash", hasher: tail.Hasher},
		}

	case tail.Kind == "open" && oper.Op == OpAtomicWrite:
		content, isComp := maybeCompress(cfg, oper.Data, oper.Compress)
		return ClosedTailState(), []innerOp{
			// closes the previously open best-effort block; this timestamp
			// belongs to that close, not to the new atomic write, so it
			// comes from the writer clock rather than oper.Timestamp.
			{kind: "writeEndHeader", timestamp: now()},
			{kind: "writeHash", hasher: tail.Hasher},
			{kind: "writeMagicNumber"},
			{kind: "writeABlockStart", dataLen: uint32(len(content)), timestamp: ts(), calcECC: oper.CalcECC, isComp: isComp},
			{kind: "writeContent", data: content, calcECC: oper.CalcECC},
			{kind: "writeEndHeader", timestamp: ts()},
			{kind: "writeHash"},
		}

	case tail.Kind == "open" && oper.Op == OpContentWrite:
		content, isComp := maybeCompress(cfg, oper.Data, oper.Compress)
		return OpenTailState(tail.Hasher), []innerOp{
			{kind: "writeContentHeader", dataLen: uint32(len(content)), timestamp: ts(), calcECC: oper.CalcECC, isComp: isComp, hasher: tail.Hasher},
			{kind: "writeContent", data: content, calcECC: oper.CalcECC, hasher: tail.Hasher},
		}

	case oper.Op == OpCloseBlock:
		return tail, nil

	case oper.Op == OpAtomicWrite:
		content, isComp := maybeCompress(cfg, oper.Data, oper.Compress)
		var ops []innerOp
		if tail.isClosed() {
			ops = append(ops, innerOp{kind: "writeMagicNumber"})
		}
		ops = append(ops,
			innerOp{kind: "writeABlockStart", dataLen: uint32(len(content)), timestamp: ts(), calcECC: oper.CalcECC, isComp: isComp},
			innerOp{kind: "writeContent", data: content, calcECC: oper.CalcECC},
			innerOp{kind: "writeEndHeader", timestamp: ts()},
			innerOp{kind: "writeHash"},
		)
		return ClosedTailState(), ops

	default: // oper.Op == OpContentWrite, tail closed or magicNumber
		content, isComp := maybeCompress(cfg, oper.Data, oper.Compress)
		startTS := now()
		contentTS := ts()
		hasher := cfg.NewHasher()
		var ops []innerOp
		if tail.isClosed() {
			ops = append(ops, innerOp{kind: "writeMagicNumber"})
		}
		ops = append(ops,
			innerOp{kind: "writeBBlockStart", timestamp: startTS},
			innerOp{kind: "writeContentHeader", dataLen: uint32(len(content)), timestamp: contentTS, calcECC: oper.CalcECC, isComp: isComp, hasher: hasher},
			innerOp{kind: "writeContent", data: content, calcECC: oper.CalcECC, hasher: hasher},
		)
		return OpenTailState(hasher), ops
	}
}

// performInnerOp executes one inner step, cloning the hasher before any
// hash-affecting write so a failed attempt (and its retry) never
// corrupts the hasher's state — the original's "preserve hash state in
// case of failure" invariant.
func performInnerOp(w ReadWriteSeeker, cfg Config, op innerOp) (Hasher, error) {
	switch op.kind {
	case "writeMagicNumber":
		return nil, WriteMagicFrame(w, cfg.ECCLen)

	case "writeABlockStart":
		tag := TagStartA
		if op.calcECC {
			tag |= FlagHasECC
		}
		if op.isComp {
			tag |= FlagIsComp
		}
		h := NewComponentHeader(tag, op.timestamp, op.dataLen)
		return nil, WriteHeader(w, h, cfg.ECCLen)

	case "writeBBlockStart":
		h := NewComponentHeader(TagStartB, op.timestamp, 0)
		return nil, WriteHeader(w, h, cfg.ECCLen)

	case "writeContentHeader":
		hasher := op.hasher
		if hasher == nil {
			hasher = cfg.NewHasher()
		}
		snapshot := hasher.Clone()
		if err := WriteContentHeader(w, cfg, op.dataLen, op.calcECC, op.isComp, op.timestamp, hasher); err != nil {
			return snapshot, err
		}
		return hasher, nil

	case "writeContent":
		hasher := op.hasher
		if hasher == nil {
			hasher = cfg.NewHasher()
		}
		snapshot := hasher.Clone()
		if err := WriteContent(w, cfg, op.data, op.calcECC, hasher); err != nil {
			return snapshot, err
		}
		return hasher, nil

	case "writeEndHeader":
		// carries no hash-affecting write of its own, but must pass its
		// hasher through untouched so a hasher produced by an earlier
		// writeContent still reaches the writeHash that follows it.
		h := NewComponentHeader(TagEnd, op.timestamp, 0)
		return op.hasher, WriteHeader(w, h, cfg.ECCLen)

	case "writeHash":
		if op.hasher == nil {
			return nil, errors.New("docufort: writeHash requires a hasher")
		}
		hash := op.hasher.Finalize()
		return op.hasher, WriteBlockHash(w, cfg, hash)
	}
	return nil, errors.Errorf("docufort: unknown inner op %q", op.kind)
}
