package docufort

import "lukechampine.com/blake3"

// Hasher accumulates the bytes of a block (every header and content
// byte between a block's start header and its end header) and produces
// the fixed HashLen digest stored in the block's end component. The
// original's BlockInputs trait.
type Hasher interface {
	// Update folds more bytes into the running hash.
	Update(data []byte)
	// Finalize returns the current digest without consuming the hasher,
	// so callers may keep hashing afterward (recovery needs the digest
	// at the last good component boundary while still accumulating).
	Finalize() [HashLen]byte
	// Clone returns an independent copy of the hasher's current state,
	// used by the retrying writer to snapshot state before an operation
	// that might need to be retried.
	Clone() Hasher
}

// blake3Hasher truncates a BLAKE3 digest to HashLen bytes, exactly as
// the original's DummyHasher test fixture and its recommended
// BlockInputs implementation do.
type blake3Hasher struct {
	h *blake3.Hasher
}

// NewBLAKE3Hasher constructs a Hasher backed by BLAKE3, truncated to
// HashLen bytes.
func NewBLAKE3Hasher() Hasher {
	return &blake3Hasher{h: blake3.New(32, nil)}
}

func (b *blake3Hasher) Update(data []byte) { b.h.Write(data) }

func (b *blake3Hasher) Finalize() [HashLen]byte {
	var out [HashLen]byte
	sum := b.h.Sum(nil)
	copy(out[:], sum[:HashLen])
	return out
}

func (b *blake3Hasher) Clone() Hasher {
	return &blake3Hasher{h: b.h.Clone()}
}
