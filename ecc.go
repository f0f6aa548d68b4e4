package docufort

// ECC implements classical Reed-Solomon error correction over GF(2^8):
// encoding produces a fixed-length parity suffix for a message, and
// decoding locates and repairs byte errors at positions that are *not*
// known in advance. This is the one component in the package built on
// nothing but the standard library: the pack's Reed-Solomon
// dependencies (klauspost/reedsolomon, Picocrypt/infectious) implement
// erasure coding, where the caller already knows which shards are bad.
// Docufort needs the opposite: prove a codeword is intact, or locate and
// fix the damage, with no prior knowledge of where it is. See DESIGN.md.
//
// The field uses the standard primitive polynomial x^8+x^4+x^3+x^2+1
// (0x11d) with generator element 2, the same field used by QR codes and
// most general-purpose RS implementations, matching the original's
// reed_solomon crate.

const (
	gfExp = 512
	gfPrimePoly = 0x11d
)

var (
	gfLog [256]int
	gfExpTable [gfExp]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExpTable[i] = byte(x)
		gfLog[x] = i
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPrimePoly
		}
	}
	for i := 255; i < gfExp; i++ {
		gfExpTable[i] = gfExpTable[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExpTable[gfLog[a]+gfLog[b]]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("docufort: gf division by zero")
	}
	return gfExpTable[(gfLog[a]+255-gfLog[b])%255]
}

func gfPow(a byte, n int) byte {
	if a == 0 {
		if n == 0 {
			return 1
		}
		return 0
	}
	e := (gfLog[a] * n) % 255
	if e < 0 {
		e += 255
	}
	return gfExpTable[e]
}

func gfInv(a byte) byte {
	return gfExpTable[255-gfLog[a]]
}

// gfPolyMul multiplies two polynomials given as coefficient slices,
// highest degree first.
func gfPolyMul(p, q []byte) []byte {
	out := make([]byte, len(p)+len(q)-1)
	for i, pc := range p {
		if pc == 0 {
			continue
		}
		for j, qc := range q {
			if qc == 0 {
				continue
			}
			out[i+j] ^= gfMul(pc, qc)
		}
	}
	return out
}

// gfPolyEval evaluates a polynomial (highest degree first) at x.
func gfPolyEval(p []byte, x byte) byte {
	y := p[0]
	for i := 1; i < len(p); i++ {
		y = gfMul(y, x) ^ p[i]
	}
	return y
}

// rsGenerator builds the RS generator polynomial for nsym parity
// symbols: product_{i=0}^{nsym-1} (x - alpha^i).
func rsGenerator(nsym int) []byte {
	g := []byte{1}
	for i := 0; i < nsym; i++ {
		g = gfPolyMul(g, []byte{1, gfPow(2, i)})
	}
	return g
}

// ParityLength returns the number of ECC parity bytes needed to protect
// rawDataLen bytes of message data at the given ECC length per 255-byte
// codeword, i.e. the ceil(rawDataLen/dataSize)*eccLen of the original's
// calc_ecc_data_len.
func ParityLength(rawDataLen, eccLen int) int {
	dataSize := codewordLen - eccLen
	chunks := rawDataLen / dataSize
	if rawDataLen%dataSize != 0 {
		chunks++
	}
	return chunks * eccLen
}

// MessageLength is the inverse of ParityLength given the on-disk total
// length of a parity-prepended ecc+data region: the original's
// calculate_msg_len.
func MessageLength(totalLen, eccLen int) int {
	codewordSize := codewordLen
	full := totalLen / codewordSize
	rem := totalLen % codewordSize
	totalECC := eccLen * full
	if rem > 0 {
		totalECC += eccLen
	}
	return totalLen - totalECC
}

// Encode computes the ECC parity for a single codeword's worth of data
// (len(data) <= 255-eccLen) and returns just the eccLen parity bytes, the
// original's calculate_ecc_chunk.
func Encode(data []byte, eccLen int) []byte {
	gen := rsGenerator(eccLen)
	msg := make([]byte, len(data)+eccLen)
	copy(msg, data)
	for i := 0; i < len(data); i++ {
		coef := msg[i]
		if coef == 0 {
			continue
		}
		for j, gc := range gen {
			msg[i+j] ^= gfMul(gc, coef)
		}
	}
	return msg[len(data):]
}

// EncodeChunks splits data into dataSize-sized chunks (dataSize =
// 255-eccLen) and appends each chunk's eccLen-byte parity to out, in
// order: the original's calculate_ecc_for_chunks.
func EncodeChunks(data []byte, eccLen int) []byte {
	dataSize := codewordLen - eccLen
	out := make([]byte, 0, ParityLength(len(data), eccLen))
	for start := 0; start < len(data); start += dataSize {
		end := start + dataSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, Encode(data[start:end], eccLen)...)
	}
	if len(data) == 0 {
		return out
	}
	return out
}

// syndromes computes the 2t syndrome values for a received codeword
// (highest-degree-first, full codeword including parity). All-zero
// syndromes mean the codeword is (with overwhelming probability) intact.
func syndromes(codeword []byte, eccLen int) []byte {
	s := make([]byte, eccLen)
	for i := 0; i < eccLen; i++ {
		s[i] = gfPolyEval(codeword, gfPow(2, i))
	}
	return s
}

func hasErrors(syn []byte) bool {
	for _, b := range syn {
		if b != 0 {
			return true
		}
	}
	return false
}

// berlekampMassey computes the error-locator polynomial from the
// syndromes, highest degree first.
func berlekampMassey(syn []byte, eccLen int) []byte {
	errLoc := []byte{1}
	oldLoc := []byte{1}
	for i := 0; i < eccLen; i++ {
		oldLoc = append(oldLoc, 0)
		delta := syn[i]
		for j := 1; j < len(errLoc); j++ {
			delta ^= gfMul(errLoc[len(errLoc)-1-j], syn[i-j])
		}
		if delta != 0 {
			if len(oldLoc) > len(errLoc) {
				newLoc := gfPolyScale(oldLoc, delta)
				oldLoc = gfPolyScale(errLoc, gfInv(delta))
				errLoc = newLoc
			}
			errLoc = gfPolyXor(errLoc, gfPolyScale(oldLoc, delta))
		}
	}
	// trim leading zero-degree padding introduced by the loop above
	shift := 0
	for shift < len(errLoc)-1 && errLoc[shift] == 0 {
		shift++
	}
	return errLoc[shift:]
}

func gfPolyScale(p []byte, x byte) []byte {
	out := make([]byte, len(p))
	for i, c := range p {
		out[i] = gfMul(c, x)
	}
	return out
}

func gfPolyXor(p, q []byte) []byte {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var a, b byte
		if i >= n-len(p) {
			a = p[i-(n-len(p))]
		}
		if i >= n-len(q) {
			b = q[i-(n-len(q))]
		}
		out[i] = a ^ b
	}
	return out
}

// chienSearch finds the roots of the error-locator polynomial by brute
// force evaluation over all codeword positions, returning the error
// positions as indices from the start of codeword (0 = highest degree
// term, i.e. first byte).
func chienSearch(errLoc []byte, codewordLen int) []int {
	var positions []int
	for i := 0; i < codewordLen; i++ {
		x := gfPow(2, i)
		xInv := gfInv(x)
		if gfPolyEval(errLoc, xInv) == 0 {
			positions = append(positions, codewordLen-1-i)
		}
	}
	return positions
}

// forneyMagnitudes computes the error magnitude at each located error
// position using the Forney algorithm.
func forneyMagnitudes(syn, errLoc []byte, positions []int, codewordLen int) []byte {
	synRev := make([]byte, len(syn))
	for i, b := range syn {
		synRev[len(syn)-1-i] = b
	}
	errEval := gfPolyMul(synRev, errLoc)
	if len(errEval) > len(syn) {
		errEval = errEval[len(errEval)-len(syn):]
	}

	mags := make([]byte, len(positions))
	for idx, pos := range positions {
		i := codewordLen - 1 - pos
		xi := gfPow(2, i)
		xiInv := gfInv(xi)

		errLocPrimeTmp := byte(1)
		for j := 0; j < len(positions); j++ {
			if j == idx {
				continue
			}
			otherPos := positions[j]
			otherI := codewordLen - 1 - otherPos
			xj := gfPow(2, otherI)
			term := byte(1) ^ gfMul(xj, xiInv)
			errLocPrimeTmp = gfMul(errLocPrimeTmp, term)
		}
		yRev := gfPolyEval(errEval, xiInv)
		mags[idx] = gfDiv(yRev, errLocPrimeTmp)
	}
	return mags
}

// DecodeInPlace checks and, if possible, repairs a single codeword (data
// followed by its eccLen parity bytes, total length <= 255). It returns
// the number of byte errors corrected. ErrTooManyErrors is returned if
// the number of errors exceeds eccLen/2 and the syndromes can't be
// resolved to a consistent error locator — the original's apply_ecc.
func DecodeInPlace(codeword []byte, eccLen int) (int, error) {
	if eccLen == 0 || len(codeword) == 0 {
		return 0, nil
	}
	syn := syndromes(codeword, eccLen)
	if !hasErrors(syn) {
		return 0, nil
	}

	errLoc := berlekampMassey(syn, eccLen)
	numErrors := len(errLoc) - 1
	if numErrors <= 0 || numErrors > eccLen/2 {
		return 0, ErrTooManyErrors
	}

	positions := chienSearch(errLoc, len(codeword))
	if len(positions) != numErrors {
		return 0, ErrTooManyErrors
	}

	mags := forneyMagnitudes(syn, errLoc, positions, len(codeword))
	for i, pos := range positions {
		codeword[pos] ^= mags[i]
	}

	syn2 := syndromes(codeword, eccLen)
	if hasErrors(syn2) {
		return 0, ErrTooManyErrors
	}
	return numErrors, nil
}

// CorruptChunk records one 255-byte codeword within a chunked ECC region
// that exceeded the correction budget.
type CorruptChunk struct {
	// ChunkIndex is the zero-based index of the codeword within the
	// region.
	ChunkIndex int
	// DataStart/DataEnd and ECCStart/ECCEnd are byte offsets relative to
	// the start of region, identifying the data and parity slices of
	// this specific codeword.
	DataStart, DataEnd int
	ECCStart, ECCEnd   int
}

// DecodeChunkedInPlace walks a parity-prepended region — eccLen*n parity
// bytes immediately followed by the data they protect, chunked into
// dataSize-sized pieces — verifying and repairing each 255-byte codeword
// independently. It never aborts on an uncorrectable chunk: those are
// reported as CorruptChunk entries and the region is left unmodified for
// that specific chunk, mirroring apply_ecc_for_chunks's per-chunk
// isolation contract except that here a failed chunk does not abort the
// whole region.
func DecodeChunkedInPlace(region []byte, eccLen int) (int, []CorruptChunk, error) {
	if eccLen == 0 {
		return 0, nil, nil
	}
	total := len(region)
	msgLen := MessageLength(total, eccLen)
	eccTotalLen := total - msgLen
	dataSize := codewordLen - eccLen
	numChunks := eccTotalLen / eccLen

	totErrors := 0
	var corrupt []CorruptChunk
	scratch := make([]byte, codewordLen)

	for i := 0; i < numChunks; i++ {
		dataStart := i*dataSize + eccTotalLen
		dataEnd := dataStart + dataSize
		if dataEnd > total {
			dataEnd = total
		}
		chunkDataLen := dataEnd - dataStart
		eccStart := i * eccLen
		eccEnd := eccStart + eccLen
		chunkLen := chunkDataLen + eccLen

		copy(scratch[:chunkDataLen], region[dataStart:dataEnd])
		copy(scratch[chunkDataLen:chunkLen], region[eccStart:eccEnd])

		n, err := DecodeInPlace(scratch[:chunkLen], eccLen)
		if err != nil {
			corrupt = append(corrupt, CorruptChunk{
				ChunkIndex: i,
				DataStart:  dataStart, DataEnd: dataEnd,
				ECCStart: eccStart, ECCEnd: eccEnd,
			})
			continue
		}
		if n > 0 {
			copy(region[dataStart:dataEnd], scratch[:chunkDataLen])
			copy(region[eccStart:eccEnd], scratch[chunkDataLen:chunkLen])
			totErrors += n
		}
	}
	return totErrors, corrupt, nil
}
