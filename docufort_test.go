package docufort

import (
	"os"
	"reflect"
	"testing"
)

// tempFile mirrors the teacher's tempAOF: a fresh backing file on disk,
// so damage can be poked in directly with a second os.OpenFile handle
// the way a real crash would leave it, rather than through an in-memory
// buffer.
func tempFile(t *testing.T) (*os.File, string) {
	f, err := os.CreateTemp("", "docufort-test-")
	if err != nil {
		t.Fatal(err)
	}
	return f, f.Name()
}

func reopen(t *testing.T, path string) *os.File {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestAppendAtomicBlockThenReadBack(t *testing.T) {
	f, path := tempFile(t)
	defer os.Remove(path)

	cfg := Config{ECCLen: 4, NewHasher: func() Hasher { return NewBLAKE3Hasher() }}
	if err := InitFile(f, cfg); err != nil {
		t.Fatal(err)
	}

	tail := ClosedTailState()
	policy := DefaultRetryPolicy()
	now := func() uint64 { return 1 }
	want := []byte("abcd")
	tail, err := PerformFileOp(f, cfg, tail, Operation{Op: OpAtomicWrite, Data: want}, policy, now)
	if err != nil {
		t.Fatal(err)
	}
	if tail.Kind != "closed" {
		t.Fatalf("expected closed tail after atomic write, got %q", tail.Kind)
	}
	f.Close()

	f2 := reopen(t, path)
	defer f2.Close()

	found, err := FindContent(f2, cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 content component, got %d", len(found))
	}

	hasher := &fakeHasher{}
	if _, _, err := ReadContent(f2, cfg, found[0].Content, true, hasher); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(want, hasher.data) {
		t.Errorf("%v != %v", want, hasher.data)
	}
}

func TestIntegrityCheckFileSurvivesDamagedStartHeader(t *testing.T) {
	f, path := tempFile(t)
	defer os.Remove(path)

	cfg := Config{ECCLen: 4, NewHasher: func() Hasher { return NewBLAKE3Hasher() }}
	if err := InitFile(f, cfg); err != nil {
		t.Fatal(err)
	}
	tail := ClosedTailState()
	policy := DefaultRetryPolicy()
	now := func() uint64 { return 1 }
	for i := 0; i < 2; i++ {
		var err error
		tail, err = PerformFileOp(f, cfg, tail, Operation{Op: OpAtomicWrite, Data: []byte("efgh")}, policy, now)
		if err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	// flip one byte inside the first block's start header tag, still
	// within the ECC correction budget for this codeword.
	damagePos := int64(FileHeaderLen) + int64(MagicFrameLen(cfg.ECCLen))

	fd := reopen(t, path)
	if _, err := fd.WriteAt([]byte{0x01}, damagePos); err != nil {
		t.Fatal(err)
	}
	fd.Close()

	f3 := reopen(t, path)
	defer f3.Close()
	ok, err := IntegrityCheckFile(f3, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ok.NumBlocks != 2 {
		t.Errorf("expected 2 blocks, got %d", ok.NumBlocks)
	}
	if ok.ErrorsCorrected == 0 {
		t.Errorf("expected the flipped bit to be reported as corrected")
	}
}

func TestRecoverTailHealsFileAfterTornWrite(t *testing.T) {
	f, path := tempFile(t)
	defer os.Remove(path)

	cfg := Config{ECCLen: 4, NewHasher: func() Hasher { return NewBLAKE3Hasher() }}
	if err := InitFile(f, cfg); err != nil {
		t.Fatal(err)
	}
	tail := ClosedTailState()
	policy := DefaultRetryPolicy()
	now := func() uint64 { return 1 }
	tail, err := PerformFileOp(f, cfg, tail, Operation{Op: OpAtomicWrite, Data: []byte("abcd")}, policy, now)
	if err != nil {
		t.Fatal(err)
	}
	goodLen, err := f.Seek(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	// start a second block but never finish writing it, as a crash would
	// leave behind: a magic frame and a dangling start header only.
	if err := WriteMagicFrame(f, cfg.ECCLen); err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(goodLen + int64(MagicFrameLen(cfg.ECCLen)) + 3); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f2 := reopen(t, path)
	defer f2.Close()
	summary, err := RecoverTail(f2, cfg, func() uint64 { return 2 })
	if err != nil {
		t.Fatal(err)
	}
	if int64(summary.RecoveredFileLen) != goodLen {
		t.Errorf("expected recovered length %d, got %d", goodLen, summary.RecoveredFileLen)
	}
	if !summary.HasBlocks {
		t.Errorf("expected the surviving atomic block to still be reported")
	}
}
