package rollback

import (
	"math"
	"testing"
)

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	if !snap.IsEmpty() {
		t.Error("empty snapshot reports non-empty")
	}
	if snap.Frame != EmptyFrame {
		t.Errorf("frame = %d, want %d", snap.Frame, EmptyFrame)
	}
	if snap.Len() != 0 {
		t.Errorf("len = %d, want 0", snap.Len())
	}
}

func TestFromDataComputesChecksum(t *testing.T) {
	snap := FromData([]byte{1, 2, 3, 4, 5}, 42)
	if snap.IsEmpty() {
		t.Error("snapshot reports empty")
	}
	if snap.Frame != 42 {
		t.Errorf("frame = %d, want 42", snap.Frame)
	}
	if snap.Checksum == 0 {
		t.Error("checksum = 0 for non-empty data")
	}
	if !snap.Verify() {
		t.Error("fresh snapshot fails verification")
	}
}

func TestChecksumIgnoresFrame(t *testing.T) {
	data := []byte{1, 2, 3}
	console := []byte{9, 9}
	input := []byte{4, 5, 6, 7}
	host := NewHostRollbackState(0xABCD, 100, 1.5)

	a := FromFullState(data, console, input, host, 10)
	b := FromFullState(data, console, input, host, 9999)
	if a.Checksum != b.Checksum {
		t.Errorf("checksums differ across frames: %016x != %016x", a.Checksum, b.Checksum)
	}
}

func TestChecksumCoversEveryComponent(t *testing.T) {
	base := func() ([]byte, []byte, []byte, HostRollbackState) {
		return []byte{1, 2, 3}, []byte{9, 9}, []byte{4, 5}, NewHostRollbackState(7, 8, 0.25)
	}

	d, c, i, h := base()
	want := FromFullState(d, c, i, h, 0).Checksum

	d, c, i, h = base()
	d[0] = 99
	if got := FromFullState(d, c, i, h, 0).Checksum; got == want {
		t.Error("checksum unchanged after data mutation")
	}

	d, c, i, h = base()
	c[1] = 0
	if got := FromFullState(d, c, i, h, 0).Checksum; got == want {
		t.Error("checksum unchanged after console data mutation")
	}

	d, c, i, h = base()
	i[0] = 0
	if got := FromFullState(d, c, i, h, 0).Checksum; got == want {
		t.Error("checksum unchanged after input data mutation")
	}

	d, c, i, h = base()
	h.RNGState++
	if got := FromFullState(d, c, i, h, 0).Checksum; got == want {
		t.Error("checksum unchanged after host state mutation")
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	a := FromData(append([]byte(nil), data...), 0)
	b := FromData(append([]byte(nil), data...), 0)
	if a.Checksum != b.Checksum {
		t.Errorf("checksums differ for identical data: %016x != %016x", a.Checksum, b.Checksum)
	}
}

func TestTotalLen(t *testing.T) {
	snap := FromFullState([]byte{1, 2, 3}, []byte{4}, []byte{5, 6}, HostRollbackState{}, 0)
	if got, want := snap.TotalLen(), 3+1+2+HostStateSize; got != want {
		t.Errorf("total len = %d, want %d", got, want)
	}
}

func TestHostStateRoundTrip(t *testing.T) {
	s := NewHostRollbackState(0x0123456789ABCDEF, 987654321, 12.375)

	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(b) != HostStateSize {
		t.Fatalf("encoded size = %d, want %d", len(b), HostStateSize)
	}

	var got HostRollbackState
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != s {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}

	if err := got.UnmarshalBinary(b[:19]); err == nil {
		t.Error("short input accepted")
	}

	got.SetElapsedTime(0.5)
	if got.ElapsedTime() != 0.5 {
		t.Errorf("ElapsedTime after set = %v, want 0.5", got.ElapsedTime())
	}
}

func TestHostStateFloatIsBitExact(t *testing.T) {
	// Negative zero and NaN only survive if the raw bit pattern is
	// stored, never the float value.
	negZero := math.Float32frombits(0x80000000)
	s := NewHostRollbackState(0, 0, negZero)
	if s.ElapsedTimeBits != 0x80000000 {
		t.Errorf("elapsed bits = %08x, want 80000000", s.ElapsedTimeBits)
	}

	nanBits := uint32(0x7FC00001)
	s = HostRollbackState{ElapsedTimeBits: nanBits}
	b, _ := s.MarshalBinary()
	var got HostRollbackState
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if got.ElapsedTimeBits != nanBits {
		t.Errorf("NaN payload bits = %08x, want %08x", got.ElapsedTimeBits, nanBits)
	}
	if !math.IsNaN(float64(got.ElapsedTime())) {
		t.Error("decoded elapsed time is not NaN")
	}
}
