package stream

import (
	"testing"
)

func TestReadPrimitives(t *testing.T) {
	data := []byte{
		0x01,             // u8
		0x34, 0x12,       // u16 = 0x1234
		0x78, 0x56, 0x34, 0x12, // u32 = 0x12345678
	}
	r := NewReader(data)

	u8, err := r.ReadU8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("ReadU8() = %v, %v", u8, err)
	}
	u16, err := r.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16() = %v, %v", u16, err)
	}
	u32, err := r.ReadU32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("ReadU32() = %v, %v", u32, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestReadU8EOF(t *testing.T) {
	r := NewReader(nil)
	if _, err := r.ReadU8(); err != ErrUnexpectedEOF {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestReadCString(t *testing.T) {
	r := NewReader([]byte("hello\x00world"))
	s, err := r.ReadCString()
	if err != nil {
		t.Fatalf("ReadCString failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadCString() = %q, want %q", s, "hello")
	}
	if r.Offset() != 6 {
		t.Errorf("Offset() = %d, want 6", r.Offset())
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	r := NewReader([]byte("noterm"))
	if _, err := r.ReadCString(); err != ErrUnexpectedEOF {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestReadPascalString(t *testing.T) {
	r := NewReader([]byte{5, 'h', 'e', 'l', 'l', 'o', 'X'})
	s, err := r.ReadPascalString()
	if err != nil {
		t.Fatalf("ReadPascalString failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadPascalString() = %q, want %q", s, "hello")
	}
	remaining := r.RemainingData()
	if string(remaining) != "X" {
		t.Errorf("remaining = %q, want %q", remaining, "X")
	}
}

func TestReadFixedStringTrimsNulls(t *testing.T) {
	r := NewReader([]byte("ab\x00\x00\x00\x00"))
	s, err := r.ReadFixedString(6)
	if err != nil {
		t.Fatalf("ReadFixedString failed: %v", err)
	}
	if s != "ab" {
		t.Errorf("ReadFixedString() = %q, want %q", s, "ab")
	}
}

func TestAlign(t *testing.T) {
	r := NewReader(make([]byte, 20))
	r.SetOffset(5)
	r.Align(4)
	if r.Offset() != 8 {
		t.Errorf("Offset() = %d, want 8", r.Offset())
	}
	r.Align(4) // already aligned, no-op
	if r.Offset() != 8 {
		t.Errorf("Offset() = %d, want 8", r.Offset())
	}
}

func TestReadNumericInline(t *testing.T) {
	// 0x0064 < 0x8000, so the value is literal.
	r := NewReader([]byte{0x64, 0x00})
	v, err := r.ReadNumeric()
	if err != nil {
		t.Fatalf("ReadNumeric failed: %v", err)
	}
	if v != 0x64 {
		t.Errorf("ReadNumeric() = %d, want 0x64", v)
	}
}

func TestReadNumericExtendedUShort(t *testing.T) {
	// LF_USHORT (0x8002) tag followed by a u16 value of 70000 truncated
	// to 16 bits isn't representable; use a value that fits u16 but not
	// the inline 15-bit range, e.g. 0xFFFF.
	r := NewReader([]byte{0x02, 0x80, 0xFF, 0xFF})
	v, err := r.ReadNumeric()
	if err != nil {
		t.Fatalf("ReadNumeric failed: %v", err)
	}
	if v != 0xFFFF {
		t.Errorf("ReadNumeric() = 0x%x, want 0xFFFF", v)
	}
}

func TestReadNumericExtendedShortSignExtends(t *testing.T) {
	// LF_SHORT (0x8001) tag followed by i16 = -1, matching the spec's
	// "offset field equals 0x8001 followed by an i16" extended-value
	// scenario.
	r := NewReader([]byte{0x01, 0x80, 0xFF, 0xFF})
	v, err := r.ReadNumeric()
	if err != nil {
		t.Fatalf("ReadNumeric failed: %v", err)
	}
	if int64(v) != -1 {
		t.Errorf("ReadNumeric() = %d, want -1", int64(v))
	}
}

func TestReadNumericInvalidTag(t *testing.T) {
	r := NewReader([]byte{0x05, 0x80})
	if _, err := r.ReadNumeric(); err != ErrInvalidNumeric {
		t.Fatalf("err = %v, want ErrInvalidNumeric", err)
	}
}

func TestSubReader(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5, 6})
	r.SetOffset(2)
	sub, err := r.SubReader(3)
	if err != nil {
		t.Fatalf("SubReader failed: %v", err)
	}
	if r.Offset() != 5 {
		t.Errorf("parent Offset() = %d, want 5", r.Offset())
	}
	b, _ := sub.ReadBytes(3)
	if b[0] != 3 || b[1] != 4 || b[2] != 5 {
		t.Errorf("sub data = %v, want [3 4 5]", b)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{0xAA, 0xBB, 0xCC})
	v, err := r.PeekU8()
	if err != nil || v != 0xAA {
		t.Fatalf("PeekU8() = %v, %v", v, err)
	}
	if r.Offset() != 0 {
		t.Errorf("Offset() = %d, want 0 after Peek", r.Offset())
	}
}
