package tpi

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// rawRecord is one not-yet-length-prefixed type record body (kind +
// payload) used to build a synthetic TPI stream byte-for-byte.
type rawRecord struct {
	kind TypeRecordKind
	body []byte
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

// buildTPIStream assembles a full TPI stream (header + length-prefixed
// records) from a sequence of record bodies, assigning sequential type
// indices starting at 0x1000.
func buildTPIStream(t *testing.T, records []rawRecord) []byte {
	t.Helper()

	var recordBuf bytes.Buffer
	for _, rec := range records {
		body := append(append([]byte{}, u16(uint16(rec.kind))...), rec.body...)
		recordBuf.Write(u16(uint16(len(body))))
		recordBuf.Write(body)
	}
	recordBytes := recordBuf.Bytes()

	var header bytes.Buffer
	header.Write(u32(TPIVersionV80))
	header.Write(u32(TPIHeaderSize))
	header.Write(u32(0x1000))
	header.Write(u32(uint32(0x1000 + len(records))))
	header.Write(u32(uint32(len(recordBytes))))
	header.Write(u16(0xFFFF)) // HashStreamIndex
	header.Write(u16(0xFFFF)) // HashAuxStreamIndex
	header.Write(u32(0))      // HashKeySize
	header.Write(u32(0))      // NumHashBuckets
	header.Write(u32(0))      // HashValueBufferOffset
	header.Write(u32(0))      // HashValueBufferLength
	header.Write(u32(0))      // IndexOffsetBufferOffset
	header.Write(u32(0))      // IndexOffsetBufferLength
	header.Write(u32(0))      // HashAdjBufferOffset
	header.Write(u32(0))      // HashAdjBufferLength

	if header.Len() != TPIHeaderSize {
		t.Fatalf("built header is %d bytes, want %d", header.Len(), TPIHeaderSize)
	}

	return append(header.Bytes(), recordBytes...)
}

// memberFieldList builds an LF_FIELDLIST body containing one LF_MEMBER
// sub-record: attributes, field_type, offset (inline numeric), name.
func memberFieldList(fieldType TypeIndex, offset uint16, name string) []byte {
	var buf bytes.Buffer
	buf.Write(u16(uint16(LF_MEMBER)))
	buf.Write(u16(0)) // attributes: public
	buf.Write(u32(uint32(fieldType)))
	buf.Write(u16(offset)) // inline numeric (< 0x8000)
	buf.Write(cstr(name))
	return buf.Bytes()
}

func classBody(fieldList TypeIndex, size uint16, forward bool, name string) []byte {
	var buf bytes.Buffer
	buf.Write(u16(1)) // member count
	props := uint16(0)
	if forward {
		props |= 0x0080
	}
	buf.Write(u16(props))
	buf.Write(u32(uint32(fieldList)))
	buf.Write(u32(0)) // derived
	buf.Write(u32(0)) // vshape
	buf.Write(u16(size))
	buf.Write(cstr(name))
	return buf.Bytes()
}

func arrayBody(elemType, indexType TypeIndex, size uint16, name string) []byte {
	var buf bytes.Buffer
	buf.Write(u32(uint32(elemType)))
	buf.Write(u32(uint32(indexType)))
	buf.Write(u16(size))
	buf.Write(cstr(name))
	return buf.Bytes()
}

func TestParseStreamHeader(t *testing.T) {
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")},
		{kind: LF_STRUCTURE, body: classBody(0x1000, 4, false, "S")},
	})

	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	if s.Header.HeaderSize != TPIHeaderSize {
		t.Errorf("HeaderSize = %d, want %d", s.Header.HeaderSize, TPIHeaderSize)
	}
	if s.Header.TypeIndexBegin != 0x1000 {
		t.Errorf("TypeIndexBegin = %d, want 0x1000", s.Header.TypeIndexBegin)
	}
	if s.TypeCount() != 2 {
		t.Errorf("TypeCount() = %d, want 2", s.TypeCount())
	}
}

func TestParseStreamTruncatedHeader(t *testing.T) {
	_, err := ParseStream(make([]byte, 10))
	if err != ErrInvalidTPIHeader {
		t.Fatalf("err = %v, want ErrInvalidTPIHeader", err)
	}
}

func TestGetTypeRecordSimpleTypeHasNoRecord(t *testing.T) {
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")},
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	rec, err := s.GetTypeRecord(TypeIndex(0x74))
	if err != nil {
		t.Fatalf("GetTypeRecord(primitive) failed: %v", err)
	}
	if rec != nil {
		t.Errorf("GetTypeRecord(primitive) = %v, want nil", rec)
	}
}

func TestGetTypeRecordOutOfRange(t *testing.T) {
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")},
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	if _, err := s.GetTypeRecord(TypeIndex(0x2000)); err == nil {
		t.Fatal("expected ErrTypeIndexOutOfRange")
	}
}

func TestParseClassRecordStruct(t *testing.T) {
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")},
		{kind: LF_STRUCTURE, body: classBody(0x1000, 4, false, "S")},
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}

	rec, err := s.GetTypeRecord(0x1001)
	if err != nil {
		t.Fatalf("GetTypeRecord failed: %v", err)
	}
	if rec.Kind != LF_STRUCTURE {
		t.Fatalf("Kind = %v, want LF_STRUCTURE", rec.Kind)
	}
	c, err := ParseClassRecord(rec.Data)
	if err != nil {
		t.Fatalf("ParseClassRecord failed: %v", err)
	}
	if c.Name != "S" || c.Size != 4 || c.FieldList != 0x1000 {
		t.Errorf("ClassRecord = %+v", c)
	}
	if c.Properties.IsForwardRef() {
		t.Errorf("expected non-forward class record")
	}
}

func TestParseFieldListMember(t *testing.T) {
	rec := &TypeRecord{Kind: LF_FIELDLIST, Data: memberFieldList(TypeIndex(0x74), 0, "a")}
	fl, err := ParseFieldListRecord(rec.Data)
	if err != nil {
		t.Fatalf("ParseFieldListRecord failed: %v", err)
	}
	if len(fl.Members) != 1 {
		t.Fatalf("len(Members) = %d, want 1", len(fl.Members))
	}
	m, ok := fl.Members[0].(*MemberRecord)
	if !ok {
		t.Fatalf("member type = %T, want *MemberRecord", fl.Members[0])
	}
	if m.Name != "a" || m.Type != 0x74 || m.Offset != 0 {
		t.Errorf("MemberRecord = %+v", m)
	}
}

func TestFieldListPaddingSkipped(t *testing.T) {
	// One member followed by 0xF2 padding (2 bytes, including itself).
	body := append(memberFieldList(TypeIndex(0x74), 0, "a"), 0xF2, 0x00)
	fl, err := ParseFieldListRecord(body)
	if err != nil {
		t.Fatalf("ParseFieldListRecord failed: %v", err)
	}
	if len(fl.Members) != 1 {
		t.Fatalf("len(Members) = %d, want 1 (padding should be skipped, not a member)", len(fl.Members))
	}
}

func TestResolveForwardReference(t *testing.T) {
	// FOO forward declaration (size 0), then FOO real definition (size 16).
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_STRUCTURE, body: classBody(0, 0, true, "FOO")},  // 0x1000
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")}, // 0x1001
		{kind: LF_STRUCTURE, body: classBody(0x1001, 16, false, "FOO")}, // 0x1002
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	res, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	names := res.NameIndex()
	resolved, ok := names["FOO"]
	if !ok {
		t.Fatal("FOO not found in name index")
	}
	if resolved != 0x1002 {
		t.Errorf("resolved FOO = %d, want 0x1002 (the non-forward definition)", resolved)
	}
}

func TestResolveArrayCountViaForwardReference(t *testing.T) {
	// Array of total size 40 whose element is a forward-referenced
	// struct later resolved to size 8: spec scenario 3, count == 5.
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_STRUCTURE, body: classBody(0, 0, true, "ELEM")}, // 0x1000 forward
		{kind: LF_ARRAY, body: arrayBody(0x1000, 0x74, 40, "")},   // 0x1001
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")}, // 0x1002
		{kind: LF_STRUCTURE, body: classBody(0x1002, 8, false, "ELEM")}, // 0x1003 real def
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	res, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	count, ok := res.ArrayCount(0x1001)
	if !ok {
		t.Fatal("array count not resolved")
	}
	if count != 5 {
		t.Errorf("ArrayCount = %d, want 5", count)
	}
}

func TestUnnamedTagSynthesis(t *testing.T) {
	if got := DisplayName("<unnamed-tag>", TypeIndex(0x1234)); got != "__unnamed_1234" {
		t.Errorf("DisplayName = %q, want %q", got, "__unnamed_1234")
	}
	if got := DisplayName("Named", TypeIndex(0x1234)); got != "Named" {
		t.Errorf("DisplayName = %q, want unchanged %q", got, "Named")
	}
}

func TestExhaustionMatchesStreamLength(t *testing.T) {
	data := buildTPIStream(t, []rawRecord{
		{kind: LF_FIELDLIST, body: memberFieldList(TypeIndex(0x74), 0, "a")},
		{kind: LF_STRUCTURE, body: classBody(0x1000, 4, false, "S")},
	})
	s, err := ParseStream(data)
	if err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	// buildOffsetIndex must have consumed every record exactly, leaving
	// no residual bytes (TPI exhaustion invariant).
	if len(s.recordOffsets) != 2 {
		t.Errorf("indexed %d records, want 2", len(s.recordOffsets))
	}
}
