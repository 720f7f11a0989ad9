package pdb

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/skdltmxn/pdb-go/internal/tpi"
)

func eU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func eU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func eCStr(s string) []byte {
	return append([]byte(s), 0)
}

type testTPIRecord struct {
	kind tpi.TypeRecordKind
	body []byte
}

// buildTestTPIStream mirrors internal/tpi's own test fixture builder but
// lives here since it isn't exported across package boundaries.
func buildTestTPIStream(t *testing.T, records []testTPIRecord) *tpi.Stream {
	t.Helper()

	var recordBuf bytes.Buffer
	for _, rec := range records {
		body := append(append([]byte{}, eU16(uint16(rec.kind))...), rec.body...)
		recordBuf.Write(eU16(uint16(len(body))))
		recordBuf.Write(body)
	}

	var header bytes.Buffer
	header.Write(eU32(tpi.TPIVersionV80))
	header.Write(eU32(tpi.TPIHeaderSize))
	header.Write(eU32(0x1000))
	header.Write(eU32(uint32(0x1000 + len(records))))
	header.Write(eU32(uint32(recordBuf.Len())))
	header.Write(eU16(0xFFFF))
	header.Write(eU16(0xFFFF))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))
	header.Write(eU32(0))

	s, err := tpi.ParseStream(append(header.Bytes(), recordBuf.Bytes()...))
	if err != nil {
		t.Fatalf("tpi.ParseStream failed: %v", err)
	}
	return s
}

func memberFieldListBody(fieldType tpi.TypeIndex, offset uint16, name string) []byte {
	var buf bytes.Buffer
	buf.Write(eU16(uint16(tpi.LF_MEMBER)))
	buf.Write(eU16(0))
	buf.Write(eU32(uint32(fieldType)))
	buf.Write(eU16(offset))
	buf.Write(eCStr(name))
	return buf.Bytes()
}

func classRecordBody(fieldList tpi.TypeIndex, size uint16, forward bool, name string) []byte {
	var buf bytes.Buffer
	buf.Write(eU16(1))
	props := uint16(0)
	if forward {
		props |= 0x0080
	}
	buf.Write(eU16(props))
	buf.Write(eU32(uint32(fieldList)))
	buf.Write(eU32(0))
	buf.Write(eU32(0))
	buf.Write(eU16(size))
	buf.Write(eCStr(name))
	return buf.Bytes()
}

func arrayRecordBody(elemType, indexType tpi.TypeIndex, size uint16, name string) []byte {
	var buf bytes.Buffer
	buf.Write(eU32(uint32(elemType)))
	buf.Write(eU32(uint32(indexType)))
	buf.Write(eU16(size))
	buf.Write(eCStr(name))
	return buf.Bytes()
}

func enumRecordBody(fieldList, underlying tpi.TypeIndex, forward bool, name string) []byte {
	var buf bytes.Buffer
	buf.Write(eU16(0)) // count
	props := uint16(0)
	if forward {
		props |= 0x0080
	}
	buf.Write(eU16(props))
	buf.Write(eU32(uint32(underlying)))
	buf.Write(eU32(uint32(fieldList)))
	buf.Write(eCStr(name))
	return buf.Bytes()
}

func enumerateFieldListBody(value uint16, name string) []byte {
	var buf bytes.Buffer
	buf.Write(eU16(uint16(tpi.LF_ENUMERATE)))
	buf.Write(eU16(0))
	buf.Write(eU16(value))
	buf.Write(eCStr(name))
	return buf.Bytes()
}

// Spec §8 scenario 1: trivial primitive reference.
func TestEmitTrivialStruct(t *testing.T) {
	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_FIELDLIST, body: memberFieldListBody(tpi.TypeIndex(0x74), 0, "a")},
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0x1000, 4, false, "S")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}

	types, err := e.BuildUserTypes()
	if err != nil {
		t.Fatalf("BuildUserTypes failed: %v", err)
	}
	st, ok := types["S"]
	if !ok {
		t.Fatal(`user_types["S"] missing`)
	}
	if st.Kind != "struct" || st.Size != 4 {
		t.Errorf("S = %+v", st)
	}
	field, ok := st.Fields["a"]
	if !ok {
		t.Fatal(`fields["a"] missing`)
	}
	if field.Offset != 0 || field.Type.Kind != "base" || field.Type.Name != "int" {
		t.Errorf("field a = %+v", field)
	}

	baseInt, ok := e.bases["int"]
	if !ok {
		t.Fatal(`base_types["int"] missing`)
	}
	if baseInt.Kind != "int" || !baseInt.Signed || baseInt.Size != 4 || baseInt.Endian != "little" {
		t.Errorf("base_types.int = %+v", baseInt)
	}
}

// Spec §8 scenario 2: forward declaration + later definition.
func TestEmitForwardThenDefinition(t *testing.T) {
	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0, 0, true, "FOO")},
		{kind: tpi.LF_FIELDLIST, body: memberFieldListBody(tpi.TypeIndex(0x74), 0, "a")},
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0x1001, 16, false, "FOO")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}
	types, err := e.BuildUserTypes()
	if err != nil {
		t.Fatalf("BuildUserTypes failed: %v", err)
	}
	if len(types) != 1 {
		t.Fatalf("len(types) = %d, want 1 (forward decl must not appear)", len(types))
	}
	foo, ok := types["FOO"]
	if !ok {
		t.Fatal(`user_types["FOO"] missing`)
	}
	if foo.Size != 16 {
		t.Errorf("FOO.Size = %d, want 16", foo.Size)
	}
}

// Spec §8 scenario 3: array count resolved through a forward reference.
func TestEmitArrayCountViaForwardReference(t *testing.T) {
	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0, 0, true, "ELEM")},
		{kind: tpi.LF_ARRAY, body: arrayRecordBody(0x1000, tpi.TypeIndex(0x74), 40, "")},
		{kind: tpi.LF_FIELDLIST, body: memberFieldListBody(tpi.TypeIndex(0x74), 0, "a")},
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0x1002, 8, false, "ELEM")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}

	desc, err := e.GetTypeFromIndex(0x1001)
	if err != nil {
		t.Fatalf("GetTypeFromIndex failed: %v", err)
	}
	if desc.Kind != "array" || desc.Count != 5 {
		t.Errorf("array descriptor = %+v, want count 5", desc)
	}
}

// Spec §8 scenario 4: unnamed tag synthesis.
func TestEmitUnnamedTagSynthesis(t *testing.T) {
	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_FIELDLIST, body: memberFieldListBody(tpi.TypeIndex(0x74), 0, "a")},
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0x1000, 4, false, "<unnamed-tag>")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}
	types, err := e.BuildUserTypes()
	if err != nil {
		t.Fatalf("BuildUserTypes failed: %v", err)
	}
	if _, ok := types["__unnamed_1001"]; !ok {
		t.Fatalf("expected key __unnamed_1001, got keys %v", keysOf(types))
	}
}

func keysOf(m map[string]*UserTypeDoc) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Spec §8 scenario 5: extended numeric value for a member offset.
func TestEmitExtendedMemberOffset(t *testing.T) {
	// attributes(u16) + field_type(u32) + offset as LF_SHORT(0x8001)
	// tag followed by an i16 whose unsigned bit pattern can't be
	// represented inline (< 0x8000).
	var body bytes.Buffer
	body.Write(eU16(uint16(tpi.LF_MEMBER)))
	body.Write(eU16(0))
	body.Write(eU32(uint32(0x74)))
	body.Write(eU16(0x8001)) // LF_SHORT tag
	body.Write([]byte{0xFF, 0xFF}) // i16 = -1, i.e. 0xFFFF unsigned
	body.Write(eCStr("a"))

	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_FIELDLIST, body: body.Bytes()},
		{kind: tpi.LF_STRUCTURE, body: classRecordBody(0x1000, 4, false, "S")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}
	types, err := e.BuildUserTypes()
	if err != nil {
		t.Fatalf("BuildUserTypes failed: %v", err)
	}
	field := types["S"].Fields["a"]
	if field == nil {
		t.Fatal(`fields["a"] missing`)
	}
	if field.Offset != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("Offset = 0x%x, want the sign-extended value of -1", field.Offset)
	}
}

func TestEmitEnum(t *testing.T) {
	s := buildTestTPIStream(t, []testTPIRecord{
		{kind: tpi.LF_FIELDLIST, body: enumerateFieldListBody(1, "RED")},
		{kind: tpi.LF_ENUM, body: enumRecordBody(0x1000, tpi.TypeIndex(0x74), false, "Color")},
	})

	f := &File{}
	e, err := newEmitter(f, s)
	if err != nil {
		t.Fatalf("newEmitter failed: %v", err)
	}
	enums, err := e.BuildEnums()
	if err != nil {
		t.Fatalf("BuildEnums failed: %v", err)
	}
	c, ok := enums["Color"]
	if !ok {
		t.Fatal(`enums["Color"] missing`)
	}
	if c.Base != "int" || c.Size != 4 {
		t.Errorf("Color = %+v", c)
	}
	if c.Constants["RED"] != 1 {
		t.Errorf("RED = %d, want 1", c.Constants["RED"])
	}
}
