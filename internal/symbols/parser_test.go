package symbols

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func putU16(buf *bytes.Buffer, v uint16) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	buf.Write(b)
}

func putU32(buf *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	buf.Write(b)
}

// buildPublicSymRecord builds one length-prefixed S_PUB32/S_PUB32_ST
// record body: flags, offset, segment, name.
func buildPublicSymRecord(kind SymbolRecordKind, flags uint32, offset uint32, segment uint16, name string) []byte {
	var body bytes.Buffer
	putU16(&body, uint16(kind))
	putU32(&body, flags)
	putU32(&body, offset)
	putU16(&body, segment)
	if kind == S_PUB32_ST {
		body.WriteByte(byte(len(name)))
		body.WriteString(name)
	} else {
		body.WriteString(name)
		body.WriteByte(0)
	}

	var rec bytes.Buffer
	putU16(&rec, uint16(body.Len()))
	rec.Write(body.Bytes())
	return rec.Bytes()
}

func TestParsePublicSym32V3(t *testing.T) {
	data := buildPublicSymRecord(S_PUB32, 0x2, 0x25, 1, "foo")
	rec, size, err := ParseSymbolRecord(data)
	if err != nil {
		t.Fatalf("ParseSymbolRecord failed: %v", err)
	}
	if size != len(data) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if rec.Kind != S_PUB32 {
		t.Fatalf("Kind = %v, want S_PUB32", rec.Kind)
	}
	sym, err := ParsePublicSym32(rec.Data)
	if err != nil {
		t.Fatalf("ParsePublicSym32 failed: %v", err)
	}
	if sym.Name != "foo" || sym.Offset != 0x25 || sym.Segment != 1 {
		t.Errorf("PublicSym32 = %+v", sym)
	}
}

func TestParsePublicSym32STPascalString(t *testing.T) {
	data := buildPublicSymRecord(S_PUB32_ST, 0, 0x10, 2, "bar")
	rec, _, err := ParseSymbolRecord(data)
	if err != nil {
		t.Fatalf("ParseSymbolRecord failed: %v", err)
	}
	if rec.Kind != S_PUB32_ST {
		t.Fatalf("Kind = %v, want S_PUB32_ST", rec.Kind)
	}
	sym, err := ParsePublicSym32ST(rec.Data)
	if err != nil {
		t.Fatalf("ParsePublicSym32ST failed: %v", err)
	}
	if sym.Name != "bar" {
		t.Errorf("Name = %q, want %q", sym.Name, "bar")
	}
}

func TestParseSymbolRecordStream(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(buildPublicSymRecord(S_PUB32, 0, 0x100, 1, "v3sym"))
	stream.Write(buildPublicSymRecord(S_PUB32_ST, 0, 0x200, 1, "v2sym"))

	syms, err := ParseSymbolRecordStream(stream.Bytes())
	if err != nil {
		t.Fatalf("ParseSymbolRecordStream failed: %v", err)
	}
	if len(syms) != 2 {
		t.Fatalf("len(syms) = %d, want 2", len(syms))
	}
	if syms[0].Name != "v3sym" || syms[1].Name != "v2sym" {
		t.Errorf("syms = %+v", syms)
	}
}

func TestSymbolIteratorAdvancesByDeclaredLength(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(buildPublicSymRecord(S_PUB32, 0, 0x100, 1, "first"))
	stream.Write(buildPublicSymRecord(S_PUB32, 0, 0x200, 1, "second"))

	it := NewSymbolIterator(stream.Bytes())
	rec, err := it.Next()
	if err != nil || rec == nil {
		t.Fatalf("Next() #1 = %v, %v", rec, err)
	}
	sym, _ := ParsePublicSym32(rec.Data)
	if sym.Name != "first" {
		t.Errorf("first symbol = %q, want %q", sym.Name, "first")
	}

	rec, err = it.Next()
	if err != nil || rec == nil {
		t.Fatalf("Next() #2 = %v, %v", rec, err)
	}
	sym, _ = ParsePublicSym32(rec.Data)
	if sym.Name != "second" {
		t.Errorf("second symbol = %q, want %q", sym.Name, "second")
	}

	rec, err = it.Next()
	if err != nil || rec != nil {
		t.Fatalf("Next() #3 = %v, %v, want (nil, nil)", rec, err)
	}
}

func TestSymbolRecordKindClassification(t *testing.T) {
	if !S_PUB32.IsPublic() {
		t.Error("S_PUB32.IsPublic() = false, want true")
	}
	if !S_PUB32_ST.IsPublic() {
		t.Error("S_PUB32_ST.IsPublic() = false, want true")
	}
}

func TestParseProcSym(t *testing.T) {
	var body bytes.Buffer
	putU32(&body, 0)          // PtrParent
	putU32(&body, 0)          // PtrEnd
	putU32(&body, 0)          // PtrNext
	putU32(&body, 0x40)       // CodeSize
	putU32(&body, 0)          // DbgStart
	putU32(&body, 0)          // DbgEnd
	putU32(&body, 0x1000)     // FunctionType
	putU32(&body, 0x10)       // CodeOffset
	putU16(&body, 1)          // Segment
	body.WriteByte(0)         // Flags
	body.WriteString("main")
	body.WriteByte(0)

	sym, err := ParseProcSym(body.Bytes())
	if err != nil {
		t.Fatalf("ParseProcSym failed: %v", err)
	}
	if sym.Name != "main" || sym.CodeOffset != 0x10 || sym.Segment != 1 || sym.CodeSize != 0x40 {
		t.Errorf("ProcSym = %+v", sym)
	}
}

func TestParseDataSym(t *testing.T) {
	var body bytes.Buffer
	putU32(&body, 0x1003) // Type
	putU32(&body, 0x20)   // Offset
	putU16(&body, 2)      // Segment
	body.WriteString("g_counter")
	body.WriteByte(0)

	sym, err := ParseDataSym(body.Bytes())
	if err != nil {
		t.Fatalf("ParseDataSym failed: %v", err)
	}
	if sym.Name != "g_counter" || sym.Offset != 0x20 || sym.Segment != 2 {
		t.Errorf("DataSym = %+v", sym)
	}
}

func TestParseUDTSym(t *testing.T) {
	var body bytes.Buffer
	putU32(&body, 0x1005)
	body.WriteString("MyStruct")
	body.WriteByte(0)

	sym, err := ParseUDTSym(body.Bytes())
	if err != nil {
		t.Fatalf("ParseUDTSym failed: %v", err)
	}
	if sym.Name != "MyStruct" || uint32(sym.Type) != 0x1005 {
		t.Errorf("UDTSym = %+v", sym)
	}
}

func TestParseConstantSym(t *testing.T) {
	var body bytes.Buffer
	putU32(&body, 0x74) // T_INT4
	putU16(&body, 42)   // inline numeric value < 0x8000
	body.WriteString("ANSWER")
	body.WriteByte(0)

	sym, err := ParseConstantSym(body.Bytes())
	if err != nil {
		t.Fatalf("ParseConstantSym failed: %v", err)
	}
	if sym.Name != "ANSWER" || sym.Value != 42 {
		t.Errorf("ConstantSym = %+v", sym)
	}
}
