package pdb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildSectionHeaderBytes(name string, virtualSize, virtualAddress, sizeOfRawData uint32) []byte {
	buf := make([]byte, sectionHeaderSize)
	copy(buf, name)
	binary.LittleEndian.PutUint32(buf[8:], virtualSize)
	binary.LittleEndian.PutUint32(buf[12:], virtualAddress)
	binary.LittleEndian.PutUint32(buf[16:], sizeOfRawData)
	return buf
}

func TestParseSectionHeaders(t *testing.T) {
	var data bytes.Buffer
	data.Write(buildSectionHeaderBytes(".text", 0x2000, 0x1000, 0x2000))
	data.Write(buildSectionHeaderBytes(".data", 0x100, 0x3000, 0x200))

	sh, err := parseSectionHeaders(data.Bytes())
	if err != nil {
		t.Fatalf("parseSectionHeaders failed: %v", err)
	}
	if sh.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", sh.Count())
	}
	s0, err := sh.Get(0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	if s0.NameString() != ".text" || s0.VirtualAddress != 0x1000 {
		t.Errorf("section 0 = %+v", s0)
	}
}

func TestSectionHeadersToRVA(t *testing.T) {
	var data bytes.Buffer
	data.Write(buildSectionHeaderBytes(".text", 0x2000, 0x1000, 0x2000))

	sh, err := parseSectionHeaders(data.Bytes())
	if err != nil {
		t.Fatalf("parseSectionHeaders failed: %v", err)
	}

	if got := sh.ToRVA(1, 0x25); got != 0x1025 {
		t.Errorf("ToRVA(1, 0x25) = 0x%x, want 0x1025", got)
	}
	if got := sh.ToRVA(0, 0x25); got != 0 {
		t.Errorf("ToRVA(0, ...) = 0x%x, want 0 (invalid section)", got)
	}
	if got := sh.ToRVA(5, 0x25); got != 0 {
		t.Errorf("ToRVA(5, ...) = 0x%x, want 0 (out of range)", got)
	}
}

func TestSectionHeadersFindSection(t *testing.T) {
	var data bytes.Buffer
	data.Write(buildSectionHeaderBytes(".text", 0x1000, 0x1000, 0x1000))
	data.Write(buildSectionHeaderBytes(".data", 0x1000, 0x2000, 0x1000))

	sh, err := parseSectionHeaders(data.Bytes())
	if err != nil {
		t.Fatalf("parseSectionHeaders failed: %v", err)
	}

	sec, off := sh.FindSection(0x2010)
	if sec != 2 || off != 0x10 {
		t.Errorf("FindSection(0x2010) = (%d, 0x%x), want (2, 0x10)", sec, off)
	}
	sec, off = sh.FindSection(0x9999)
	if sec != 0 || off != 0 {
		t.Errorf("FindSection(0x9999) = (%d, 0x%x), want (0, 0)", sec, off)
	}
}

func TestParseSectionHeadersEmptyData(t *testing.T) {
	sh, err := parseSectionHeaders(nil)
	if err != nil {
		t.Fatalf("parseSectionHeaders(nil) failed: %v", err)
	}
	if sh.Count() != 0 {
		t.Errorf("Count() = %d, want 0", sh.Count())
	}
}
