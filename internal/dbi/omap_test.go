package dbi

import (
	"encoding/binary"
	"testing"
)

func buildOMAPData(entries []OMAPEntry) []byte {
	data := make([]byte, len(entries)*omapEntrySize)
	for i, e := range entries {
		off := i * omapEntrySize
		binary.LittleEndian.PutUint32(data[off:], e.From)
		binary.LittleEndian.PutUint32(data[off+4:], e.To)
	}
	return data
}

func TestParseOMAPTable(t *testing.T) {
	entries := []OMAPEntry{
		{From: 0x1000, To: 0x4000},
		{From: 0x1020, To: 0x5020},
		{From: 0x1040, To: 0},
	}
	table, err := ParseOMAPTable(buildOMAPData(entries))
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}
	if table.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", table.Count())
	}
}

func TestOMAPLookupExactAndInterpolated(t *testing.T) {
	// Matches spec §8 scenario 6.
	entries := []OMAPEntry{
		{From: 0x1020, To: 0x5020},
		{From: 0x1040, To: 0},
	}
	table, err := ParseOMAPTable(buildOMAPData(entries))
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}

	to, ok := table.Lookup(0x1025)
	if !ok || to != 0x5025 {
		t.Errorf("Lookup(0x1025) = (0x%x, %v), want (0x5025, true)", to, ok)
	}

	to, ok = table.Lookup(0x1045)
	if !ok || to != 0 {
		t.Errorf("Lookup(0x1045) = (0x%x, %v), want (0, true) -- a deliberate hole", to, ok)
	}
}

func TestOMAPLookupBeforeFirstEntryIsAMiss(t *testing.T) {
	// Open Question (i): clamp to 0 / miss rather than walking before
	// the first entry.
	entries := []OMAPEntry{{From: 0x2000, To: 0x9000}}
	table, err := ParseOMAPTable(buildOMAPData(entries))
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}

	_, ok := table.Lookup(0x1000)
	if ok {
		t.Error("Lookup before first entry should miss")
	}
}

func TestOMAPLookupEmptyTable(t *testing.T) {
	table, err := ParseOMAPTable(nil)
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}
	if _, ok := table.Lookup(100); ok {
		t.Error("Lookup on empty table should miss")
	}
}

func TestOMAPMonotonicity(t *testing.T) {
	entries := []OMAPEntry{
		{From: 0x1000, To: 0x4000},
		{From: 0x1020, To: 0x5020},
		{From: 0x1100, To: 0x6000},
	}
	table, err := ParseOMAPTable(buildOMAPData(entries))
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}

	var last uint32
	for rva := uint32(0x1000); rva < 0x1200; rva += 8 {
		to, ok := table.Lookup(rva)
		if !ok || to == 0 {
			continue
		}
		if to < last {
			t.Fatalf("lookup(0x%x) = 0x%x, not monotonic after 0x%x", rva, to, last)
		}
		last = to
	}
}
