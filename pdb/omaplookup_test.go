package pdb

import (
	"testing"

	"github.com/skdltmxn/pdb-go/internal/dbi"
)

func TestOmapTranslatorNilIsPassthrough(t *testing.T) {
	var tr *omapTranslator
	rva, ok := tr.Translate(0x1234)
	if ok {
		t.Error("nil translator should report ok=false")
	}
	if rva != 0x1234 {
		t.Errorf("rva = 0x%x, want unchanged 0x1234", rva)
	}
}

// primeOMAP bypasses the lazy dbi-stream load so TranslateAddress can be
// exercised without constructing a full MSF file. A nil table leaves
// f.omap unset, matching the real "PDB carries no OMAP stream" path.
func primeOMAP(f *File, table *dbi.OMAPTable) {
	f.omapOnce.Do(func() {})
	if table != nil {
		f.omap = &omapTranslator{table: table}
	}
}

func TestFileTranslateAddressWithTable(t *testing.T) {
	entries := []dbi.OMAPEntry{{From: 0x1020, To: 0x5020}, {From: 0x1040, To: 0}}
	table, err := dbi.ParseOMAPTable(buildOMAPBytes(entries))
	if err != nil {
		t.Fatalf("ParseOMAPTable failed: %v", err)
	}

	f := &File{}
	primeOMAP(f, table)

	if got := f.TranslateAddress(0x1025); got != 0x5025 {
		t.Errorf("TranslateAddress(0x1025) = 0x%x, want 0x5025", got)
	}
	if got := f.TranslateAddress(0x1045); got != 0 {
		t.Errorf("TranslateAddress(0x1045) = 0x%x, want 0 (hole)", got)
	}
}

func TestFileTranslateAddressNoTablePassesThrough(t *testing.T) {
	f := &File{}
	primeOMAP(f, nil)

	if got := f.TranslateAddress(0x9999); got != 0x9999 {
		t.Errorf("TranslateAddress(0x9999) = 0x%x, want unchanged 0x9999", got)
	}
}

func buildOMAPBytes(entries []dbi.OMAPEntry) []byte {
	data := make([]byte, len(entries)*8)
	for i, e := range entries {
		off := i * 8
		data[off] = byte(e.From)
		data[off+1] = byte(e.From >> 8)
		data[off+2] = byte(e.From >> 16)
		data[off+3] = byte(e.From >> 24)
		data[off+4] = byte(e.To)
		data[off+5] = byte(e.To >> 8)
		data[off+6] = byte(e.To >> 16)
		data[off+7] = byte(e.To >> 24)
	}
	return data
}
