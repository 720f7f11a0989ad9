package pdb

import (
	"github.com/skdltmxn/pdb-go/internal/dbi"
)

// omapTranslator adapts a dbi.OMAPTable to the pdb package's address
// resolution path, so callers outside internal/dbi never need to
// import it directly.
type omapTranslator struct {
	table *dbi.OMAPTable
}

// Translate maps a source-image RVA through the OMAP table. ok is
// false if the table is absent, in which case rva is returned as-is, or
// if rva precedes every entry (see dbi.OMAPTable.Lookup). An rva that
// falls on a discarded range translates to 0 with ok true.
func (t *omapTranslator) Translate(rva uint32) (translated uint32, ok bool) {
	if t == nil || t.table == nil {
		return rva, false
	}
	return t.table.Lookup(rva)
}

// omapTranslator returns the OMAP_FROM_SRC translator for this file, loading it
// lazily. A nil *omapTranslator (with err == nil) means the PDB simply
// doesn't carry transformed/original section pairs -- not an error.
func (f *File) omapTranslator() (*omapTranslator, error) {
	f.omapOnce.Do(func() {
		dbiStream, err := f.getDBI()
		if err != nil {
			f.omapErr = err
			return
		}
		if dbiStream.OptionalDbgStreams == nil {
			return
		}

		idx := dbiStream.OptionalDbgStreams.OmapFromSrcStreamIndex
		if idx == dbi.InvalidStreamIndex {
			return
		}

		data, err := f.msf.ReadStream(uint32(idx))
		if err != nil {
			f.omapErr = err
			return
		}

		table, err := dbi.ParseOMAPTable(data)
		if err != nil {
			f.omapErr = err
			return
		}

		f.omap = &omapTranslator{table: table}
	})

	return f.omap, f.omapErr
}

// TranslateAddress maps a (section, offset) pair computed against the
// original image's section headers through the OMAP table, if one is
// present. If no OMAP table is available, the RVA is returned
// unchanged -- most PDBs were never transformed and don't carry one.
// If a table is present but has no entry covering rva, or the covering
// entry marks a hole, the address resolves to 0.
func (f *File) TranslateAddress(rva uint32) uint32 {
	t, err := f.omapTranslator()
	if err != nil || t == nil {
		return rva
	}
	translated, ok := t.Translate(rva)
	if !ok {
		f.addDiagnostic(Diagnostic{
			Kind:    DiagOMAPMiss,
			Stream:  "omap",
			Message: "rva precedes every OMAP entry, resolving to 0",
		})
		return 0
	}
	return translated
}
