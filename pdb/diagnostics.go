package pdb

import "fmt"

// DiagnosticKind classifies a non-fatal anomaly encountered while
// decoding a PDB. Unlike the sentinel errors in errors.go, a
// Diagnostic never aborts decoding -- it records that the decoder made
// a judgment call (skipped a record, fell back to a default) so the
// caller can decide whether that matters for their use case.
type DiagnosticKind int

const (
	// DiagUnknownSymbolLeaf marks a symbol record whose leaf_type the
	// decoder doesn't recognize. The record is skipped.
	DiagUnknownSymbolLeaf DiagnosticKind = iota

	// DiagMissingSymbolName marks a symbol record that decoded but
	// produced an empty name.
	DiagMissingSymbolName

	// DiagOMAPMiss marks an address that fell outside the OMAP table's
	// coverage and could not be translated.
	DiagOMAPMiss

	// DiagDuplicateSymbolName marks a public symbol name seen more than
	// once; the later occurrence wins.
	DiagDuplicateSymbolName

	// DiagSectionHeadersUnavailable marks a PDB with no usable section
	// header stream (neither the original nor the transformed one).
	DiagSectionHeadersUnavailable

	// DiagMissingTypeName marks a struct/union/enum record whose name
	// came back empty where the emitted document needs one.
	DiagMissingTypeName

	// DiagTypeResolutionFailed marks a type the emitter could not fully
	// resolve -- an LF_ARRAY whose element size couldn't be determined,
	// or a field list whose sub-records it couldn't walk to the end.
	// The affected type is emitted with partial information rather than
	// aborting the whole document.
	DiagTypeResolutionFailed
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagUnknownSymbolLeaf:
		return "unknown_symbol_leaf"
	case DiagMissingSymbolName:
		return "missing_symbol_name"
	case DiagOMAPMiss:
		return "omap_miss"
	case DiagDuplicateSymbolName:
		return "duplicate_symbol_name"
	case DiagSectionHeadersUnavailable:
		return "section_headers_unavailable"
	case DiagMissingTypeName:
		return "missing_type_name"
	case DiagTypeResolutionFailed:
		return "type_resolution_failed"
	default:
		return "unknown"
	}
}

// Diagnostic is a single recorded anomaly, with enough context to
// locate its source without aborting the decode that produced it.
type Diagnostic struct {
	Kind    DiagnosticKind
	Stream  string
	Offset  int64
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s (stream=%s offset=0x%x)", d.Kind, d.Message, d.Stream, d.Offset)
}

// Diagnostics accumulates Diagnostic values produced during a decode.
// It is not a logger: nothing is printed, the caller chooses what (if
// anything) to do with the collected values.
type Diagnostics struct {
	items []Diagnostic
}

// Add appends a diagnostic to the collector.
func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

// All returns every diagnostic collected so far.
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Len returns the number of diagnostics collected so far.
func (d *Diagnostics) Len() int {
	return len(d.items)
}
