package tpi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skdltmxn/pdb-go/internal/stream"
)

// TPI stream version constants
const (
	TPIVersionV40 uint32 = 19950410
	TPIVersionV41 uint32 = 19951122
	TPIVersionV50 uint32 = 19961031
	TPIVersionV70 uint32 = 19990903
	TPIVersionV80 uint32 = 20040203 // Current version
)

// TPI Header size
const TPIHeaderSize = 56

// Errors
var (
	ErrInvalidTPIHeader            = errors.New("tpi: invalid TPI header")
	ErrUnsupportedVersion          = errors.New("tpi: unsupported TPI version")
	ErrTypeIndexOutOfRange         = errors.New("tpi: type index out of range")
	ErrInvalidTypeRecord           = errors.New("tpi: invalid type record")
	ErrUnhandledLeafType           = errors.New("tpi: unhandled leaf_type")
	ErrUnhandledFieldListSubRecord = errors.New("tpi: unhandled field list sub-record")
	ErrFieldListNotAType           = errors.New("tpi: LF_FIELDLIST has no standalone type descriptor")
)

// Header represents the TPI or IPI stream header.
type Header struct {
	// Version is always V80 (20040203) in modern PDBs
	Version uint32

	// HeaderSize is the size of this header (typically 56 bytes)
	HeaderSize uint32

	// TypeIndexBegin is the first valid type index (typically 0x1000)
	TypeIndexBegin TypeIndex

	// TypeIndexEnd is one past the last type index
	TypeIndexEnd TypeIndex

	// TypeRecordBytes is the total size of type record data
	TypeRecordBytes uint32

	// HashStreamIndex is the MSF stream containing hash data
	HashStreamIndex uint16

	// HashAuxStreamIndex is auxiliary hash stream (usually 0xFFFF)
	HashAuxStreamIndex uint16

	// HashKeySize is the size of hash keys (typically 4)
	HashKeySize uint32

	// NumHashBuckets is the number of hash buckets
	NumHashBuckets uint32

	// HashValueBufferOffset and HashValueBufferLength describe hash values
	HashValueBufferOffset int32
	HashValueBufferLength uint32

	// IndexOffsetBufferOffset and IndexOffsetBufferLength for type lookups
	IndexOffsetBufferOffset int32
	IndexOffsetBufferLength uint32

	// HashAdjBufferOffset and HashAdjBufferLength for incremental linking
	HashAdjBufferOffset int32
	HashAdjBufferLength uint32
}

// TypeCount returns the number of type records.
func (h *Header) TypeCount() uint32 {
	return uint32(h.TypeIndexEnd - h.TypeIndexBegin)
}

// Stream represents a parsed TPI or IPI stream.
type Stream struct {
	Header Header

	// rawRecords holds the raw type record data
	rawRecords []byte

	// recordOffsets maps TypeIndex to byte offset in rawRecords
	// This enables O(1) random access to types
	recordOffsets map[TypeIndex]uint32

	// parsed types cache with thread-safe access
	typeCache sync.Map // map[TypeIndex]*TypeRecord

	mu sync.RWMutex
}

// ParseStream parses a TPI or IPI stream from raw data.
func ParseStream(data []byte) (*Stream, error) {
	if len(data) < TPIHeaderSize {
		return nil, ErrInvalidTPIHeader
	}

	r := stream.NewReader(data)
	s := &Stream{
		recordOffsets: make(map[TypeIndex]uint32),
	}

	if err := s.parseHeader(r); err != nil {
		return nil, err
	}

	recordStart := int(s.Header.HeaderSize)
	recordEnd := recordStart + int(s.Header.TypeRecordBytes)
	if recordEnd > len(data) {
		return nil, fmt.Errorf("tpi: truncated stream: expected %d bytes, got %d", recordEnd, len(data))
	}
	s.rawRecords = data[recordStart:recordEnd]

	if err := s.buildOffsetIndex(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Stream) parseHeader(r *stream.Reader) error {
	version, err := r.ReadU32()
	if err != nil {
		return err
	}
	if version != TPIVersionV80 && version != TPIVersionV70 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	s.Header.Version = version

	f := fieldsFrom(r)
	s.Header.HeaderSize = f.u32()
	s.Header.TypeIndexBegin = TypeIndex(f.u32())
	s.Header.TypeIndexEnd = TypeIndex(f.u32())
	s.Header.TypeRecordBytes = f.u32()
	s.Header.HashStreamIndex = f.u16()
	s.Header.HashAuxStreamIndex = f.u16()
	s.Header.HashKeySize = f.u32()
	s.Header.NumHashBuckets = f.u32()
	s.Header.HashValueBufferOffset = f.i32()
	s.Header.HashValueBufferLength = f.u32()
	s.Header.IndexOffsetBufferOffset = f.i32()
	s.Header.IndexOffsetBufferLength = f.u32()
	s.Header.HashAdjBufferOffset = f.i32()
	s.Header.HashAdjBufferLength = f.u32()
	return f.err
}

// buildOffsetIndex scans the record data to build the type index -> offset mapping.
func (s *Stream) buildOffsetIndex() error {
	r := stream.NewReader(s.rawRecords)
	typeIndex := s.Header.TypeIndexBegin

	for r.Remaining() > 0 && typeIndex < s.Header.TypeIndexEnd {
		offset := uint32(r.Offset())
		s.recordOffsets[typeIndex] = offset

		recordLen, err := r.ReadU16()
		if err != nil {
			return err
		}
		if err := r.Skip(int(recordLen)); err != nil {
			return err
		}

		typeIndex++
	}

	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d residual bytes after the last type record", ErrInvalidTypeRecord, r.Remaining())
	}

	return nil
}

// TypeRecord represents a parsed type record.
type TypeRecord struct {
	Kind TypeRecordKind
	Data []byte // Raw record data (excluding length and kind)
}

// GetTypeRecord returns the raw type record for the given index.
func (s *Stream) GetTypeRecord(ti TypeIndex) (*TypeRecord, error) {
	if cached, ok := s.typeCache.Load(ti); ok {
		return cached.(*TypeRecord), nil
	}

	if ti.IsSimpleType() {
		return nil, nil // Simple types don't have records
	}

	if ti < s.Header.TypeIndexBegin || ti >= s.Header.TypeIndexEnd {
		return nil, fmt.Errorf("%w: %d", ErrTypeIndexOutOfRange, ti)
	}

	offset, ok := s.recordOffsets[ti]
	if !ok {
		return nil, fmt.Errorf("%w: no offset for type %d", ErrTypeIndexOutOfRange, ti)
	}

	r := stream.NewReader(s.rawRecords[offset:])

	recordLen, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	kind, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	// recordLen includes the kind field, so subtract 2
	dataLen := int(recordLen) - 2
	if dataLen < 0 {
		return nil, ErrInvalidTypeRecord
	}

	data, err := r.ReadBytesRef(dataLen)
	if err != nil {
		return nil, err
	}

	record := &TypeRecord{
		Kind: TypeRecordKind(kind),
		Data: data,
	}

	s.typeCache.Store(ti, record)

	return record, nil
}

// TypeIndexBegin returns the first valid type index.
func (s *Stream) TypeIndexBegin() TypeIndex {
	return s.Header.TypeIndexBegin
}

// TypeIndexEnd returns one past the last valid type index.
func (s *Stream) TypeIndexEnd() TypeIndex {
	return s.Header.TypeIndexEnd
}

// TypeCount returns the number of type records.
func (s *Stream) TypeCount() uint32 {
	return s.Header.TypeCount()
}

// fields wraps a *stream.Reader and makes a sequence of field reads
// short-circuit after the first error: every read past a failure returns
// the zero value instead of touching the underlying reader, so a record
// parser can read its whole layout in a straight line and check err once
// at the end instead of after every field.
type fields struct {
	r   *stream.Reader
	err error
}

func fieldsFrom(r *stream.Reader) *fields { return &fields{r: r} }

func newFields(data []byte) *fields { return &fields{r: stream.NewReader(data)} }

func (f *fields) u8() uint8 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU8()
	f.err = err
	return v
}

func (f *fields) u16() uint16 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU16()
	f.err = err
	return v
}

func (f *fields) u32() uint32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU32()
	f.err = err
	return v
}

func (f *fields) i32() int32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadI32()
	f.err = err
	return v
}

func (f *fields) numeric() uint64 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadNumeric()
	f.err = err
	return v
}

func (f *fields) cstring() string {
	if f.err != nil {
		return ""
	}
	v, err := f.r.ReadCString()
	f.err = err
	return v
}

// ModifierRecord represents an LF_MODIFIER type.
type ModifierRecord struct {
	ModifiedType TypeIndex
	Modifiers    ModifierOptions
}

// ParseModifierRecord parses an LF_MODIFIER record.
func ParseModifierRecord(data []byte) (*ModifierRecord, error) {
	f := newFields(data)
	rec := &ModifierRecord{
		ModifiedType: TypeIndex(f.u32()),
		Modifiers:    ModifierOptions(f.u16()),
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

// PointerRecord represents an LF_POINTER type.
type PointerRecord struct {
	ReferentType TypeIndex
	Attributes   PointerAttributes
	// MemberInfo is present only for pointer-to-member
	ContainingClass TypeIndex // Only if pointer-to-member
}

// ParsePointerRecord parses an LF_POINTER record.
func ParsePointerRecord(data []byte) (*PointerRecord, error) {
	f := newFields(data)
	rec := &PointerRecord{
		ReferentType: TypeIndex(f.u32()),
		Attributes:   PointerAttributes(f.u32()),
	}
	if f.err != nil {
		return nil, f.err
	}

	mode := rec.Attributes.Mode()
	if mode == PointerModePointerToDataMember || mode == PointerModePointerToMemberFunction {
		rec.ContainingClass = TypeIndex(f.u32())
		if f.err != nil {
			return nil, f.err
		}
	}

	return rec, nil
}

// ProcedureRecord represents an LF_PROCEDURE type (function signature).
type ProcedureRecord struct {
	ReturnType      TypeIndex
	CallingConv     CallingConvention
	FunctionOptions FunctionOptions
	ParameterCount  uint16
	ArgumentList    TypeIndex
}

// ParseProcedureRecord parses an LF_PROCEDURE record.
func ParseProcedureRecord(data []byte) (*ProcedureRecord, error) {
	f := newFields(data)
	rec := &ProcedureRecord{
		ReturnType:      TypeIndex(f.u32()),
		CallingConv:     CallingConvention(f.u8()),
		FunctionOptions: FunctionOptions(f.u8()),
		ParameterCount:  f.u16(),
		ArgumentList:    TypeIndex(f.u32()),
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

// MFunctionRecord represents an LF_MFUNCTION type (member function).
type MFunctionRecord struct {
	ReturnType      TypeIndex
	ClassType       TypeIndex
	ThisType        TypeIndex
	CallingConv     CallingConvention
	FunctionOptions FunctionOptions
	ParameterCount  uint16
	ArgumentList    TypeIndex
	ThisAdjust      int32
}

// ParseMFunctionRecord parses an LF_MFUNCTION record.
func ParseMFunctionRecord(data []byte) (*MFunctionRecord, error) {
	f := newFields(data)
	rec := &MFunctionRecord{
		ReturnType:      TypeIndex(f.u32()),
		ClassType:       TypeIndex(f.u32()),
		ThisType:        TypeIndex(f.u32()),
		CallingConv:     CallingConvention(f.u8()),
		FunctionOptions: FunctionOptions(f.u8()),
		ParameterCount:  f.u16(),
		ArgumentList:    TypeIndex(f.u32()),
		ThisAdjust:      f.i32(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

// ArgListRecord represents an LF_ARGLIST type.
type ArgListRecord struct {
	ArgTypes []TypeIndex
}

// ParseArgListRecord parses an LF_ARGLIST record.
func ParseArgListRecord(data []byte) (*ArgListRecord, error) {
	r := stream.NewReader(data)

	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	args := make([]TypeIndex, count)
	for i := uint32(0); i < count; i++ {
		argType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		args[i] = TypeIndex(argType)
	}

	return &ArgListRecord{ArgTypes: args}, nil
}

// ArrayRecord represents an LF_ARRAY type.
type ArrayRecord struct {
	ElementType TypeIndex
	IndexType   TypeIndex
	Size        uint64
	Name        string
}

// ParseArrayRecord parses an LF_ARRAY record.
func ParseArrayRecord(data []byte) (*ArrayRecord, error) {
	f := newFields(data)
	rec := &ArrayRecord{
		ElementType: TypeIndex(f.u32()),
		IndexType:   TypeIndex(f.u32()),
		Size:        f.numeric(),
		Name:        f.cstring(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

// ClassRecord represents an LF_CLASS, LF_STRUCTURE, or LF_INTERFACE type.
type ClassRecord struct {
	MemberCount uint16
	Properties  ClassProperties
	FieldList   TypeIndex
	DerivedFrom TypeIndex
	VShape      TypeIndex
	Size        uint64
	Name        string
	UniqueName  string // Only if HasUniqueName property is set
}

// ParseClassRecord parses an LF_CLASS, LF_STRUCTURE, or LF_INTERFACE record.
func ParseClassRecord(data []byte) (*ClassRecord, error) {
	f := newFields(data)
	rec := &ClassRecord{
		MemberCount: f.u16(),
		Properties:  ClassProperties(f.u16()),
		FieldList:   TypeIndex(f.u32()),
		DerivedFrom: TypeIndex(f.u32()),
		VShape:      TypeIndex(f.u32()),
		Size:        f.numeric(),
		Name:        f.cstring(),
	}
	if f.err != nil {
		return nil, f.err
	}

	if rec.Properties.HasUniqueName() {
		rec.UniqueName = f.cstring()
		if f.err != nil {
			return nil, f.err
		}
	}

	return rec, nil
}

// UnionRecord represents an LF_UNION type.
type UnionRecord struct {
	MemberCount uint16
	Properties  ClassProperties
	FieldList   TypeIndex
	Size        uint64
	Name        string
	UniqueName  string
}

// ParseUnionRecord parses an LF_UNION record.
func ParseUnionRecord(data []byte) (*UnionRecord, error) {
	f := newFields(data)
	rec := &UnionRecord{
		MemberCount: f.u16(),
		Properties:  ClassProperties(f.u16()),
		FieldList:   TypeIndex(f.u32()),
		Size:        f.numeric(),
		Name:        f.cstring(),
	}
	if f.err != nil {
		return nil, f.err
	}

	if rec.Properties.HasUniqueName() {
		rec.UniqueName = f.cstring()
		if f.err != nil {
			return nil, f.err
		}
	}

	return rec, nil
}

// EnumRecord represents an LF_ENUM type.
type EnumRecord struct {
	Count          uint16
	Properties     ClassProperties
	UnderlyingType TypeIndex
	FieldList      TypeIndex
	Name           string
	UniqueName     string
}

// ParseEnumRecord parses an LF_ENUM record.
func ParseEnumRecord(data []byte) (*EnumRecord, error) {
	f := newFields(data)
	rec := &EnumRecord{
		Count:          f.u16(),
		Properties:     ClassProperties(f.u16()),
		UnderlyingType: TypeIndex(f.u32()),
		FieldList:      TypeIndex(f.u32()),
		Name:           f.cstring(),
	}
	if f.err != nil {
		return nil, f.err
	}

	if rec.Properties.HasUniqueName() {
		rec.UniqueName = f.cstring()
		if f.err != nil {
			return nil, f.err
		}
	}

	return rec, nil
}

// BitFieldRecord represents an LF_BITFIELD type.
type BitFieldRecord struct {
	Type     TypeIndex
	Length   uint8
	Position uint8
}

// ParseBitFieldRecord parses an LF_BITFIELD record.
func ParseBitFieldRecord(data []byte) (*BitFieldRecord, error) {
	f := newFields(data)
	rec := &BitFieldRecord{
		Type:     TypeIndex(f.u32()),
		Length:   f.u8(),
		Position: f.u8(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}
