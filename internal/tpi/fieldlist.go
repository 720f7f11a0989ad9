package tpi

import (
	"github.com/skdltmxn/pdb-go/internal/stream"
)

// MemberRecord represents an LF_MEMBER or LF_MEMBER_ST sub-record: a
// non-static data member of a class, struct, or union.
type MemberRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Offset uint64
	Name   string
}

// StaticMemberRecord represents an LF_STMEMBER or LF_STMEMBER_ST
// sub-record: a static data member, which carries no offset.
type StaticMemberRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Name   string
}

// EnumerateRecord represents an LF_ENUMERATE or LF_ENUMERATE_ST
// sub-record: one named constant inside an enum's field list.
type EnumerateRecord struct {
	Access MemberAccess
	Value  uint64
	Name   string
}

// BaseClassRecord represents an LF_BCLASS sub-record: a direct,
// non-virtual base class.
type BaseClassRecord struct {
	Access MemberAccess
	Type   TypeIndex
	Offset uint64
}

// VirtualBaseClassRecord represents an LF_VBCLASS or LF_IVBCLASS
// sub-record: a virtual (or indirect virtual) base class.
type VirtualBaseClassRecord struct {
	Access      MemberAccess
	BaseType    TypeIndex
	VBPtrType   TypeIndex
	VBPtrOffset uint64
	VBIndex     uint64
}

// skippedRecord represents a recognized-but-uninterpreted sub-record
// (methods, nested types, vtable entries, friend declarations). Its
// bytes are already consumed by the time it is produced; it exists only
// so callers can account for it in diagnostics.
type skippedRecord struct {
	Kind TypeRecordKind
}

// FieldListRecord is the decoded body of an LF_FIELDLIST record: the
// ordered sequence of member/base-class/enumerate sub-records it holds.
type FieldListRecord struct {
	Members []any
}

func isSTKind(kind TypeRecordKind) bool {
	switch kind {
	case LF_MEMBER_ST, LF_STMEMBER_ST, LF_ENUMERATE_ST, LF_METHOD_ST,
		LF_ONEMETHOD_ST, LF_NESTTYPE_ST, LF_NESTTYPEEX_ST, LF_FRIENDFCN_ST:
		return true
	default:
		return false
	}
}

func readFieldName(r *stream.Reader, st bool) (string, error) {
	if st {
		return r.ReadPascalString()
	}
	return r.ReadCString()
}

// ParseFieldListRecord decodes the sub-record stream inside an
// LF_FIELDLIST body. Sub-records are read back to back with the §4.2
// padding rule applied between them: a byte whose high nibble is 0xF
// indicates (byte & 0x0F) bytes of padding, including itself.
func ParseFieldListRecord(data []byte) (*FieldListRecord, error) {
	r := stream.NewReader(data)
	result := &FieldListRecord{}

	for r.Remaining() > 0 {
		peek, err := r.PeekU8()
		if err != nil {
			return nil, err
		}
		if peek&0xF0 == 0xF0 {
			if err := r.Skip(int(peek & 0x0F)); err != nil {
				return nil, err
			}
			continue
		}

		kind, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		rk := TypeRecordKind(kind)
		st := isSTKind(rk)

		member, err := parseFieldListSubRecord(r, rk, st)
		if err != nil {
			return nil, err
		}
		if member != nil {
			result.Members = append(result.Members, member)
		}
	}

	return result, nil
}

func parseFieldListSubRecord(r *stream.Reader, kind TypeRecordKind, st bool) (any, error) {
	switch kind {
	case LF_MEMBER, LF_MEMBER_ST:
		access, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		fieldType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offset, err := r.ReadNumeric()
		if err != nil {
			return nil, err
		}
		name, err := readFieldName(r, st)
		if err != nil {
			return nil, err
		}
		return &MemberRecord{
			Access: MemberAccess(access & 0x3),
			Type:   TypeIndex(fieldType),
			Offset: offset,
			Name:   name,
		}, nil

	case LF_STMEMBER, LF_STMEMBER_ST:
		access, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		fieldType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		name, err := readFieldName(r, st)
		if err != nil {
			return nil, err
		}
		return &StaticMemberRecord{
			Access: MemberAccess(access & 0x3),
			Type:   TypeIndex(fieldType),
			Name:   name,
		}, nil

	case LF_ENUMERATE, LF_ENUMERATE_ST:
		access, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		value, err := r.ReadNumeric()
		if err != nil {
			return nil, err
		}
		name, err := readFieldName(r, st)
		if err != nil {
			return nil, err
		}
		return &EnumerateRecord{
			Access: MemberAccess(access & 0x3),
			Value:  value,
			Name:   name,
		}, nil

	case LF_BCLASS:
		access, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		baseType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offset, err := r.ReadNumeric()
		if err != nil {
			return nil, err
		}
		return &BaseClassRecord{
			Access: MemberAccess(access & 0x3),
			Type:   TypeIndex(baseType),
			Offset: offset,
		}, nil

	case LF_VBCLASS, LF_IVBCLASS:
		access, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		baseType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		vbptrType, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		vbpoff, err := r.ReadNumeric()
		if err != nil {
			return nil, err
		}
		vbind, err := r.ReadNumeric()
		if err != nil {
			return nil, err
		}
		return &VirtualBaseClassRecord{
			Access:      MemberAccess(access & 0x3),
			BaseType:    TypeIndex(baseType),
			VBPtrType:   TypeIndex(vbptrType),
			VBPtrOffset: vbpoff,
			VBIndex:     vbind,
		}, nil

	case LF_VFUNCTAB, LF_FRIENDCLS:
		if _, err := r.ReadU16(); err != nil { // pad0
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // type
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_VFUNCOFF:
		if _, err := r.ReadU16(); err != nil { // pad0
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // type
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // offset
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_FRIENDFCN, LF_FRIENDFCN_ST:
		if _, err := r.ReadU16(); err != nil { // pad0
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // index
			return nil, err
		}
		if _, err := readFieldName(r, st); err != nil {
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_NESTTYPE, LF_NESTTYPE_ST:
		if _, err := r.ReadU16(); err != nil { // pad0
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // index
			return nil, err
		}
		if _, err := readFieldName(r, st); err != nil {
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_NESTTYPEEX, LF_NESTTYPEEX_ST:
		if _, err := r.ReadU16(); err != nil { // attributes
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // index
			return nil, err
		}
		if _, err := readFieldName(r, st); err != nil {
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_METHOD, LF_METHOD_ST:
		if _, err := r.ReadU16(); err != nil { // count
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // method list index
			return nil, err
		}
		if _, err := readFieldName(r, st); err != nil {
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	case LF_ONEMETHOD, LF_ONEMETHOD_ST:
		attrs, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadU32(); err != nil { // method type
			return nil, err
		}
		// intro/pure-intro virtual methods carry a trailing vtable offset
		methodKind := MethodKind((attrs >> 2) & 0x7)
		if methodKind == MethodKindIntroVirtual || methodKind == MethodKindPureIntro {
			if _, err := r.ReadU32(); err != nil { // vtable offset
				return nil, err
			}
		}
		if _, err := readFieldName(r, st); err != nil {
			return nil, err
		}
		return &skippedRecord{Kind: kind}, nil

	default:
		return &skippedRecord{Kind: kind}, ErrUnhandledFieldListSubRecord
	}
}
