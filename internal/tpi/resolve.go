package tpi

// ForwardResolution is the result of the pass 2 walk over a TPI stream:
// a name -> type index table built once over every aggregate record
// (preferring non-forward definitions), and a cache of array element
// counts computed from each LF_ARRAY's total byte size and its
// (possibly forward-declared) element type.
type ForwardResolution struct {
	// names maps an aggregate's tag name to the type index of its
	// preferred (non-forward, or only available) definition.
	names map[string]TypeIndex

	// counts maps an LF_ARRAY's own type index to its resolved element
	// count.
	counts map[TypeIndex]uint64
}

type aggregateInfo struct {
	name      string
	isForward bool
	size      uint64
}

// Resolve walks every record in the stream once to build the name index,
// then a second time to resolve LF_ARRAY element counts. Pass 1 (parsing
// each record into the append-only offset table) already happened in
// ParseStream; this only ever reads, never mutates, that table.
func (s *Stream) Resolve() (*ForwardResolution, error) {
	begin, end := s.Header.TypeIndexBegin, s.Header.TypeIndexEnd

	aggregates := make(map[TypeIndex]aggregateInfo)
	names := make(map[string]TypeIndex)

	for ti := begin; ti < end; ti++ {
		rec, err := s.GetTypeRecord(ti)
		if err != nil || rec == nil {
			continue
		}

		info, ok := aggregateInfoOf(rec, ti)
		if !ok {
			continue
		}
		aggregates[ti] = info

		existing, have := names[info.name]
		if !have {
			names[info.name] = ti
			continue
		}
		// Prefer a non-forward definition over a forward one; once a
		// non-forward definition is recorded for a name, later forward
		// declarations of the same name never replace it.
		if existingInfo, ok := aggregates[existing]; ok && existingInfo.isForward && !info.isForward {
			names[info.name] = ti
		}
	}

	counts := make(map[TypeIndex]uint64)

	for ti := begin; ti < end; ti++ {
		rec, err := s.GetTypeRecord(ti)
		if err != nil || rec == nil || rec.Kind != LF_ARRAY {
			continue
		}

		arr, err := ParseArrayRecord(rec.Data)
		if err != nil {
			continue
		}

		elemSize, ok := resolveAggregateSize(arr.ElementType, aggregates, names)
		if !ok || elemSize == 0 {
			continue
		}

		counts[ti] = arr.Size / elemSize
	}

	return &ForwardResolution{names: names, counts: counts}, nil
}

// aggregateInfoOf extracts the name, forward-reference flag, and byte
// size from a class/struct/union/enum record, synthesizing a name for
// anonymous tags along the way so the name index keys an anonymous
// struct/union/enum the same way the emitter does.
func aggregateInfoOf(rec *TypeRecord, ti TypeIndex) (aggregateInfo, bool) {
	switch rec.Kind {
	case LF_CLASS, LF_CLASS_ST, LF_STRUCTURE, LF_STRUCTURE_ST, LF_INTERFACE:
		c, err := ParseClassRecord(rec.Data)
		if err != nil {
			return aggregateInfo{}, false
		}
		return aggregateInfo{name: DisplayName(c.Name, ti), isForward: c.Properties.IsForwardRef(), size: c.Size}, true

	case LF_UNION, LF_UNION_ST:
		u, err := ParseUnionRecord(rec.Data)
		if err != nil {
			return aggregateInfo{}, false
		}
		return aggregateInfo{name: DisplayName(u.Name, ti), isForward: u.Properties.IsForwardRef(), size: u.Size}, true

	case LF_ENUM, LF_ENUM_ST:
		e, err := ParseEnumRecord(rec.Data)
		if err != nil {
			return aggregateInfo{}, false
		}
		return aggregateInfo{name: DisplayName(e.Name, ti), isForward: e.Properties.IsForwardRef()}, true

	default:
		return aggregateInfo{}, false
	}
}

// resolveAggregateSize returns the byte size of the aggregate at ti,
// following a forward-reference name lookup if ti itself is only a
// forward declaration.
func resolveAggregateSize(ti TypeIndex, aggregates map[TypeIndex]aggregateInfo, names map[string]TypeIndex) (uint64, bool) {
	if ti < 0x1000 {
		return 0, false
	}

	info, ok := aggregates[ti]
	if !ok {
		return 0, false
	}
	if !info.isForward {
		return info.size, true
	}

	resolved, ok := names[info.name]
	if !ok || resolved == ti {
		return 0, false
	}
	resolvedInfo, ok := aggregates[resolved]
	if !ok {
		return 0, false
	}
	return resolvedInfo.size, true
}

// NameIndex returns the name -> type index table built in pass 2,
// preferring non-forward definitions of each aggregate tag.
func (r *ForwardResolution) NameIndex() map[string]TypeIndex {
	return r.names
}

// ArrayCount returns the element count resolved for the LF_ARRAY at ti,
// if its element type's size could be determined.
func (r *ForwardResolution) ArrayCount(ti TypeIndex) (uint64, bool) {
	count, ok := r.counts[ti]
	return count, ok
}
