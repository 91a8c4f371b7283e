package main

// value.go - the tagged-value model shared by the compiler and the
// machine code it emits.
//
// Every runtime cell the compiled program manipulates is a 128-bit
// pair (tag, payload). The Go-side Tag/ValueKind types mirror that
// layout so the compiler can reason about kinds without re-deriving
// the wire format every time; the actual (tag,payload) pair only ever
// exists in registers and stack slots of the emitted program.

// Tag is the runtime discriminator stored in the low byte of a tagged
// value's first word. Values are deliberately distinct per kind so
// runtime dispatch never has to guess.
type Tag uint8

const (
	TagNil Tag = iota
	TagNumber
	TagBool
	TagString
	TagVector
	TagMap
	TagKeyword
	TagSet
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagNumber:
		return "number"
	case TagBool:
		return "bool"
	case TagString:
		return "string"
	case TagVector:
		return "vector"
	case TagMap:
		return "map"
	case TagKeyword:
		return "keyword"
	case TagSet:
		return "set"
	default:
		return "unknown"
	}
}

// IsHeap reports whether values of this tag own a heap block that
// must eventually be released by FreeLocal or a runtime free helper.
func (t Tag) IsHeap() bool {
	switch t {
	case TagString, TagVector, TagMap, TagSet, TagKeyword:
		return true
	default:
		return false
	}
}

// ValueKind is the compile-time approximation of a Tag used to select
// runtime helpers without paying for a runtime dispatch when the kind
// is statically known.
type ValueKind int

const (
	KindAny ValueKind = iota
	KindNumber
	KindBool
	KindNil
	KindString
	KindVector
	KindMap
	KindSet
	KindKeyword
)

func (k ValueKind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// Tag returns the runtime Tag a concrete ValueKind always produces.
// KindAny has no fixed tag - it is "could not be inferred in this
// pass" and callers must dispatch on the runtime tag instead.
func (k ValueKind) Tag() (Tag, bool) {
	switch k {
	case KindNumber:
		return TagNumber, true
	case KindBool:
		return TagBool, true
	case KindNil:
		return TagNil, true
	case KindString:
		return TagString, true
	case KindVector:
		return TagVector, true
	case KindMap:
		return TagMap, true
	case KindSet:
		return TagSet, true
	case KindKeyword:
		return TagKeyword, true
	default:
		return 0, false
	}
}

// IsHeap reports whether a concrete ValueKind owns a heap block.
// KindAny is conservatively treated as "maybe heap" by callers that
// need to be safe by default (e.g. clone-on-insertion); this method
// answers only for concrete kinds.
func (k ValueKind) IsHeap() bool {
	tag, ok := k.Tag()
	return ok && tag.IsHeap()
}

// OwnsHeapBlock reports whether a binding of this kind is subject to
// FreeLocal at its last use. Keywords are excluded even though their
// Tag reports IsHeap: the runtime interns keyword payloads (only one
// live payload per distinct name), so no binding ever individually
// owns one - freeing would either double-free a shared payload or
// require refcounting the interning table, and neither is worth
// building for a value this core treats as immutable and unique.
func (k ValueKind) OwnsHeapBlock() bool {
	return k.IsHeap() && k != KindKeyword
}
