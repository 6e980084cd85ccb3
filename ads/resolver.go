package ads

import (
	"fmt"
	"strconv"
	"strings"
)

// FindTag is the result of resolving a tag path: enough to issue a read or
// write and to drive the value codec.
type FindTag struct {
	Group         uint32
	Offset        uint32
	Size          uint32
	TypeName      string
	PrimitiveKind PrimitiveKind
}

// pathSegment is one dot-separated component of a tag path together with
// any bracketed indices that followed its name.
type pathSegment struct {
	name    string
	indices []int
}

// parseTagPath splits a path like ".Program.Var[3][1].Field[0]" into
// segments. A leading dot produces an empty first segment.
func parseTagPath(path string) ([]pathSegment, error) {
	parts := strings.Split(path, ".")
	segments := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		name, indices, err := splitIndices(part)
		if err != nil {
			return nil, err
		}
		segments = append(segments, pathSegment{name: name, indices: indices})
	}
	return segments, nil
}

// splitIndices splits "Var[3][1]" into ("Var", [3, 1]).
func splitIndices(segment string) (string, []int, error) {
	bracket := strings.IndexByte(segment, '[')
	if bracket < 0 {
		return segment, nil, nil
	}
	name := segment[:bracket]
	rest := segment[bracket:]

	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("%w: malformed index in %q", ErrDecodeInvalid, segment)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("%w: unterminated index in %q", ErrDecodeInvalid, segment)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("%w: non-numeric index %q", ErrDecodeInvalid, rest[1:end])
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return name, indices, nil
}

// dictionary bundles the symbol and data-type tables a resolver needs; it is
// satisfied by Client's own caches.
type dictionary interface {
	lookupSymbol(upperName string) (*Symbol, bool)
	lookupDataType(typeName string) (*DataType, bool)
}

// resolveTagPath resolves a dotted/bracketed tag path: the first two
// segments form the symbol lookup key, and each remaining segment walks
// down a sub-item (and, if indexed, an array dimension).
func resolveTagPath(dict dictionary, path string) (FindTag, error) {
	segments, err := parseTagPath(path)
	if err != nil {
		return FindTag{}, err
	}
	if len(segments) < 2 {
		return FindTag{}, fmt.Errorf("%w: tag path %q needs at least two segments", ErrSymbolNotFound, path)
	}

	symbolKey := strings.ToUpper(segments[0].name + "." + segments[1].name)
	sym, ok := dict.lookupSymbol(symbolKey)
	if !ok {
		return FindTag{}, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbolKey)
	}

	tag := FindTag{
		Group:         sym.Group,
		Offset:        sym.Offset,
		Size:          sym.Size,
		TypeName:      sym.TypeName,
		PrimitiveKind: PrimitiveKind(sym.DataTypeId),
	}
	currentType, _ := dict.lookupDataType(sym.TypeName)

	if len(segments[1].indices) > 0 {
		if currentType == nil || len(currentType.ArrayDims) == 0 {
			return FindTag{}, fmt.Errorf("%w: %q is not an array", ErrArrayDimensionMismatch, symbolKey)
		}
		if err := foldArrayIndices(&tag, currentType, segments[1].indices); err != nil {
			return FindTag{}, err
		}
		currentType, _ = dict.lookupDataType(tag.TypeName)
	}

	for _, seg := range segments[2:] {
		if currentType == nil {
			return FindTag{}, fmt.Errorf("%w: %q has no sub-items to resolve %q", ErrSubItemNotFound, tag.TypeName, seg.name)
		}
		upperName := strings.ToUpper(seg.name)
		var sub *DataType
		for _, candidate := range currentType.SubItems {
			if strings.ToUpper(candidate.Name) == upperName {
				sub = candidate
				break
			}
		}
		if sub == nil {
			return FindTag{}, fmt.Errorf("%w: %q in %q", ErrSubItemNotFound, seg.name, currentType.Name)
		}

		tag.Offset += sub.Offset
		tag.Size = sub.Size
		tag.TypeName = sub.TypeName
		tag.PrimitiveKind = sub.PrimitiveKind

		if len(seg.indices) > 0 {
			if len(sub.ArrayDims) == 0 {
				return FindTag{}, fmt.Errorf("%w: %q is not an array", ErrArrayDimensionMismatch, seg.name)
			}
			if err := foldArrayIndices(&tag, sub, seg.indices); err != nil {
				return FindTag{}, err
			}
		}

		currentType, _ = dict.lookupDataType(tag.TypeName)
	}

	return tag, nil
}

// foldArrayIndices applies the array-index rule: indices are given
// innermost-first in the path, dimensions are stored outermost-first on the
// wire, so the k-th supplied index pairs with dimension len-1-k.
func foldArrayIndices(tag *FindTag, dt *DataType, indices []int) error {
	if len(indices) > len(dt.ArrayDims) {
		return fmt.Errorf("%w: %d indices supplied for %d dimensions", ErrArrayDimensionMismatch, len(indices), len(dt.ArrayDims))
	}

	size := tag.Size
	offset := tag.Offset
	for k, idx := range indices {
		dim := dt.ArrayDims[len(dt.ArrayDims)-1-k]
		if idx < int(dim.Start) || idx >= int(dim.Start)+int(dim.Length) {
			return fmt.Errorf("%w: index %d outside [%d,%d)", ErrIndexOutOfBounds, idx, dim.Start, int(dim.Start)+int(dim.Length))
		}
		size = size / dim.Length
		offset += size * uint32(idx-int(dim.Start))
	}

	tag.Offset = offset
	tag.Size = size
	return nil
}
