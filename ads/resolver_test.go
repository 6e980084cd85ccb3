package ads

import (
	"errors"
	"testing"
)

func TestParseTagPath(t *testing.T) {
	segments, err := parseTagPath("Program.Var[3][1].Field[0]")
	if err != nil {
		t.Fatalf("parseTagPath: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	if segments[0].name != "Program" || len(segments[0].indices) != 0 {
		t.Errorf("segment 0 = %+v", segments[0])
	}
	if segments[1].name != "Var" || len(segments[1].indices) != 2 || segments[1].indices[0] != 3 || segments[1].indices[1] != 1 {
		t.Errorf("segment 1 = %+v", segments[1])
	}
	if segments[2].name != "Field" || len(segments[2].indices) != 1 || segments[2].indices[0] != 0 {
		t.Errorf("segment 2 = %+v", segments[2])
	}
}

func TestSplitIndicesMalformed(t *testing.T) {
	if _, _, err := splitIndices("Var[3"); err == nil {
		t.Error("expected error for unterminated index")
	}
	if _, _, err := splitIndices("Var[x]"); err == nil {
		t.Error("expected error for non-numeric index")
	}
}

// testDict implements the dictionary interface for resolver tests.
type testDict struct {
	symbols   map[string]*Symbol
	dataTypes map[string]*DataType
}

func (d *testDict) lookupSymbol(upperName string) (*Symbol, bool) {
	s, ok := d.symbols[upperName]
	return s, ok
}

func (d *testDict) lookupDataType(typeName string) (*DataType, bool) {
	dt, ok := d.dataTypes[typeName]
	return dt, ok
}

func TestResolveTagPathScalar(t *testing.T) {
	dict := &testDict{
		symbols: map[string]*Symbol{
			"MAIN.NCOUNT": {Group: 0x4020, Offset: 0x10, Size: 4, TypeName: "DINT", DataTypeId: uint32(KindInt32)},
		},
		dataTypes: map[string]*DataType{},
	}

	tag, err := resolveTagPath(dict, "MAIN.nCount")
	if err != nil {
		t.Fatalf("resolveTagPath: %v", err)
	}
	if tag.Group != 0x4020 || tag.Offset != 0x10 || tag.Size != 4 {
		t.Errorf("unexpected tag: %+v", tag)
	}
}

func TestResolveTagPathUnknownSymbol(t *testing.T) {
	dict := &testDict{symbols: map[string]*Symbol{}, dataTypes: map[string]*DataType{}}
	_, err := resolveTagPath(dict, "MAIN.missing")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestResolveTagPathStructField(t *testing.T) {
	pointType := &DataType{
		Name: "ST_Point",
		Size: 8,
		SubItems: []*DataType{
			{Name: "nX", Offset: 0, Size: 4, TypeName: "DINT", PrimitiveKind: KindInt32},
			{Name: "nY", Offset: 4, Size: 4, TypeName: "DINT", PrimitiveKind: KindInt32},
		},
	}
	dict := &testDict{
		symbols: map[string]*Symbol{
			"MAIN.STPOS": {Group: 0x4020, Offset: 0x100, Size: 8, TypeName: "ST_Point", DataTypeId: 0},
		},
		dataTypes: map[string]*DataType{"ST_Point": pointType},
	}

	tag, err := resolveTagPath(dict, "MAIN.stPos.nY")
	if err != nil {
		t.Fatalf("resolveTagPath: %v", err)
	}
	// case-insensitive sub-item match: "nY" looked up against "NY"
	if tag.Offset != 0x100+4 || tag.Size != 4 {
		t.Errorf("unexpected tag: %+v", tag)
	}
}

func TestResolveTagPathCaseInsensitiveSubItem(t *testing.T) {
	pointType := &DataType{
		Name: "ST_Point",
		Size: 8,
		SubItems: []*DataType{
			{Name: "NX", Offset: 0, Size: 4, TypeName: "DINT", PrimitiveKind: KindInt32},
		},
	}
	dict := &testDict{
		symbols: map[string]*Symbol{
			"MAIN.STPOS": {Group: 0x4020, Offset: 0, Size: 4, TypeName: "ST_Point", DataTypeId: 0},
		},
		dataTypes: map[string]*DataType{"ST_Point": pointType},
	}

	if _, err := resolveTagPath(dict, "MAIN.stPos.nx"); err != nil {
		t.Errorf("expected case-insensitive match, got error: %v", err)
	}
}

func TestResolveTagPathSubItemNotFound(t *testing.T) {
	pointType := &DataType{Name: "ST_Point", Size: 4, SubItems: []*DataType{
		{Name: "nX", Offset: 0, Size: 4, TypeName: "DINT", PrimitiveKind: KindInt32},
	}}
	dict := &testDict{
		symbols:   map[string]*Symbol{"MAIN.STPOS": {Size: 4, TypeName: "ST_Point"}},
		dataTypes: map[string]*DataType{"ST_Point": pointType},
	}
	_, err := resolveTagPath(dict, "MAIN.stPos.missing")
	if !errors.Is(err, ErrSubItemNotFound) {
		t.Errorf("expected ErrSubItemNotFound, got %v", err)
	}
}

func TestFoldArrayIndices(t *testing.T) {
	dt := &DataType{
		Size:      40,
		ArrayDims: []ArrayDim{{Start: 0, Length: 5}, {Start: 0, Length: 2}},
	}
	tag := &FindTag{Size: 40, Offset: 0x100}

	// path index order is innermost-first: [1][3] means inner=1, outer=3
	if err := foldArrayIndices(tag, dt, []int{1, 3}); err != nil {
		t.Fatalf("foldArrayIndices: %v", err)
	}
	// indices are folded in path order:
	// k=0: index 1 pairs with dims[1] (length 2): size 40/2=20, offset += 1*20=20
	// k=1: index 3 pairs with dims[0] (length 5): size 20/5=4, offset += 3*4=12
	wantOffset := uint32(0x100 + 20 + 12)
	if tag.Offset != wantOffset {
		t.Errorf("tag.Offset = 0x%x, want 0x%x", tag.Offset, wantOffset)
	}
	if tag.Size != 4 {
		t.Errorf("tag.Size = %d, want 4", tag.Size)
	}
}

func TestFoldArrayIndicesOutOfBounds(t *testing.T) {
	dt := &DataType{Size: 20, ArrayDims: []ArrayDim{{Start: 0, Length: 5}}}
	tag := &FindTag{Size: 20}
	if err := foldArrayIndices(tag, dt, []int{10}); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("expected ErrIndexOutOfBounds, got %v", err)
	}
}

func TestFoldArrayIndicesTooManyDimensions(t *testing.T) {
	dt := &DataType{Size: 20, ArrayDims: []ArrayDim{{Start: 0, Length: 5}}}
	tag := &FindTag{Size: 20}
	if err := foldArrayIndices(tag, dt, []int{1, 2}); !errors.Is(err, ErrArrayDimensionMismatch) {
		t.Errorf("expected ErrArrayDimensionMismatch, got %v", err)
	}
}

func TestResolveTagPathTooFewSegments(t *testing.T) {
	dict := &testDict{symbols: map[string]*Symbol{}, dataTypes: map[string]*DataType{}}
	if _, err := resolveTagPath(dict, "MAIN"); err == nil {
		t.Error("expected error for single-segment path")
	}
}
