package ads

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Symbol describes one entry from the SYM_UPLOAD table: a named PLC variable
// with a fixed address and a type name to look up in the data-type dictionary.
type Symbol struct {
	Group      uint32
	Offset     uint32
	Size       uint32
	DataTypeId uint32
	Flags      uint32
	Name       string
	UpperName  string
	TypeName   string
	Comment    string
}

// ArrayDim is one dimension of a multi-dimensional array type, as decoded
// from a SYM_DT_UPLOAD entry. Dimensions are stored outermost-to-innermost,
// matching wire order.
type ArrayDim struct {
	Start  int32
	Length uint32
}

// DataType describes one entry from the SYM_DT_UPLOAD table: either a
// primitive, a structure (non-empty SubItems), or an array (non-empty
// ArrayDimensions) of either.
type DataType struct {
	Version       uint32
	Hash          uint32
	TypeHash      uint32
	Size          uint32
	Offset        uint32
	PrimitiveKind PrimitiveKind
	Flags         uint32
	Name          string
	TypeName      string
	Comment       string
	ArrayDims     []ArrayDim
	SubItems      []*DataType
}

// ElementSize returns the size of a single array element: the total size
// divided by the product of every dimension's length.
func (d *DataType) ElementSize() uint32 {
	if len(d.ArrayDims) == 0 {
		return d.Size
	}
	product := uint32(1)
	for _, dim := range d.ArrayDims {
		product *= dim.Length
	}
	if product == 0 {
		return d.Size
	}
	return d.Size / product
}

// UploadInfo reports the sizes of the symbol and data-type tables, as
// returned by SYM_UPLOADINFO2.
type UploadInfo struct {
	SymbolCount      uint32
	SymbolTableBytes uint32
	DataTypeCount    uint32
	DataTypeTableBytes uint32
	ExtraCount       uint32
	ExtraBytes       uint32
}

// decodeUploadInfo2 parses the fixed 24-byte SYM_UPLOADINFO2 payload.
func decodeUploadInfo2(data []byte) (UploadInfo, error) {
	if len(data) < 24 {
		return UploadInfo{}, fmt.Errorf("%w: upload info needs 24 bytes, got %d", ErrDecodeInvalid, len(data))
	}
	return UploadInfo{
		SymbolCount:        binary.LittleEndian.Uint32(data[0:4]),
		SymbolTableBytes:   binary.LittleEndian.Uint32(data[4:8]),
		DataTypeCount:      binary.LittleEndian.Uint32(data[8:12]),
		DataTypeTableBytes: binary.LittleEndian.Uint32(data[12:16]),
		ExtraCount:         binary.LittleEndian.Uint32(data[16:20]),
		ExtraBytes:         binary.LittleEndian.Uint32(data[20:24]),
	}, nil
}

// decodeSymbols decodes the SYM_UPLOAD table greedily, ignoring a trailing
// partial record. Each entry is at least 26 bytes after its own length
// prefix.
func decodeSymbols(data []byte) ([]*Symbol, error) {
	var symbols []*Symbol
	for len(data) >= 4 {
		entryLen := binary.LittleEndian.Uint32(data[0:4])
		if entryLen < 26 || int(entryLen) > len(data) {
			break
		}
		entry := data[4:entryLen]

		if len(entry) < 26 {
			return nil, fmt.Errorf("%w: symbol entry too short", ErrDecodeInvalid)
		}
		sym := &Symbol{
			Group:      binary.LittleEndian.Uint32(entry[0:4]),
			Offset:     binary.LittleEndian.Uint32(entry[4:8]),
			Size:       binary.LittleEndian.Uint32(entry[8:12]),
			DataTypeId: binary.LittleEndian.Uint32(entry[12:16]),
			Flags:      binary.LittleEndian.Uint32(entry[16:20]),
		}
		nameLen := binary.LittleEndian.Uint16(entry[20:22])
		typeLen := binary.LittleEndian.Uint16(entry[22:24])
		commentLen := binary.LittleEndian.Uint16(entry[24:26])

		pos := 26
		name, pos, err := readCString(entry, pos, int(nameLen))
		if err != nil {
			return nil, err
		}
		typeName, pos, err := readCString(entry, pos, int(typeLen))
		if err != nil {
			return nil, err
		}
		comment, _, err := readCString(entry, pos, int(commentLen))
		if err != nil {
			return nil, err
		}

		sym.Name = name
		sym.UpperName = strings.ToUpper(name)
		sym.TypeName = typeName
		sym.Comment = comment
		symbols = append(symbols, sym)

		data = data[entryLen:]
	}
	return symbols, nil
}

// decodeDataTypes decodes the SYM_DT_UPLOAD table greedily. Each entry's
// length counts its own 4-byte prefix and must be at least 40; the 38-byte
// fixed header after the prefix is checked by decodeDataTypeEntry. Entries
// may recurse into sub-items.
func decodeDataTypes(data []byte) ([]*DataType, error) {
	var types []*DataType
	for len(data) >= 4 {
		entryLen := binary.LittleEndian.Uint32(data[0:4])
		if entryLen < 40 || int(entryLen) > len(data) {
			break
		}
		dt, err := decodeDataTypeEntry(data[4:entryLen])
		if err != nil {
			return nil, err
		}
		types = append(types, dt)
		data = data[entryLen:]
	}
	return types, nil
}

// decodeDataTypeEntry decodes a single data-type record with its 4-byte
// length prefix already stripped. Used both for top-level SYM_DT_UPLOAD
// entries and for recursively-encoded sub-items.
func decodeDataTypeEntry(entry []byte) (*DataType, error) {
	if len(entry) < 38 {
		return nil, fmt.Errorf("%w: data type entry too short", ErrDecodeInvalid)
	}

	dt := &DataType{
		Version:       binary.LittleEndian.Uint32(entry[0:4]),
		Hash:          binary.LittleEndian.Uint32(entry[4:8]),
		TypeHash:      binary.LittleEndian.Uint32(entry[8:12]),
		Size:          binary.LittleEndian.Uint32(entry[12:16]),
		Offset:        binary.LittleEndian.Uint32(entry[16:20]),
		PrimitiveKind: PrimitiveKind(binary.LittleEndian.Uint32(entry[20:24])),
		Flags:         binary.LittleEndian.Uint32(entry[24:28]),
	}
	nameLen := binary.LittleEndian.Uint16(entry[28:30])
	typeLen := binary.LittleEndian.Uint16(entry[30:32])
	commentLen := binary.LittleEndian.Uint16(entry[32:34])
	arrayDimCount := binary.LittleEndian.Uint16(entry[34:36])
	subItemCount := binary.LittleEndian.Uint16(entry[36:38])

	pos := 38
	name, pos, err := readCString(entry, pos, int(nameLen))
	if err != nil {
		return nil, err
	}
	typeName, pos, err := readCString(entry, pos, int(typeLen))
	if err != nil {
		return nil, err
	}
	comment, pos, err := readCString(entry, pos, int(commentLen))
	if err != nil {
		return nil, err
	}
	dt.Name = name
	dt.TypeName = typeName
	dt.Comment = comment

	for i := 0; i < int(arrayDimCount); i++ {
		if pos+8 > len(entry) {
			return nil, fmt.Errorf("%w: truncated array dimension", ErrDecodeInvalid)
		}
		dt.ArrayDims = append(dt.ArrayDims, ArrayDim{
			Start:  int32(binary.LittleEndian.Uint32(entry[pos : pos+4])),
			Length: binary.LittleEndian.Uint32(entry[pos+4 : pos+8]),
		})
		pos += 8
	}

	for i := 0; i < int(subItemCount); i++ {
		if pos+4 > len(entry) {
			return nil, fmt.Errorf("%w: truncated sub-item length", ErrDecodeInvalid)
		}
		// Like a top-level entry, a sub-item's length counts its own prefix.
		subLen := binary.LittleEndian.Uint32(entry[pos : pos+4])
		if subLen == 0 {
			return nil, fmt.Errorf("%w: zero-length sub-item", ErrDecodeInvalid)
		}
		if subLen < 4 || pos+int(subLen) > len(entry) {
			return nil, fmt.Errorf("%w: truncated sub-item body", ErrDecodeInvalid)
		}
		sub, err := decodeDataTypeEntry(entry[pos+4 : pos+int(subLen)])
		if err != nil {
			return nil, err
		}
		dt.SubItems = append(dt.SubItems, sub)
		pos += int(subLen)
	}

	return dt, nil
}

// readCString reads a zero-terminated ASCII string of up to declaredLen
// bytes (the declared length includes the terminator) starting at pos.
func readCString(buf []byte, pos, declaredLen int) (string, int, error) {
	end := pos + declaredLen
	if declaredLen == 0 {
		return "", pos, nil
	}
	if end > len(buf) {
		return "", pos, fmt.Errorf("%w: truncated string field", ErrDecodeInvalid)
	}
	field := buf[pos:end]
	if nul := indexByte(field, 0); nul >= 0 {
		field = field[:nul]
	}
	return string(field), end, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
