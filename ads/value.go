package ads

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// decodeValue interprets data (exactly tag.Size bytes) according to the
// resolved tag's primitive kind, recursing through the data-type dictionary
// for structures and arrays. The result is one of: bool, int8/uint8/.../
// int64/uint64, float32, float64, string, time.Time (DATE/DT), map[string]any
// (structure), []any (array), or []byte (UnknownBlob fallback for a BIGTYPE
// with no dictionary entry, or one that is neither an array nor a structure).
func decodeValue(dict dictionary, tag FindTag, data []byte) (any, error) {
	if uint32(len(data)) < tag.Size {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrFrameTooShort, tag.Size, len(data))
	}
	data = data[:tag.Size]

	switch tag.PrimitiveKind {
	case KindBit:
		return data[0] != 0, nil
	case KindInt8:
		return int8(data[0]), nil
	case KindUint8:
		return data[0], nil
	case KindInt16:
		return int16(binary.LittleEndian.Uint16(data)), nil
	case KindUint16:
		return binary.LittleEndian.Uint16(data), nil
	case KindInt32:
		return int32(binary.LittleEndian.Uint32(data)), nil
	case KindUint32:
		return binary.LittleEndian.Uint32(data), nil
	case KindInt64:
		return int64(binary.LittleEndian.Uint64(data)), nil
	case KindUint64:
		return binary.LittleEndian.Uint64(data), nil
	case KindReal32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case KindReal64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case KindReal80:
		return nil, fmt.Errorf("%w: REAL80", ErrUnsupportedType)
	case KindVoid:
		return binary.LittleEndian.Uint32(data), nil
	case KindString, KindWstring:
		return decodeStringValue(data), nil
	case KindBigtype:
		return decodeBigType(dict, tag, data)
	default:
		return nil, fmt.Errorf("%w: primitive kind %s", ErrUnsupportedType, tag.PrimitiveKind)
	}
}

// encodeValue is the inverse of decodeValue. It fails for a non-bool BIT
// value, a structure or array value of the wrong shape, and unsupported
// kinds; a value of the wrong Go type for a numeric tag encodes as zero, and
// a non-string value for a STRING tag encodes as an all-zero buffer.
func encodeValue(dict dictionary, tag FindTag, value any) ([]byte, error) {
	switch tag.PrimitiveKind {
	case KindBit:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: BIT wants bool, got %T", ErrDecodeInvalid, value)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindInt8:
		return []byte{byte(mustInt(value))}, nil
	case KindUint8:
		return []byte{byte(mustInt(value))}, nil
	case KindInt16, KindUint16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(mustInt(value)))
		return buf, nil
	case KindInt32, KindUint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(mustInt(value)))
		return buf, nil
	case KindInt64, KindUint64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(mustInt(value)))
		return buf, nil
	case KindReal32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(mustFloat(value))))
		return buf, nil
	case KindReal64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(mustFloat(value)))
		return buf, nil
	case KindReal80:
		return nil, fmt.Errorf("%w: REAL80 write", ErrUnsupportedType)
	case KindVoid:
		return nil, fmt.Errorf("%w: VOID write", ErrUnsupportedType)
	case KindString, KindWstring:
		return encodeStringValue(value, tag.Size), nil
	case KindBigtype:
		return encodeBigType(dict, tag, value)
	default:
		return nil, fmt.Errorf("%w: primitive kind %s", ErrUnsupportedType, tag.PrimitiveKind)
	}
}

func mustInt(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case uint8:
		return int64(v)
	case int16:
		return int64(v)
	case uint16:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

func mustFloat(value any) float64 {
	switch v := value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return float64(mustInt(value))
	}
}

// decodeStringValue truncates at the first NUL.
func decodeStringValue(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// encodeStringValue pads with zeros to size.
func encodeStringValue(value any, size uint32) []byte {
	s, _ := value.(string)
	buf := make([]byte, size)
	copy(buf, s)
	return buf
}

// decodeBigType dispatches BIGTYPE entries by canonical type name. DATE/DT
// variants are 4-byte Unix-second timestamps; TIME/TOD variants are 4-byte
// millisecond-of-day values rendered as "HH:MM" straight from the
// millisecond count; no time-zone conversion is applied.
func decodeBigType(dict dictionary, tag FindTag, data []byte) (any, error) {
	switch tag.TypeName {
	case "DATE", "DT", "DATE_AND_TIME":
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %s needs 4 bytes", ErrDecodeInvalid, tag.TypeName)
		}
		secs := int64(binary.LittleEndian.Uint32(data))
		return time.Unix(secs, 0).UTC(), nil
	case "TIME", "TOD", "TIME_OF_DAY":
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %s needs 4 bytes", ErrDecodeInvalid, tag.TypeName)
		}
		ms := binary.LittleEndian.Uint32(data)
		return formatTimeOfDay(ms), nil
	}

	dt, ok := dict.lookupDataType(tag.TypeName)
	if !ok {
		return append([]byte(nil), data...), nil
	}
	if len(dt.ArrayDims) > 0 {
		return decodeArray(dict, dt, dt.ArrayDims, data)
	}
	if len(dt.SubItems) > 0 {
		return decodeStructure(dict, dt, data)
	}
	return append([]byte(nil), data...), nil
}

func encodeBigType(dict dictionary, tag FindTag, value any) ([]byte, error) {
	switch tag.TypeName {
	case "DATE", "DT", "DATE_AND_TIME":
		t, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants time.Time", ErrDecodeInvalid, tag.TypeName)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(t.Unix()))
		return buf, nil
	case "TIME", "TOD", "TIME_OF_DAY":
		ms, err := parseTimeOfDay(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, ms)
		return buf, nil
	}

	dt, ok := dict.lookupDataType(tag.TypeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, tag.TypeName)
	}
	if len(dt.ArrayDims) > 0 {
		return encodeArray(dict, dt, dt.ArrayDims, value)
	}
	if len(dt.SubItems) > 0 {
		return encodeStructure(dict, dt, value)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, tag.TypeName)
}

func formatTimeOfDay(ms uint32) string {
	total := ms / 1000
	hh := (total / 3600) % 24
	mm := (total / 60) % 60
	return fmt.Sprintf("%02d:%02d", hh, mm)
}

func parseTimeOfDay(value any) (uint32, error) {
	s, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("%w: TIME_OF_DAY wants \"HH:MM\" string", ErrDecodeInvalid)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("%w: malformed TIME_OF_DAY %q", ErrDecodeInvalid, s)
	}
	return uint32((hh*3600 + mm*60) * 1000), nil
}

// decodeStructure decodes each sub-item at its own (offset, size) within the
// structure's byte range and returns a name-keyed map.
func decodeStructure(dict dictionary, dt *DataType, data []byte) (map[string]any, error) {
	out := make(map[string]any, len(dt.SubItems))
	for _, sub := range dt.SubItems {
		if uint32(len(data)) < sub.Offset+sub.Size {
			return nil, fmt.Errorf("%w: sub-item %q out of range", ErrDecodeInvalid, sub.Name)
		}
		subTag := dataTypeTag(sub)
		v, err := decodeValue(dict, subTag, data[sub.Offset:sub.Offset+sub.Size])
		if err != nil {
			return nil, err
		}
		out[sub.Name] = v
	}
	return out, nil
}

// encodeStructure requires the input mapping to have exactly one entry per
// sub-item, keyed by name.
func encodeStructure(dict dictionary, dt *DataType, value any) ([]byte, error) {
	m, ok := value.(map[string]any)
	if !ok || len(m) != len(dt.SubItems) {
		return nil, ErrStructureShapeMismatch
	}
	buf := make([]byte, dt.Size)
	for _, sub := range dt.SubItems {
		v, present := m[sub.Name]
		if !present {
			return nil, fmt.Errorf("%w: missing field %q", ErrStructureShapeMismatch, sub.Name)
		}
		encoded, err := encodeValue(dict, dataTypeTag(sub), v)
		if err != nil {
			return nil, err
		}
		if uint32(len(encoded)) != sub.Size || sub.Offset+sub.Size > dt.Size {
			return nil, fmt.Errorf("%w: field %q encoded to wrong size", ErrStructureShapeMismatch, sub.Name)
		}
		copy(buf[sub.Offset:sub.Offset+sub.Size], encoded)
	}
	return buf, nil
}

// decodeArray descends one dimension per recursive step; the outermost
// dimension (dims[0]) varies slowest.
func decodeArray(dict dictionary, dt *DataType, dims []ArrayDim, data []byte) ([]any, error) {
	dim := dims[0]
	elemSize := uint32(len(data)) / dim.Length
	out := make([]any, dim.Length)
	for i := uint32(0); i < dim.Length; i++ {
		chunk := data[i*elemSize : (i+1)*elemSize]
		var v any
		var err error
		if len(dims) > 1 {
			v, err = decodeArray(dict, dt, dims[1:], chunk)
		} else {
			v, err = decodeValue(dict, elementTag(dt), chunk)
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func encodeArray(dict dictionary, dt *DataType, dims []ArrayDim, value any) ([]byte, error) {
	dim := dims[0]
	slice, ok := value.([]any)
	if !ok {
		return nil, ErrArrayShapeMismatch
	}
	defined := definedCount(slice)
	if defined != int(dim.Length) {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrArrayShapeMismatch, dim.Length, defined)
	}

	var buf []byte
	skipped := len(slice) - defined
	for i, elem := range slice {
		if i < skipped {
			continue
		}
		var encoded []byte
		var err error
		if len(dims) > 1 {
			encoded, err = encodeArray(dict, dt, dims[1:], elem)
		} else {
			encoded, err = encodeValue(dict, elementTag(dt), elem)
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

// definedCount counts the non-nil elements of slice. encodeArray requires
// that count to equal the dimension length and skips the leading elements
// beyond it, so nil placeholders may precede the defined elements; a value
// covering only part of the array is rejected with ErrArrayShapeMismatch.
func definedCount(slice []any) int {
	n := 0
	for _, v := range slice {
		if v != nil {
			n++
		}
	}
	return n
}

// elementTag produces a FindTag describing one array element of dt.
func elementTag(dt *DataType) FindTag {
	return FindTag{
		Size:          dt.ElementSize(),
		TypeName:      dt.TypeName,
		PrimitiveKind: dt.PrimitiveKind,
	}
}

// dataTypeTag produces a FindTag for a sub-item, as used when recursing
// into a structure.
func dataTypeTag(dt *DataType) FindTag {
	return FindTag{
		Group:         dt.Offset,
		Offset:        dt.Offset,
		Size:          dt.Size,
		TypeName:      dt.TypeName,
		PrimitiveKind: dt.PrimitiveKind,
	}
}
