package magic

import "math"

// ExtractSigned reads a width-byte two's-complement integer at offset under
// endianness e and sign-extends it to int64. Out-of-range reads report
// ok=false.
func ExtractSigned(buf []byte, offset int64, width int, e Endianness) (int64, bool) {
	raw, ok := ReadUint(buf, offset, width, e, false)
	if !ok {
		return 0, false
	}
	switch width {
	case 1:
		return int64(int8(raw)), true
	case 2:
		return int64(int16(raw)), true
	case 4:
		return int64(int32(raw)), true
	default:
		return int64(raw), true
	}
}

// ExtractUnsigned reads a width-byte unsigned integer, widened to uint64.
func ExtractUnsigned(buf []byte, offset int64, width int, e Endianness) (uint64, bool) {
	return ReadUint(buf, offset, width, e, false)
}

// ExtractID3 reads a 4-byte ID3 (7-bits-per-byte) length field.
func ExtractID3(buf []byte, offset int64, e Endianness) (uint64, bool) {
	return ReadUint(buf, offset, 4, e, true)
}

// ExtractFloat32 reads a 4-byte IEEE-754 single-precision float.
func ExtractFloat32(buf []byte, offset int64, e Endianness) (float64, bool) {
	bits, ok := ReadUint(buf, offset, 4, e, false)
	if !ok {
		return 0, false
	}
	return float64(math.Float32frombits(uint32(bits))), true
}

// ExtractFloat64 reads an 8-byte IEEE-754 double-precision float.
func ExtractFloat64(buf []byte, offset int64, e Endianness) (float64, bool) {
	bits, ok := ReadUint(buf, offset, 8, e, false)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

// ExtractUTF8 returns the raw byte range [offset, offset+length) as a
// string. No decoding is performed: the magic(5) "string" type matches raw
// bytes, not validated UTF-8.
func ExtractUTF8(buf []byte, offset int64, length int) (string, bool) {
	if offset < 0 || length < 0 {
		return "", false
	}
	end := offset + int64(length)
	if end > int64(len(buf)) {
		return "", false
	}
	return string(buf[offset:end]), true
}

// ExtractUTF16 pairs adjacent bytes starting at offset into `count` raw
// UTF-16 code units under endianness e. Units are returned unassembled
// (matching the magic(5) string16 comparison, which compares
// code-unit-by-code-unit rather than after full UTF-16 decoding of
// surrogate pairs); callers needing display text decode each unit as its
// own rune.
func ExtractUTF16(buf []byte, offset int64, count int, e Endianness) ([]uint16, bool) {
	if offset < 0 || count < 0 {
		return nil, false
	}
	end := offset + int64(count)*2
	if end > int64(len(buf)) {
		return nil, false
	}
	units := make([]uint16, count)
	e = e.ResolveNative()
	for i := 0; i < count; i++ {
		lo, hi := buf[offset+int64(i)*2], buf[offset+int64(i)*2+1]
		if e == Little {
			units[i] = uint16(lo) | uint16(hi)<<8
		} else {
			units[i] = uint16(hi) | uint16(lo)<<8
		}
	}
	return units, true
}

// ExtractPascalLength reads a Pascal-string length prefix of n bytes
// (n ∈ {1, 2, 4}) under endianness e.
func ExtractPascalLength(buf []byte, offset int64, n int, e Endianness) (int64, bool) {
	v, ok := ReadUint(buf, offset, n, e, false)
	if !ok {
		return 0, false
	}
	return int64(v), true
}
