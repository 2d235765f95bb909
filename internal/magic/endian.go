package magic

import (
	"encoding/binary"
	"sync"
	"unsafe"
)

// Endianness selects the byte order used to interpret a multi-byte field.
//
// Native is resolved to Big or Little once, at first use, and never
// observed by a Criterion after that point (see ResolveNative).
type Endianness uint8

const (
	Big Endianness = iota
	Little
	Middle
	Native
)

func (e Endianness) String() string {
	switch e {
	case Big:
		return "big"
	case Little:
		return "little"
	case Middle:
		return "middle"
	case Native:
		return "native"
	default:
		return "unknown"
	}
}

var (
	nativeOnce     sync.Once
	nativeResolved Endianness
)

// ResolveNative returns e with Native replaced by the host's actual byte
// order. Middle and the two concrete orders pass through unchanged.
//
// Host byte order is detected once with the same unsafe.Pointer-over-uint16
// probe used by arloliu/mebo's endian.CheckEndianness, then cached; the
// result never changes for the lifetime of the process.
func (e Endianness) ResolveNative() Endianness {
	if e != Native {
		return e
	}
	nativeOnce.Do(func() {
		var probe uint16 = 0x0001
		b := (*[2]byte)(unsafe.Pointer(&probe))
		if b[0] == 0x01 {
			nativeResolved = Little
		} else {
			nativeResolved = Big
		}
	})
	return nativeResolved
}

// Invert swaps Big and Little. Middle has no defined inverse (per the data
// model invariant in spec §3) and is returned unchanged, as is Native —
// callers invert only after resolving Native to a concrete order.
func (e Endianness) Invert() Endianness {
	switch e {
	case Big:
		return Little
	case Little:
		return Big
	default:
		return e
	}
}

// middleOrder4 gives the source-byte order for 4-byte middle ("PDP-11")
// endian: B A D C.
var middleOrder4 = [4]int{1, 0, 3, 2}

// ReadUint reads a width-byte (1, 2, 4, or 8) unsigned integer from buf at
// offset under endianness e. id3 selects ID3 framing, where each source
// byte contributes only its low 7 bits. Reads outside [0, len(buf)) report
// ok=false rather than panicking or erroring, per spec §4.1.
func ReadUint(buf []byte, offset int64, width int, e Endianness, id3 bool) (uint64, bool) {
	if offset < 0 || width <= 0 {
		return 0, false
	}
	end := offset + int64(width)
	if end > int64(len(buf)) {
		return 0, false
	}
	window := buf[offset:end]

	if id3 {
		var v uint64
		for _, b := range window {
			v = (v << 7) | uint64(b&0x7F)
		}
		return v, true
	}

	e = e.ResolveNative()

	if e == Middle {
		if width != 4 {
			// Middle endian is defined only for 4-byte reads (spec §3).
			return 0, false
		}
		var v uint64
		for i, srcIdx := range middleOrder4 {
			v |= uint64(window[srcIdx]) << (8 * uint(3-i))
		}
		return v, true
	}

	switch width {
	case 1:
		return uint64(window[0]), true
	case 2:
		if e == Little {
			return uint64(binary.LittleEndian.Uint16(window)), true
		}
		return uint64(binary.BigEndian.Uint16(window)), true
	case 4:
		if e == Little {
			return uint64(binary.LittleEndian.Uint32(window)), true
		}
		return uint64(binary.BigEndian.Uint32(window)), true
	case 8:
		if e == Little {
			return binary.LittleEndian.Uint64(window), true
		}
		return binary.BigEndian.Uint64(window), true
	default:
		return 0, false
	}
}

// EncodeUint is the inverse of ReadUint for plain (non-ID3) integers; it is
// used only to compute a pattern's starting-bytes hint (spec §4.8).
func EncodeUint(v uint64, width int, e Endianness) []byte {
	e = e.ResolveNative()
	out := make([]byte, width)
	switch width {
	case 1:
		out[0] = byte(v)
	case 2:
		if e == Little {
			binary.LittleEndian.PutUint16(out, uint16(v))
		} else {
			binary.BigEndian.PutUint16(out, uint16(v))
		}
	case 4:
		if e == Middle {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			// Encode the inverse permutation of middleOrder4.
			for i, srcIdx := range middleOrder4 {
				out[srcIdx] = tmp[3-i]
			}
			return out
		}
		if e == Little {
			binary.LittleEndian.PutUint32(out, uint32(v))
		} else {
			binary.BigEndian.PutUint32(out, uint32(v))
		}
	case 8:
		if e == Little {
			binary.LittleEndian.PutUint64(out, v)
		} else {
			binary.BigEndian.PutUint64(out, v)
		}
	}
	return out
}
