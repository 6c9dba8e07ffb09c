package oid

import "fmt"

// OID is an object identifier: an unsigned 64-bit integer monotonically
// allocated by the owning database. Zero means "unassigned".
type OID uint64

// Unassigned is the sentinel OID meaning "no identity yet".
const Unassigned OID = 0

// directMax is the largest value encodable as a single byte. Values above
// it are encoded as a length marker followed by that many big-endian
// bytes, so encodings never exceed 9 bytes (1 marker + 8 value bytes),
// covering the full uint64 range.
const directMax = 247

// MaxLen is the longest possible encoding of any OID.
const MaxLen = 9

// Encode appends the order-preserving encoding of v to dst and returns
// the extended slice. Encoding is canonical: every value has exactly one
// encoding, and lexicographic order of encodings matches numeric order of
// the values.
func Encode(dst []byte, v OID) []byte {
	if v <= directMax {
		return append(dst, byte(v))
	}
	n := byteLen(uint64(v))
	dst = append(dst, byte(int(directMax)+n))
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

// AppendEncode is an alias for Encode kept for call sites that prefer the
// append-style name used elsewhere in this module.
func AppendEncode(dst []byte, v OID) []byte { return Encode(dst, v) }

// Bytes returns the encoding of v as a freshly allocated slice.
func Bytes(v OID) []byte {
	return Encode(make([]byte, 0, MaxLen), v)
}

// byteLen returns the minimum number of bytes (1..8) needed to hold v.
func byteLen(v uint64) int {
	n := 1
	for v>>(uint(n)*8) != 0 {
		n++
	}
	return n
}

// Decode reads one encoded OID from the front of b and returns the value
// plus the number of bytes consumed. It fails if b is empty or shorter
// than the length the first byte implies.
func Decode(b []byte) (OID, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("oid: decode of empty buffer")
	}
	b0 := b[0]
	if b0 <= directMax {
		return OID(b0), 1, nil
	}
	n := int(b0) - directMax
	if len(b) < 1+n {
		return 0, 0, fmt.Errorf("oid: truncated encoding: need %d bytes, have %d", 1+n, len(b))
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(b[1+i])
	}
	return OID(v), 1 + n, nil
}

// Next returns the smallest OID strictly greater than v, used by the
// enumeration engine to reseek the underlying cursor past an OID whose
// key may have been superseded by an interleaved write.
func Next(v OID) OID {
	return v + 1
}

func (v OID) String() string {
	return fmt.Sprintf("%d", uint64(v))
}
