package codec

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// SerializeUint64 implements the general natural formula: a prefix byte whose
// leading one-bits give the number of little-endian bytes that follow.
// Values below 2^7 take one byte, any uint64 at most nine.
func SerializeUint64(x uint64) []byte {
	var l uint8
	for l = 0; l < 8; l++ {
		if x < (1 << (7 * (l + 1))) {
			break
		}
	}
	out := make([]byte, 0, l+1)
	if l < 8 {
		prefix := uint8((256 - (1 << (8 - l))) + (x>>(8*l))&math.MaxUint8)
		out = append(out, prefix)
	} else {
		out = append(out, math.MaxUint8)
	}
	for i := 0; i < int(l); i++ {
		out = append(out, uint8((x>>(8*i))&math.MaxUint8))
	}
	return out
}

// naturalLength returns how many bytes follow the given prefix byte.
func naturalLength(prefix byte) uint8 {
	return uint8(bits.LeadingZeros8(^prefix))
}

// deserializeUint64 decodes a prefix byte and the l bytes following it.
func deserializeUint64(prefix byte, rest []byte) (uint64, error) {
	l := naturalLength(prefix)
	if int(l) != len(rest) {
		return 0, ErrTruncated
	}
	if l == 8 {
		return binary.LittleEndian.Uint64(rest), nil
	}
	var u uint64
	for i := uint8(0); i < l; i++ {
		u |= uint64(rest[i]) << (8 * i)
	}
	u |= uint64(prefix&(math.MaxUint8>>l)) << (8 * l)
	return u, nil
}
