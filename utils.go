package fasttester

import (
	"bytes"
	"encoding/binary"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

var maxU64 = new(big.Int).SetUint64(^uint64(0))

// EncodeU64LE encodes v as 8 little-endian bytes.
func EncodeU64LE(v uint64) []byte {
	var buf bytes.Buffer
	buf.Grow(8)
	// Writing to a bytes.Buffer cannot fail.
	_ = bin.NewBinEncoder(&buf).WriteUint64(v, binary.LittleEndian)
	return buf.Bytes()
}

// Concat joins bufs in order with no separators.
func Concat(bufs ...[]byte) []byte {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// U64FromBig narrows a big integer to u64. Values outside [0, 2^64-1] are
// rejected rather than truncated.
func U64FromBig(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxU64) > 0 {
		return 0, ErrU64Overflow
	}
	return v.Uint64(), nil
}

// unpackResult splits a packed ptr<<32|len result.
func unpackResult(packed uint64) (ptr uint32, size uint32) {
	return uint32(packed >> 32), uint32(packed)
}
