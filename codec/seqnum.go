package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/keriproto/go-keri-core/kerierr"
)

// SeqNum is the fixed-width 128-bit unsigned sequence/ordinal primitive.
// It exposes both the integer value and the canonical lowercase,
// no-leading-zero hex view used in event field "s".
type SeqNum struct {
	val *big.Int
}

// NewSeqNum constructs a SeqNum from a uint64, sufficient for every
// practical sequence number while the underlying representation remains
// 128-bit per the wire primitive.
func NewSeqNum(v uint64) SeqNum {
	return SeqNum{val: new(big.Int).SetUint64(v)}
}

// ParseSeqNumHex parses the lowercase, no-leading-zero hex form used in
// event field "s" (§3 invariant 3: ≤32 hex digits).
func ParseSeqNumHex(hexStr string) (SeqNum, error) {
	if hexStr == "" {
		return SeqNum{}, fmt.Errorf("%w: empty sequence number", kerierr.ErrExtraction)
	}
	if len(hexStr) > 32 {
		return SeqNum{}, fmt.Errorf("%w: sequence number exceeds 32 hex digits", kerierr.ErrExtraction)
	}
	if hexStr != strings.ToLower(hexStr) {
		return SeqNum{}, fmt.Errorf("%w: sequence number must be lowercase hex", kerierr.ErrExtraction)
	}
	if len(hexStr) > 1 && hexStr[0] == '0' {
		return SeqNum{}, fmt.Errorf("%w: sequence number has a leading zero", kerierr.ErrExtraction)
	}
	v, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return SeqNum{}, fmt.Errorf("%w: invalid hex sequence number %q", kerierr.ErrExtraction, hexStr)
	}
	return SeqNum{val: v}, nil
}

// Hex renders the canonical lowercase, no-leading-zero hex form.
func (s SeqNum) Hex() string {
	if s.val == nil {
		return "0"
	}
	return s.val.Text(16)
}

// Uint64 returns the sequence number as a uint64. Values above
// math.MaxUint64 are unrepresentable; the core never produces or expects
// such values in practice, but the conversion is checked.
func (s SeqNum) Uint64() (uint64, bool) {
	if s.val == nil {
		return 0, true
	}
	if !s.val.IsUint64() {
		return 0, false
	}
	return s.val.Uint64(), true
}

// IsZero reports whether this is the inception sequence number.
func (s SeqNum) IsZero() bool {
	return s.val == nil || s.val.Sign() == 0
}

// Next returns sn+1.
func (s SeqNum) Next() SeqNum {
	base := s.val
	if base == nil {
		base = big.NewInt(0)
	}
	return SeqNum{val: new(big.Int).Add(base, big.NewInt(1))}
}

// Cmp compares two sequence numbers as in big.Int.Cmp.
func (s SeqNum) Cmp(o SeqNum) int {
	a, b := s.val, o.val
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b)
}

// EncodeRaw fills a 16-byte big-endian buffer, the raw form of the
// CodeSeqNum primitive.
func (s SeqNum) EncodeRaw() [16]byte {
	var out [16]byte
	if s.val == nil {
		return out
	}
	b := s.val.Bytes()
	copy(out[16-len(b):], b)
	return out
}

// DecodeSeqNumRaw reconstructs a SeqNum from its 16-byte raw form.
func DecodeSeqNumRaw(raw []byte) (SeqNum, error) {
	if len(raw) != 16 {
		return SeqNum{}, kerierr.ErrExtraction
	}
	return SeqNum{val: new(big.Int).SetBytes(raw)}, nil
}
