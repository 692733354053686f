package codec

import "github.com/keriproto/go-keri-core/kerierr"

// Tritet is the classification of the top three bits of the next unread
// byte in a stream: it tells the cold-start parser whether it is looking
// at a CESR count/opcode (text or binary) or at the start of a
// JSON/CBOR/MessagePack message body.
type Tritet int

const (
	TritetBase64Count Tritet = iota // 001
	TritetBase64Op                  // 010
	TritetJSON                      // 011
	TritetMsgPackFixMap              // 100
	TritetCBOR                      // 101
	TritetMsgPackMap                // 110
	TritetBinary                    // 111
	tritetUnexpected                // 000
)

// SniffTritet classifies the leading byte of a buffer per §4.F. Returns
// kerierr.ErrColdStart for the reserved 000 pattern.
func SniffTritet(lead byte) (Tritet, error) {
	top3 := lead >> 5
	switch top3 {
	case 0b001:
		return TritetBase64Count, nil
	case 0b010:
		return TritetBase64Op, nil
	case 0b011:
		return TritetJSON, nil
	case 0b100:
		return TritetMsgPackFixMap, nil
	case 0b101:
		return TritetCBOR, nil
	case 0b110:
		return TritetMsgPackMap, nil
	case 0b111:
		return TritetBinary, nil
	default:
		return tritetUnexpected, kerierr.ErrColdStart
	}
}

// BinaryLen is the binary-form length in bytes of a primitive using the
// given code: ceil((HardLen*6 + RawLen*8) / 24) * 3.
func (c Code) BinaryLen() int {
	bits := c.HardLen*6 + c.RawLen*8
	triplets := (bits + 23) / 24
	return triplets * 3
}

// DecodeBinary parses a binary-form primitive from b, mirroring
// DecodeText but operating on raw bytes packed 3-byte aligned instead of
// base64 text. The first HardLen*6 bits of the primitive still carry the
// derivation code (packed as the top bits of the leading bytes); the
// remainder is the raw value, left-padded to a byte boundary exactly as
// in the text form.
func DecodeBinary(b []byte, hardLen int) (Primitive, int, error) {
	if len(b) == 0 {
		return Primitive{}, 0, kerierr.ErrShortage
	}
	// The binary form's code octets are produced by decoding the code's
	// base64 text representation; we reuse the text-derived code table
	// rather than maintaining a second one, since the code values are
	// defined once as text and apply identically to both serial forms.
	codeChars := hardLen
	if len(b) < (codeChars*6+7)/8 {
		return Primitive{}, 0, kerierr.ErrShortage
	}
	codeText := bitsToB64Alphabet(b, codeChars)
	code, err := Lookup(codeText)
	if err != nil {
		return Primitive{}, 0, err
	}
	total := code.BinaryLen()
	if len(b) < total {
		return Primitive{}, 0, kerierr.ErrShortage
	}
	padBytes := total - code.RawLen
	raw := make([]byte, code.RawLen)
	copy(raw, b[padBytes:padBytes+code.RawLen])
	return Primitive{Code: code, Raw: raw}, total, nil
}

// bitsToB64Alphabet reads the first n*6 bits of b and renders them as n
// characters of the base64-url alphabet, used to recover a derivation
// code from its binary packing.
func bitsToB64Alphabet(b []byte, n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	out := make([]byte, n)
	bitPos := 0
	for i := 0; i < n; i++ {
		v := byte(0)
		for bit := 0; bit < 6; bit++ {
			byteIdx := bitPos / 8
			bitIdx := 7 - (bitPos % 8)
			var bitVal byte
			if byteIdx < len(b) {
				bitVal = (b[byteIdx] >> bitIdx) & 1
			}
			v = (v << 1) | bitVal
			bitPos++
		}
		out[i] = alphabet[v]
	}
	return string(out)
}
