package codec

import (
	"encoding/base64"
	"strings"

	"github.com/keriproto/go-keri-core/kerierr"
)

// b64 is the unpadded, URL-safe alphabet CESR text primitives use. No
// trailing '=' ever appears because every primitive's bit length is
// padded, before encoding, to a multiple of 24 bits (4 base64 chars).
var b64 = base64.RawURLEncoding

// Primitive is a decoded (code, raw) pair together with the original
// text it was parsed from, so a verifier can recompute digests against
// the exact bytes it saw rather than re-deriving text from raw bytes
// (which would hide a trailing-bit encoding bug).
type Primitive struct {
	Code Code
	Raw  []byte
	Text string
}

// EncodeText renders raw bytes under the given derivation code as CESR
// text: the code characters followed by the base64-url encoding of the
// code's leading pad bits concatenated with raw.
func EncodeText(code Code, raw []byte) (string, error) {
	if len(raw) != code.RawLen {
		return "", kerierr.ErrExtraction
	}
	// Bits contributed by the code must be padded out to a byte boundary
	// before we can hand the buffer to a byte-oriented base64 encoder.
	// We left-pad raw with zero bytes so that pad+raw fills exactly
	// TextLen()*6 bits, then slice off the leading HardLen base64
	// characters, which encode pure padding, and replace them with the
	// literal code text. This mirrors the CESR convention of fixed
	// leading code characters over a padded body.
	padBytes := code.TextLen()*3/4 - code.RawLen
	buf := make([]byte, padBytes+len(raw))
	copy(buf[padBytes:], raw)
	encoded := b64.EncodeToString(buf)
	// encoded is exactly TextLen() characters; its first HardLen
	// characters are all padding and are replaced by the code itself,
	// since the code's value overlaps that leading padding in the
	// canonical CESR layout.
	overhead := code.HardLen
	body := encoded[overhead:]
	return code.Code + body, nil
}

// DecodeText parses a CESR text primitive beginning at s[0]. It
// determines the code length from the leading character, looks up the
// code, and decodes exactly TextLen() characters.
func DecodeText(s string) (Primitive, int, error) {
	if len(s) == 0 {
		return Primitive{}, 0, kerierr.ErrShortage
	}
	hardLen, err := SniffHardLen(s)
	if err != nil {
		return Primitive{}, 0, err
	}
	code, err := Lookup(s[:hardLen])
	if err != nil {
		return Primitive{}, 0, err
	}
	total := code.TextLen()
	if len(s) < total {
		return Primitive{}, 0, kerierr.ErrShortage
	}
	text := s[:total]
	body := text[code.HardLen:]

	padBytes := code.TextLen()*3/4 - code.RawLen
	padChars := code.HardLen
	padding := strings.Repeat("A", padChars)
	decoded, err := b64.DecodeString(padding + body)
	if err != nil {
		return Primitive{}, 0, kerierr.ErrExtraction
	}
	if len(decoded) < padBytes+code.RawLen {
		return Primitive{}, 0, kerierr.ErrExtraction
	}
	raw := decoded[padBytes : padBytes+code.RawLen]

	return Primitive{Code: code, Raw: raw, Text: text}, total, nil
}

// EncodeRawToText is a convenience wrapper returning only the text.
func EncodeRawToText(codeStr string, raw []byte) (string, error) {
	code, err := Lookup(codeStr)
	if err != nil {
		return "", err
	}
	return EncodeText(code, raw)
}
