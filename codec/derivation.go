// Package codec implements the CESR primitive codec: self-identifying
// derivation codes for keys, signatures, digests and counters, in both
// the Base64-URL text form and the 3-byte-aligned binary form.
//
// Every primitive is a (code, raw bytes) pair. The code's length and
// its own text determine how many raw bytes follow; a reader never
// needs look-ahead beyond the code itself to know where the primitive
// ends.
package codec

import "github.com/keriproto/go-keri-core/kerierr"

// Code is a derivation code descriptor: how many text characters the
// code occupies, and how many raw bytes the primitive carries.
type Code struct {
	Code    string // the code text itself, e.g. "E"
	Name    string // human name, for logs and errors
	HardLen int    // number of characters that make up the code
	RawLen  int    // number of raw (decoded) bytes the primitive carries
}

// TextLen is the total text-form length of a primitive using this code:
// the code characters plus the base64 text needed to carry RawLen bytes
// once the (code-bits + raw-bits) total is padded to a multiple of 24.
func (c Code) TextLen() int {
	return textLenFor(c.HardLen, c.RawLen)
}

// textLenFor computes, for a code of hardLen characters (hardLen*6 bits)
// prefixing rawLen raw bytes (rawLen*8 bits), the total number of
// base64-url characters needed once the combined bit length is padded up
// to the next multiple of 24 bits (a CESR primitive is always a whole
// number of 3-byte/4-char quadlets).
func textLenFor(hardLen, rawLen int) int {
	bits := hardLen*6 + rawLen*8
	quadlets := (bits + 23) / 24
	return quadlets * 4
}

// One-character codes: 32-byte digests and public keys.
const (
	CodeBlake3_256    = "E" // Blake3-256 digest (self-addressing default)
	CodeSHA3_256      = "H" // SHA3-256 digest
	CodeSHA2_256      = "I" // SHA2-256 digest
	CodeEd25519       = "D" // Ed25519 public signing key, transferable
	CodeEd25519NT     = "B" // Ed25519 public signing key, non-transferable
	CodeEd25519Seed   = "A" // Ed25519 private seed (never appears on the wire, listed for completeness)
)

// Two-character codes: 64-byte digests and signatures.
const (
	CodeBlake3_512 = "0E"
	CodeSHA3_512   = "0F"
	CodeSHA2_512   = "0G"
	CodeEd25519Sig = "0B" // raw, un-indexed Ed25519 signature
)

// Four-character codes: fixed-width sequence numbers and ordinals.
const (
	CodeSeqNum = "0AAA" // 128-bit unsigned sequence number / ordinal
)

var oneCharTable = map[string]Code{
	CodeBlake3_256:  {Code: CodeBlake3_256, Name: "Blake3-256 digest", HardLen: 1, RawLen: 32},
	CodeSHA3_256:    {Code: CodeSHA3_256, Name: "SHA3-256 digest", HardLen: 1, RawLen: 32},
	CodeSHA2_256:    {Code: CodeSHA2_256, Name: "SHA2-256 digest", HardLen: 1, RawLen: 32},
	CodeEd25519:     {Code: CodeEd25519, Name: "Ed25519 verkey", HardLen: 1, RawLen: 32},
	CodeEd25519NT:   {Code: CodeEd25519NT, Name: "Ed25519 verkey (non-transferable)", HardLen: 1, RawLen: 32},
	CodeEd25519Seed: {Code: CodeEd25519Seed, Name: "Ed25519 seed", HardLen: 1, RawLen: 32},
}

var twoCharTable = map[string]Code{
	CodeBlake3_512: {Code: CodeBlake3_512, Name: "Blake3-512 digest", HardLen: 2, RawLen: 64},
	CodeSHA3_512:   {Code: CodeSHA3_512, Name: "SHA3-512 digest", HardLen: 2, RawLen: 64},
	CodeSHA2_512:   {Code: CodeSHA2_512, Name: "SHA2-512 digest", HardLen: 2, RawLen: 64},
	CodeEd25519Sig: {Code: CodeEd25519Sig, Name: "Ed25519 signature", HardLen: 2, RawLen: 64},
}

var fourCharTable = map[string]Code{
	CodeSeqNum: {Code: CodeSeqNum, Name: "sequence number", HardLen: 4, RawLen: 16},
}

// DigestCodes lists every code that identifies a digest primitive, in
// preference order. Used when recomputing a digest against a stored
// reference (§4.D invariant: compare by recomputation, never by string).
var DigestCodes = []string{CodeBlake3_256, CodeSHA3_256, CodeSHA2_256, CodeBlake3_512, CodeSHA3_512, CodeSHA2_512}

// Lookup resolves a derivation code string (already isolated from a
// stream) to its Code descriptor. Some leading characters are shared
// between a 2-char and a 4-char code (e.g. both sequence numbers and
// 64-byte signature/digest codes start with "0"), so resolution tries
// each table in increasing prefix length and takes the first match
// rather than guessing the code length from one byte.
func Lookup(code string) (Code, error) {
	if len(code) >= 1 {
		if c, ok := oneCharTable[code[:1]]; ok {
			return c, nil
		}
	}
	if len(code) >= 2 {
		if c, ok := twoCharTable[code[:2]]; ok {
			return c, nil
		}
	}
	if len(code) >= 4 {
		if c, ok := fourCharTable[code[:4]]; ok {
			return c, nil
		}
	}
	return Code{}, kerierr.ErrUnknownDerivation
}

// SniffHardLen inspects up to the first four characters of a text-form
// primitive and reports how many of them make up its derivation code.
// It tries the shortest code tables first, matching Lookup's own
// resolution order, so the two never disagree about where a primitive's
// raw bytes begin.
func SniffHardLen(s string) (int, error) {
	if len(s) >= 1 {
		if _, ok := oneCharTable[s[:1]]; ok {
			return 1, nil
		}
	}
	if len(s) >= 2 {
		if _, ok := twoCharTable[s[:2]]; ok {
			return 2, nil
		}
	}
	if len(s) >= 4 {
		if _, ok := fourCharTable[s[:4]]; ok {
			return 4, nil
		}
	}
	if len(s) < 4 {
		return 0, kerierr.ErrShortage
	}
	return 0, kerierr.ErrUnknownDerivation
}
