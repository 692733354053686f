package codec

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Digest computes the raw digest bytes of data under the algorithm named
// by a derivation code (one of the codec.Code*_256/512 constants).
// Events may legitimately carry digests under different algorithms; per
// invariant 2 of §8, comparisons must always recompute rather than
// compare encoded strings, which is why VerifyDigestText recomputes
// through this function rather than comparing two encoded digests.
func Digest(codeStr string, data []byte) ([]byte, error) {
	switch codeStr {
	case CodeBlake3_256:
		sum := blake3.Sum256(data)
		return sum[:], nil
	case CodeBlake3_512:
		sum := blake3.Sum512(data)
		return sum[:], nil
	case CodeSHA2_256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case CodeSHA2_512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	case CodeSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case CodeSHA3_512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", kerierr.ErrDigestAlgo, codeStr)
	}
}

// DigestText computes and text-encodes a digest of data under codeStr in
// one step.
func DigestText(codeStr string, data []byte) (string, error) {
	raw, err := Digest(codeStr, data)
	if err != nil {
		return "", err
	}
	return EncodeRawToText(codeStr, raw)
}

// VerifyDigestText reports whether digestText is a valid encoding of
// data's digest, recomputed under digestText's own algorithm. This is
// the only digest-comparison primitive the rest of the system should
// use: it never compares two encoded strings directly.
func VerifyDigestText(digestText string, data []byte) (bool, error) {
	prim, _, err := DecodeText(digestText)
	if err != nil {
		return false, err
	}
	recomputed, err := Digest(prim.Code.Code, data)
	if err != nil {
		return false, err
	}
	return constantTimeEqual(recomputed, prim.Raw), nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
