package verifier

import (
	"crypto/ed25519"
	"fmt"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/kerierr"
)

// verifyAgainstKeys dedups sigs by (index, signature bytes) — §4.G
// "Duplicate signatures are collapsed before counting toward threshold
// (uniqueness by Base64 text)" — then verifies each unique one against
// keys[index]. An index outside the key list rejects the whole event
// (§4.G "Indices out of range reject the event"); any other failure
// (malformed key primitive, bad signature length) simply drops that one
// signature from the verified set rather than rejecting outright, since
// a forged or corrupted attachment shouldn't block an otherwise valid
// quorum of genuine signatures.
func verifyAgainstKeys(keys []string, body []byte, sigs []codec.IndexedSignature) (verified map[int]bool, accepted []codec.IndexedSignature, err error) {
	verified = map[int]bool{}
	seen := map[string]bool{}
	for _, s := range sigs {
		if s.Index < 0 || s.Index >= len(keys) {
			return nil, nil, fmt.Errorf("%w: index %d, key list length %d", kerierr.ErrIndexOutOfRange, s.Index, len(keys))
		}
		dedupKey := fmt.Sprintf("%d:%x", s.Index, s.Signature)
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true

		prim, _, err := codec.DecodeText(keys[s.Index])
		if err != nil {
			continue
		}
		if len(prim.Raw) != ed25519.PublicKeySize {
			continue
		}
		if !ed25519.Verify(ed25519.PublicKey(prim.Raw), body, s.Signature) {
			continue
		}
		verified[s.Index] = true
		accepted = append(accepted, s)
	}
	return verified, accepted, nil
}
