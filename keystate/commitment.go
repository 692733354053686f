// Package keystate holds the per-AID key state tuple (§3) and the
// next-key commitment digest (§4.D): the binding that lets a rotation
// prove it reveals the keys a prior establishment event already
// committed to, without the prior event having disclosed them.
package keystate

import (
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/threshold"
)

// EmptyCommitment is the digest value a non-transferable AID's "n" field
// must carry (§3 invariant 7): an abandoned/non-transferable identifier
// commits to nothing further.
const EmptyCommitment = ""

// Commit produces the next-key commitment digest over
// limen(kt) || k[0] || k[1] || ... under the given digest derivation
// code, returning its CESR text encoding.
func Commit(digestCode string, kt threshold.Spec, nextKeys []string) (string, error) {
	if len(nextKeys) == 0 {
		return EmptyCommitment, nil
	}
	buf := kt.Limen()
	for _, k := range nextKeys {
		buf = append(buf, []byte(k)...)
	}
	return codec.DigestText(digestCode, buf)
}

// VerifyCommitment recomputes the commitment from the revealed (kt, k)
// and checks bit-equality against the prior establishment event's
// recorded commitment (§4.D, §3 invariant 6, §8 property 4). Comparison
// always recomputes against the stored commitment's own algorithm
// rather than string-comparing two independently produced digests.
func VerifyCommitment(priorCommitment string, kt threshold.Spec, nextKeys []string) (bool, error) {
	if priorCommitment == EmptyCommitment {
		return false, nil
	}
	buf := kt.Limen()
	for _, k := range nextKeys {
		buf = append(buf, []byte(k)...)
	}
	return codec.VerifyDigestText(priorCommitment, buf)
}
