package verifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/store"
	"github.com/keriproto/go-keri-core/threshold"
)

func (v *Verifier) acceptInception(ctx context.Context, msg Incoming, delegated bool) error {
	hdr := msg.Header
	sn, err := codec.ParseSeqNumHex(hdr.Seq)
	if err != nil {
		return asValidation(hdr.AID, "malformed sequence number: "+err.Error())
	}
	if !sn.IsZero() {
		return asValidation(hdr.AID, "inception event must have sn=0")
	}

	var (
		ktSpec       threshold.Spec
		kField       []string
		nField       string
		btField      int
		bField       []string
		cField       []string
		delegatorAID string
	)

	if delegated {
		var dip event.DelegatedInception
		if err := event.Unmarshal(msg.Kind, msg.Body, &dip); err != nil {
			return asValidation(hdr.AID, "malformed dip body: "+err.Error())
		}
		ktSpec, kField, nField, btField, bField, cField = dip.Kt, dip.K, dip.N, dip.Bt, dip.B, dip.C
		delegatorAID = dip.Di
		if delegatorAID == "" {
			return asValidation(hdr.AID, "dip event missing delegator AID")
		}
	} else {
		var icp event.Inception
		if err := event.Unmarshal(msg.Kind, msg.Body, &icp); err != nil {
			return asValidation(hdr.AID, "malformed icp body: "+err.Error())
		}
		ktSpec, kField, nField, btField, bField, cField = icp.Kt, icp.K, icp.N, icp.Bt, icp.B, icp.C
	}

	if ktSpec.Size() > len(kField) {
		return fmt.Errorf("%w: threshold size %d exceeds key list length %d", kerierr.ErrThresholdShape, ktSpec.Size(), len(kField))
	}
	if !keystate.ValidWitnessThreshold(btField, bField) {
		return asValidation(hdr.AID, "witness threshold invalid for witness list length")
	}

	transferable, err := v.verifyAIDDerivation(msg.Kind, hdr, delegated, ktSpec, kField, nField, btField, bField, cField, delegatorAID)
	if err != nil {
		return err
	}
	if !transferable && nField != keystate.EmptyCommitment {
		return asValidation(hdr.AID, "non-transferable AID must commit to an empty next-key digest")
	}

	digest, err := eventDigest(v.DigestCode, msg.Body)
	if err != nil {
		return err
	}

	verifiedIdx, acceptedSigs, err := verifyAgainstKeys(kField, msg.Body, msg.Sigs)
	if err != nil {
		return err
	}
	if len(acceptedSigs) == 0 {
		return asValidation(hdr.AID, "no verifiable controller signature attached")
	}

	entry := store.EscrowEntry{AID: hdr.AID, Sn: sn, Digest: digest, Kind: msg.Kind, Body: msg.Body, Sigs: msg.Sigs, Wigs: msg.Wigs}
	if msg.Seal != nil {
		entry.Seal = msg.Seal
	}

	if !ktSpec.Satisfy(verifiedIdx) {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, acceptedSigs, nil); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}

	verifiedWigs, acceptedWigs, err := verifyAgainstKeys(bField, msg.Body, msg.Wigs)
	if err != nil {
		return err
	}
	if btField > 0 && !v.IsOwn(hdr.AID) && len(verifiedWigs) < btField {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, nil, acceptedWigs); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallyWitnessed, entry)
	}

	if delegated {
		if err := v.verifyDelegation(ctx, hdr.AID, sn, digest, delegatorAID, msg.Seal, entry); err != nil {
			return err
		}
	}

	state := keystate.State{
		AID:               hdr.AID,
		Sn:                sn,
		EventDigest:       digest,
		EventType:         string(hdr.Type),
		SigningThreshold:  ktSpec,
		SigningKeys:       kField,
		NextCommitment:    nField,
		WitnessThreshold:  btField,
		Witnesses:         bField,
		Config:            traitsOf(cField),
		LastEstablishment: keystate.EstablishmentLocation{Sn: sn, Digest: digest},
		DelegatorAID:      delegatorAID,
		Transferable:      transferable,
	}
	if err := v.Store.KeyStates.Put(ctx, state); err != nil {
		return err
	}
	if err := v.persistAccepted(ctx, hdr.AID, sn, digest, msg.Kind, msg.Body, acceptedSigs, acceptedWigs); err != nil {
		return err
	}
	v.emitReceiptCue(hdr.AID, sn, digest)
	return nil
}

// verifyAIDDerivation recomputes the AID from the revealed fields and
// reports whether it is transferable. A self-addressing AID (a digest
// code prefix) is recomputed by re-serializing the event with the "i"
// field replaced by a same-length placeholder — the version string's
// declared size must equal the real, final serialized length regardless
// of which digest the prefix ultimately holds, so the placeholder keeps
// that length stable while the actual prefix is still unknown. A
// basic-derivation AID (a key code prefix) must equal k[0].
func (v *Verifier) verifyAIDDerivation(kind event.Kind, hdr event.Header, delegated bool, kt threshold.Spec, k []string, n string, bt int, b []string, c []string, delegator string) (transferable bool, err error) {
	hardLen, err := codec.SniffHardLen(hdr.AID)
	if err != nil {
		return false, asValidation(hdr.AID, "unrecognized AID derivation code")
	}
	code, err := codec.Lookup(hdr.AID[:hardLen])
	if err != nil {
		return false, asValidation(hdr.AID, "unrecognized AID derivation code")
	}

	for _, digestCode := range codec.DigestCodes {
		if code.Code != digestCode {
			continue
		}
		placeholder := strings.Repeat("#", len(hdr.AID))
		recomputed, rerr := recomputeSelfAddressing(kind, hdr, placeholder, delegated, kt, k, n, bt, b, c, delegator)
		if rerr != nil {
			return false, rerr
		}
		if recomputed != hdr.AID {
			return false, asValidation(hdr.AID, "self-addressing prefix does not match recomputed digest")
		}
		return true, nil
	}
	if code.Code == codec.CodeEd25519 || code.Code == codec.CodeEd25519NT {
		if len(k) == 0 || k[0] != hdr.AID {
			return false, asValidation(hdr.AID, "basic-derivation prefix does not match k[0]")
		}
		return code.Code == codec.CodeEd25519, nil
	}
	return false, asValidation(hdr.AID, "AID derivation code is neither a digest nor a key code")
}

// recomputeSelfAddressing rebuilds the inception/delegated-inception
// body with "i" set to placeholder, marshals it, and returns the digest
// of the result under the digest algorithm named by hdr.AID's own
// derivation code.
func recomputeSelfAddressing(kind event.Kind, hdr event.Header, placeholder string, delegated bool, kt threshold.Spec, k []string, n string, bt int, b []string, c []string, delegator string) (string, error) {
	hardLen, err := codec.SniffHardLen(hdr.AID)
	if err != nil {
		return "", err
	}
	code, err := codec.Lookup(hdr.AID[:hardLen])
	if err != nil {
		return "", err
	}

	var body []byte
	if delegated {
		dip := event.DelegatedInception{
			Header: event.Header{AID: placeholder, Seq: hdr.Seq, Type: hdr.Type},
			Kt:     kt, K: k, N: n, Bt: bt, B: b, C: c, Di: delegator,
		}
		body, err = event.Marshal(kind, &dip)
	} else {
		icp := event.Inception{
			Header: event.Header{AID: placeholder, Seq: hdr.Seq, Type: hdr.Type},
			Kt:     kt, K: k, N: n, Bt: bt, B: b, C: c,
		}
		body, err = event.Marshal(kind, &icp)
	}
	if err != nil {
		return "", err
	}
	return codec.DigestText(code.Code, body)
}

func traitsOf(c []string) []keystate.ConfigTrait {
	out := make([]keystate.ConfigTrait, len(c))
	for i, t := range c {
		out[i] = keystate.ConfigTrait(t)
	}
	return out
}
