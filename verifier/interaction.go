package verifier

import (
	"context"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/store"
)

// acceptInteraction handles ixn events (§4.G item 3): a non-establishment
// event anchors seals without changing signing authority, so it verifies
// against the AID's current key state rather than revealing new keys.
func (v *Verifier) acceptInteraction(ctx context.Context, msg Incoming) error {
	hdr := msg.Header
	sn, err := codec.ParseSeqNumHex(hdr.Seq)
	if err != nil {
		return asValidation(hdr.AID, "malformed sequence number: "+err.Error())
	}

	digest, err := eventDigest(v.DigestCode, msg.Body)
	if err != nil {
		return err
	}
	entry := store.EscrowEntry{AID: hdr.AID, Sn: sn, Digest: digest, Kind: msg.Kind, Body: msg.Body, Sigs: msg.Sigs, Wigs: msg.Wigs}

	state, ok, err := v.Store.KeyStates.Get(ctx, hdr.AID)
	if err != nil {
		return err
	}
	if !ok {
		return escrow(ctx, v.Store, kerierr.EscrowOutOfOrder, entry)
	}
	if state.HasTrait(keystate.TraitEstablishmentOnly) {
		return asValidation(hdr.AID, "establishment-only configuration rejects interaction events")
	}

	expected := state.Sn.Next()
	if sn.Cmp(expected) > 0 {
		return escrow(ctx, v.Store, kerierr.EscrowOutOfOrder, entry)
	}

	if sn.Cmp(expected) < 0 {
		existing, dup, same, err := v.checkDuplicity(ctx, hdr.AID, sn, digest)
		if err != nil {
			return err
		}
		if dup && same {
			return nil
		}
		if dup {
			return escrow(ctx, v.Store, kerierr.EscrowLikelyDuplicitous, entry)
		}
		_ = existing
		return escrow(ctx, v.Store, kerierr.EscrowOutOfOrder, entry)
	}

	var ixn event.Interaction
	if err := event.Unmarshal(msg.Kind, msg.Body, &ixn); err != nil {
		return asValidation(hdr.AID, "malformed ixn body: "+err.Error())
	}
	if ixn.P != state.EventDigest {
		return asValidation(hdr.AID, "interaction prior-digest does not match current key state")
	}

	verifiedIdx, acceptedSigs, err := verifyAgainstKeys(state.SigningKeys, msg.Body, msg.Sigs)
	if err != nil {
		return err
	}
	if len(acceptedSigs) == 0 {
		return asValidation(hdr.AID, "no verifiable controller signature attached")
	}
	if !state.SigningThreshold.Satisfy(verifiedIdx) {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, acceptedSigs, nil); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}

	verifiedWigs, acceptedWigs, err := verifyAgainstKeys(state.Witnesses, msg.Body, msg.Wigs)
	if err != nil {
		return err
	}
	if state.WitnessThreshold > 0 && !v.IsOwn(hdr.AID) && len(verifiedWigs) < state.WitnessThreshold {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, nil, acceptedWigs); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallyWitnessed, entry)
	}

	state.Sn = sn
	state.EventDigest = digest
	state.EventType = string(hdr.Type)

	if err := v.Store.KeyStates.Put(ctx, state); err != nil {
		return err
	}
	if err := v.persistAccepted(ctx, hdr.AID, sn, digest, msg.Kind, msg.Body, acceptedSigs, acceptedWigs); err != nil {
		return err
	}
	v.emitReceiptCue(hdr.AID, sn, digest)
	return nil
}
