package verifier

import (
	"context"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/store"
	"github.com/keriproto/go-keri-core/threshold"
)

func (v *Verifier) acceptRotation(ctx context.Context, msg Incoming, delegated bool) error {
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
	if !state.Transferable {
		return asValidation(hdr.AID, "non-transferable AID cannot rotate")
	}

	var (
		p       string
		ktSpec  threshold.Spec
		kField  []string
		nField  string
		btField int
		brField []string
		baField []string
	)
	if delegated {
		var drt event.DelegatedRotation
		if err := event.Unmarshal(msg.Kind, msg.Body, &drt); err != nil {
			return asValidation(hdr.AID, "malformed drt body: "+err.Error())
		}
		p, ktSpec, kField, nField, btField, brField, baField = drt.P, drt.Kt, drt.K, drt.N, drt.Bt, drt.Br, drt.Ba
	} else {
		var rot event.Rotation
		if err := event.Unmarshal(msg.Kind, msg.Body, &rot); err != nil {
			return asValidation(hdr.AID, "malformed rot body: "+err.Error())
		}
		p, ktSpec, kField, nField, btField, brField, baField = rot.P, rot.Kt, rot.K, rot.N, rot.Bt, rot.Br, rot.Ba
	}

	expected := state.Sn.Next()
	switch {
	case sn.Cmp(expected) > 0:
		return escrow(ctx, v.Store, kerierr.EscrowOutOfOrder, entry)
	case sn.Cmp(state.LastEstablishment.Sn) <= 0:
		return asValidation(hdr.AID, "rotation sequence number at or before the last establishment event")
	case sn.Cmp(state.Sn) <= 0 && state.EventType == string(event.TypeInteraction):
		return v.acceptRecoveryRotation(ctx, msg, state, sn, digest, p, ktSpec, kField, nField, btField, brField, baField, entry)
	case sn.Cmp(expected) < 0:
		return asValidation(hdr.AID, "rotation sequence number out of the recoverable range")
	}

	if ktSpec.Size() > len(kField) {
		return asValidation(hdr.AID, "rotation threshold size exceeds key list length")
	}
	if p != state.EventDigest {
		return asValidation(hdr.AID, "rotation prior-digest does not match current key state")
	}
	ok, err = keystate.VerifyCommitment(state.NextCommitment, ktSpec, kField)
	if err != nil {
		return err
	}
	if !ok {
		return asValidation(hdr.AID, "rotation keys do not match the prior next-key commitment")
	}
	newWitnesses, err := keystate.ApplyWitnessRotation(state.Witnesses, brField, baField)
	if err != nil {
		return asValidation(hdr.AID, "witness rotation invalid: "+err.Error())
	}
	if !keystate.ValidWitnessThreshold(btField, newWitnesses) {
		return asValidation(hdr.AID, "witness threshold invalid for resulting witness list")
	}

	verifiedIdx, acceptedSigs, err := verifyAgainstKeys(kField, msg.Body, msg.Sigs)
	if err != nil {
		return err
	}
	if len(acceptedSigs) == 0 {
		return asValidation(hdr.AID, "no verifiable controller signature attached")
	}
	if !ktSpec.Satisfy(verifiedIdx) {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, acceptedSigs, nil); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}

	verifiedWigs, acceptedWigs, err := verifyAgainstKeys(newWitnesses, msg.Body, msg.Wigs)
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
		if err := v.verifyDelegation(ctx, hdr.AID, sn, digest, state.DelegatorAID, msg.Seal, entry); err != nil {
			return err
		}
	}

	state.Sn = sn
	state.EventDigest = digest
	state.EventType = string(hdr.Type)
	state.SigningThreshold = ktSpec
	state.SigningKeys = kField
	state.NextCommitment = nField
	state.WitnessThreshold = btField
	state.Witnesses = newWitnesses
	state.LastEstablishment = keystate.EstablishmentLocation{Sn: sn, Digest: digest}

	if err := v.Store.KeyStates.Put(ctx, state); err != nil {
		return err
	}
	if err := v.persistAccepted(ctx, hdr.AID, sn, digest, msg.Kind, msg.Body, acceptedSigs, acceptedWigs); err != nil {
		return err
	}
	v.emitReceiptCue(hdr.AID, sn, digest)
	return nil
}

// acceptRecoveryRotation handles §4.G's recovery branch: a rotation
// arriving at or below the current sequence number, but above the last
// establishment event, while the AID's latest accepted event is a
// non-establishment (ixn) event. The new rotation supersedes that branch
// once its "p" field matches the digest actually stored at sn-1.
func (v *Verifier) acceptRecoveryRotation(ctx context.Context, msg Incoming, state keystate.State, sn codec.SeqNum, digest, p string, ktSpec threshold.Spec, kField []string, nField string, btField int, brField, baField []string, entry store.EscrowEntry) error {
	hdr := msg.Header
	priorSn := codec.SeqNum{}
	if !sn.IsZero() {
		priorSn = decrementSeqNum(sn)
	}
	priorDigest, ok, err := v.Store.KEL.GetLast(ctx, hdr.AID, priorSn)
	if err != nil {
		return err
	}
	if !ok || priorDigest != p {
		return asValidation(hdr.AID, "recovery rotation's prior digest does not match the stored branch")
	}

	if ktSpec.Size() > len(kField) {
		return asValidation(hdr.AID, "rotation threshold size exceeds key list length")
	}
	ok, err = keystate.VerifyCommitment(state.NextCommitment, ktSpec, kField)
	if err != nil {
		return err
	}
	if !ok {
		return asValidation(hdr.AID, "rotation keys do not match the prior next-key commitment")
	}
	newWitnesses, err := keystate.ApplyWitnessRotation(state.Witnesses, brField, baField)
	if err != nil {
		return asValidation(hdr.AID, "witness rotation invalid: "+err.Error())
	}

	verifiedIdx, acceptedSigs, err := verifyAgainstKeys(kField, msg.Body, msg.Sigs)
	if err != nil {
		return err
	}
	if len(acceptedSigs) == 0 || !ktSpec.Satisfy(verifiedIdx) {
		if err := persistPartial(ctx, v.Store, hdr.AID, digest, acceptedSigs, nil); err != nil {
			return err
		}
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}

	retired, err := v.Store.KEL.Retire(ctx, hdr.AID, sn, digest)
	if err != nil {
		return err
	}
	if len(retired) > 0 {
		if err := v.Store.FirstSeen.Retire(ctx, hdr.AID, retired); err != nil {
			return err
		}
	}

	state.Sn = sn
	state.EventDigest = digest
	state.EventType = string(hdr.Type)
	state.SigningThreshold = ktSpec
	state.SigningKeys = kField
	state.NextCommitment = nField
	state.WitnessThreshold = btField
	state.Witnesses = newWitnesses
	state.LastEstablishment = keystate.EstablishmentLocation{Sn: sn, Digest: digest}

	if err := v.Store.KeyStates.Put(ctx, state); err != nil {
		return err
	}
	if err := v.persistAccepted(ctx, hdr.AID, sn, digest, msg.Kind, msg.Body, acceptedSigs, nil); err != nil {
		return err
	}
	v.emitReceiptCue(hdr.AID, sn, digest)
	return nil
}

func decrementSeqNum(sn codec.SeqNum) codec.SeqNum {
	v, ok := sn.Uint64()
	if !ok || v == 0 {
		return codec.NewSeqNum(0)
	}
	return codec.NewSeqNum(v - 1)
}
