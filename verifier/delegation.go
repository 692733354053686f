package verifier

import (
	"context"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/store"
)

// verifyDelegation locates the delegator's event at the authorizer
// couple's (sn, digest), confirms the delegator is known and has not
// forbidden delegation, and scans its anchored seals for one matching
// (childAID, childSn, childDigest) (§4.G Delegation). The delegator AID
// is stored as a value on the child's own key state, never as an
// in-memory pointer into the delegator's Verifier-owned state (§9 Cyclic
// references note); every lookup goes back through the store.
func (v *Verifier) verifyDelegation(ctx context.Context, childAID string, childSn codec.SeqNum, childDigest, delegatorAID string, seal *cesr.SealSourceCouple, entry store.EscrowEntry) error {
	if seal == nil {
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}
	if err := v.Store.Authorizers.Set(ctx, childAID, childDigest, *seal); err != nil {
		return err
	}

	delegatorState, ok, err := v.Store.KeyStates.Get(ctx, delegatorAID)
	if err != nil {
		return err
	}
	if !ok {
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}
	if delegatorState.HasTrait(keystate.TraitDoNotDelegate) {
		return asValidation(childAID, "delegator configuration forbids delegation")
	}

	kind, body, ok, err := v.Store.Bodies.Get(ctx, delegatorAID, seal.Digest)
	if err != nil {
		return err
	}
	if !ok {
		return escrow(ctx, v.Store, kerierr.EscrowPartiallySigned, entry)
	}

	var hdr event.Header
	if err := event.Unmarshal(kind, body, &hdr); err != nil {
		return err
	}
	seals, err := decodeSeals(kind, body, hdr.Type)
	if err != nil {
		return err
	}
	for _, s := range seals {
		if s.AID == childAID && s.Sn == childSn.Hex() && s.Digest == childDigest {
			return nil
		}
	}
	return asValidation(childAID, "delegator's anchored seals do not authorize this event")
}

func decodeSeals(kind event.Kind, body []byte, t event.Type) ([]event.Seal, error) {
	switch t {
	case event.TypeInception:
		var e event.Inception
		if err := event.Unmarshal(kind, body, &e); err != nil {
			return nil, err
		}
		return e.A, nil
	case event.TypeDelegatedInception:
		var e event.DelegatedInception
		if err := event.Unmarshal(kind, body, &e); err != nil {
			return nil, err
		}
		return e.A, nil
	case event.TypeRotation:
		var e event.Rotation
		if err := event.Unmarshal(kind, body, &e); err != nil {
			return nil, err
		}
		return e.A, nil
	case event.TypeDelegatedRotation:
		var e event.DelegatedRotation
		if err := event.Unmarshal(kind, body, &e); err != nil {
			return nil, err
		}
		return e.A, nil
	case event.TypeInteraction:
		var e event.Interaction
		if err := event.Unmarshal(kind, body, &e); err != nil {
			return nil, err
		}
		return e.A, nil
	default:
		return nil, nil
	}
}
