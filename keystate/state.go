package keystate

import (
	"fmt"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/threshold"
)

// ConfigTrait is a per-AID configuration flag carried in event field "c".
type ConfigTrait string

const (
	// TraitEstablishmentOnly rejects ixn events for this AID (§4.G ixn
	// handling: "Reject if config includes establishment-only").
	TraitEstablishmentOnly ConfigTrait = "EO"
	// TraitDoNotDelegate forbids this AID from acting as a delegator
	// (§4.G delegation: "confirms the delegator's config does not
	// forbid delegation").
	TraitDoNotDelegate ConfigTrait = "DND"
)

// EstablishmentLocation pins the sequence number and digest of the most
// recent establishment event (icp/dip/rot/drt), the anchor that
// rotations verify their next-key commitment against and that recovery
// compares candidate branches to.
type EstablishmentLocation struct {
	Sn     codec.SeqNum
	Digest string
}

// State is the per-AID key state tuple (§3 "Key state (per AID)").
type State struct {
	AID string

	Sn          codec.SeqNum
	EventDigest string
	EventType   string

	SigningThreshold threshold.Spec
	SigningKeys      []string

	NextCommitment string

	WitnessThreshold int
	Witnesses        []string

	Config []ConfigTrait

	LastEstablishment EstablishmentLocation

	// DelegatorAID is non-empty for dip/drt-rooted identifiers. It is
	// stored as a value, never as an in-memory back-pointer to the
	// delegator's own State (§9 design note: resolve via store lookup).
	DelegatorAID string

	FirstSeenOrdinal uint64

	// Transferable is false for basic-derivation AIDs that commit to an
	// empty next-key digest at inception and can never rotate (§3).
	Transferable bool
}

// HasTrait reports whether the state's config list carries t.
func (s State) HasTrait(t ConfigTrait) bool {
	for _, c := range s.Config {
		if c == t {
			return true
		}
	}
	return false
}

// IsAbandoned reports whether this AID has rotated to an empty next-key
// commitment, the terminal state for a transferable identifier.
func (s State) IsAbandoned() bool {
	return s.Transferable && s.NextCommitment == EmptyCommitment
}

// ApplyWitnessRotation computes the post-rotation witness list from the
// current list and the rotation's cuts/adds, enforcing §3 invariant 5:
// br ⊆ previous b, br ∩ ba = ∅, previous b ∩ ba = ∅; result = (previous
// \ br) ∪ ba, preserving the order obtained by deleting cuts in place
// and appending adds.
func ApplyWitnessRotation(previous, cuts, adds []string) ([]string, error) {
	cutSet := make(map[string]bool, len(cuts))
	for _, c := range cuts {
		cutSet[c] = true
	}
	prevSet := make(map[string]bool, len(previous))
	for _, b := range previous {
		prevSet[b] = true
	}
	addSet := make(map[string]bool, len(adds))
	for _, a := range adds {
		if addSet[a] {
			return nil, fmt.Errorf("keystate: duplicate witness add %q", a)
		}
		addSet[a] = true
	}

	for _, c := range cuts {
		if !prevSet[c] {
			return nil, fmt.Errorf("keystate: witness cut %q not in previous witness list", c)
		}
		if addSet[c] {
			return nil, fmt.Errorf("keystate: witness %q is in both cuts and adds", c)
		}
	}
	for _, a := range adds {
		if prevSet[a] {
			return nil, fmt.Errorf("keystate: witness add %q already present in previous witness list", a)
		}
	}

	out := make([]string, 0, len(previous)-len(cuts)+len(adds))
	for _, b := range previous {
		if !cutSet[b] {
			out = append(out, b)
		}
	}
	out = append(out, adds...)
	return out, nil
}

// ValidWitnessThreshold checks §3 invariant 8: 0 <= bt <= |b|, and bt==0
// iff b is empty.
func ValidWitnessThreshold(bt int, witnesses []string) bool {
	if bt < 0 || bt > len(witnesses) {
		return false
	}
	if bt == 0 != (len(witnesses) == 0) {
		return false
	}
	return true
}
