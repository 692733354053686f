// Package storemem is an in-memory reference implementation of the
// store interfaces (§4.E), sufficient to drive the verifier, receipt
// processor and escrow engine in tests without a durable backend.
package storemem

import (
	"context"
	"sync"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/store"
)

type bodyRecord struct {
	kind event.Kind
	body []byte
}

type eventBodies struct {
	mu   sync.Mutex
	data map[string]bodyRecord
}

func key2(a, b string) string { return a + "\x00" + b }

func newEventBodies() *eventBodies { return &eventBodies{data: map[string]bodyRecord{}} }

func (s *eventBodies) PutIfAbsent(_ context.Context, aid, digest string, kind event.Kind, body []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key2(aid, digest)
	if _, ok := s.data[k]; ok {
		return false, nil
	}
	s.data[k] = bodyRecord{kind: kind, body: append([]byte{}, body...)}
	return true, nil
}

func (s *eventBodies) Set(_ context.Context, aid, digest string, kind event.Kind, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key2(aid, digest)] = bodyRecord{kind: kind, body: append([]byte{}, body...)}
	return nil
}

func (s *eventBodies) Get(_ context.Context, aid, digest string) (event.Kind, []byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key2(aid, digest)]
	if !ok {
		return "", nil, false, nil
	}
	return rec.kind, rec.body, true, nil
}

func (s *eventBodies) Delete(_ context.Context, aid, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key2(aid, digest))
	return nil
}

type kelKey struct {
	aid string
	sn  string
}

type kel struct {
	mu   sync.Mutex
	data map[kelKey][]string
}

func newKEL() *kel { return &kel{data: map[kelKey][]string{}} }

func (k *kel) Append(_ context.Context, aid string, sn codec.SeqNum, digest string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	kk := kelKey{aid, sn.Hex()}
	for _, d := range k.data[kk] {
		if d == digest {
			return nil
		}
	}
	k.data[kk] = append(k.data[kk], digest)
	return nil
}

func (k *kel) GetLast(_ context.Context, aid string, sn codec.SeqNum) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ds := k.data[kelKey{aid, sn.Hex()}]
	if len(ds) == 0 {
		return "", false, nil
	}
	return ds[len(ds)-1], true, nil
}

func (k *kel) IterateDuplicates(_ context.Context, aid string, sn codec.SeqNum) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ds := k.data[kelKey{aid, sn.Hex()}]
	return append([]string{}, ds...), nil
}

func (k *kel) Retire(_ context.Context, aid string, sn codec.SeqNum, keep string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	snKey := kelKey{aid, sn.Hex()}
	var removed []string
	for _, d := range k.data[snKey] {
		if d != keep {
			removed = append(removed, d)
		}
	}
	k.data[snKey] = []string{keep}

	for kk, digests := range k.data {
		if kk.aid != aid || kk == snKey {
			continue
		}
		otherSn, err := codec.ParseSeqNumHex(kk.sn)
		if err != nil {
			continue
		}
		if otherSn.Cmp(sn) > 0 {
			removed = append(removed, digests...)
			delete(k.data, kk)
		}
	}
	return removed, nil
}

type firstSeen struct {
	mu      sync.Mutex
	next    map[string]uint64
	byOrd   map[string]map[uint64]string
	digests map[string]map[string]uint64
}

func newFirstSeen() *firstSeen {
	return &firstSeen{
		next:    map[string]uint64{},
		byOrd:   map[string]map[uint64]string{},
		digests: map[string]map[string]uint64{},
	}
}

func (f *firstSeen) Append(_ context.Context, aid, digest string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if digs, ok := f.digests[aid]; ok {
		if ord, ok := digs[digest]; ok {
			return ord, nil
		}
	}
	ord := f.next[aid]
	f.next[aid] = ord + 1
	if f.byOrd[aid] == nil {
		f.byOrd[aid] = map[uint64]string{}
	}
	if f.digests[aid] == nil {
		f.digests[aid] = map[string]uint64{}
	}
	f.byOrd[aid][ord] = digest
	f.digests[aid][digest] = ord
	return ord, nil
}

func (f *firstSeen) GetByOrdinal(_ context.Context, aid string, ordinal uint64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byOrd[aid][ordinal]
	return d, ok, nil
}

func (f *firstSeen) HasDigest(_ context.Context, aid, digest string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord, ok := f.digests[aid][digest]
	return ord, ok, nil
}

func (f *firstSeen) Retire(_ context.Context, aid string, digests []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.digests[aid] == nil {
		return nil
	}
	rewind := f.next[aid]
	for _, d := range digests {
		ord, ok := f.digests[aid][d]
		if !ok {
			continue
		}
		delete(f.digests[aid], d)
		delete(f.byOrd[aid], ord)
		if ord < rewind {
			rewind = ord
		}
	}
	f.next[aid] = rewind
	return nil
}

type sigSet struct {
	mu   sync.Mutex
	data map[string][]codec.IndexedSignature
}

func newSigSet() *sigSet { return &sigSet{data: map[string][]codec.IndexedSignature{}} }

func (s *sigSet) Add(_ context.Context, aid, digest string, sig codec.IndexedSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key2(aid, digest)
	for _, existing := range s.data[k] {
		if existing.Index == sig.Index && existing.Witness == sig.Witness && string(existing.Signature) == string(sig.Signature) {
			return nil
		}
	}
	s.data[k] = append(s.data[k], sig)
	return nil
}

func (s *sigSet) GetAll(_ context.Context, aid, digest string) ([]codec.IndexedSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]codec.IndexedSignature{}, s.data[key2(aid, digest)]...), nil
}

type receiptCouples struct {
	mu   sync.Mutex
	data map[string][]cesr.ReceiptCouple
}

func newReceiptCouples() *receiptCouples {
	return &receiptCouples{data: map[string][]cesr.ReceiptCouple{}}
}

func (r *receiptCouples) Add(_ context.Context, aid, digest string, couple cesr.ReceiptCouple) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key2(aid, digest)
	for _, existing := range r.data[k] {
		if existing.Verfer == couple.Verfer && string(existing.Signature) == string(couple.Signature) {
			return nil
		}
	}
	r.data[k] = append(r.data[k], couple)
	return nil
}

func (r *receiptCouples) GetAll(_ context.Context, aid, digest string) ([]cesr.ReceiptCouple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cesr.ReceiptCouple{}, r.data[key2(aid, digest)]...), nil
}

type receiptQuadruples struct {
	mu   sync.Mutex
	data map[string][]cesr.ReceiptQuadruple
}

func newReceiptQuadruples() *receiptQuadruples {
	return &receiptQuadruples{data: map[string][]cesr.ReceiptQuadruple{}}
}

func (r *receiptQuadruples) Add(_ context.Context, aid, digest string, quad cesr.ReceiptQuadruple) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key2(aid, digest)
	for _, existing := range r.data[k] {
		if existing.AID == quad.AID && existing.Digest == quad.Digest && existing.Signature.Index == quad.Signature.Index {
			return nil
		}
	}
	r.data[k] = append(r.data[k], quad)
	return nil
}

func (r *receiptQuadruples) GetAll(_ context.Context, aid, digest string) ([]cesr.ReceiptQuadruple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cesr.ReceiptQuadruple{}, r.data[key2(aid, digest)]...), nil
}

type authorizerCouples struct {
	mu   sync.Mutex
	data map[string]cesr.SealSourceCouple
}

func newAuthorizerCouples() *authorizerCouples {
	return &authorizerCouples{data: map[string]cesr.SealSourceCouple{}}
}

func (a *authorizerCouples) Set(_ context.Context, childAID, childDigest string, couple cesr.SealSourceCouple) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key2(childAID, childDigest)] = couple
	return nil
}

func (a *authorizerCouples) Get(_ context.Context, childAID, childDigest string) (cesr.SealSourceCouple, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.data[key2(childAID, childDigest)]
	return c, ok, nil
}

type timestamps struct {
	mu   sync.Mutex
	data map[string]int64
}

func newTimestamps() *timestamps { return &timestamps{data: map[string]int64{}} }

func (t *timestamps) PutIfAbsent(_ context.Context, aid, digest string, unixSeconds int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key2(aid, digest)
	if _, ok := t.data[k]; ok {
		return false, nil
	}
	t.data[k] = unixSeconds
	return true, nil
}

func (t *timestamps) Set(_ context.Context, aid, digest string, unixSeconds int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key2(aid, digest)] = unixSeconds
	return nil
}

func (t *timestamps) Get(_ context.Context, aid, digest string) (int64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[key2(aid, digest)]
	return v, ok, nil
}

type escrowKey struct {
	kind   kerierr.EscrowKind
	aid    string
	sn     string
	digest string
}

type escrows struct {
	mu      sync.Mutex
	order   map[kerierr.EscrowKind][]escrowKey
	entries map[escrowKey]store.EscrowEntry
}

func newEscrows() *escrows {
	return &escrows{
		order:   map[kerierr.EscrowKind][]escrowKey{},
		entries: map[escrowKey]store.EscrowEntry{},
	}
}

func (e *escrows) Append(_ context.Context, kind kerierr.EscrowKind, entry store.EscrowEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := escrowKey{kind, entry.AID, entry.Sn.Hex(), entry.Digest}
	if _, ok := e.entries[k]; ok {
		return nil
	}
	e.entries[k] = entry
	e.order[kind] = append(e.order[kind], k)
	return nil
}

func (e *escrows) Iterate(_ context.Context, kind kerierr.EscrowKind) ([]store.EscrowEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := append([]escrowKey{}, e.order[kind]...)
	sortEscrowKeys(keys)
	out := make([]store.EscrowEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.entries[k])
	}
	return out, nil
}

// sortEscrowKeys orders by (aid, sn) then leaves insertion order intact
// within a key, matching §4.I "iterates ... by (AID, sn), then by
// duplicate insertion order" — a stable sort preserves the append order
// recorded in e.order for equal (aid, sn) pairs.
func sortEscrowKeys(keys []escrowKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if a.aid > b.aid || (a.aid == b.aid && (len(a.sn) > len(b.sn) || (len(a.sn) == len(b.sn) && a.sn > b.sn))) {
				keys[j-1], keys[j] = keys[j], keys[j-1]
				continue
			}
			break
		}
	}
}

func (e *escrows) Delete(_ context.Context, kind kerierr.EscrowKind, aid string, sn codec.SeqNum, digest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := escrowKey{kind, aid, sn.Hex(), digest}
	delete(e.entries, k)
	keys := e.order[kind]
	for i, ek := range keys {
		if ek == k {
			e.order[kind] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

type keyStates struct {
	mu   sync.Mutex
	data map[string]keystate.State
}

func newKeyStates() *keyStates { return &keyStates{data: map[string]keystate.State{}} }

func (k *keyStates) Put(_ context.Context, state keystate.State) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[state.AID] = state
	return nil
}

func (k *keyStates) Get(_ context.Context, aid string) (keystate.State, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.data[aid]
	return s, ok, nil
}

// New constructs a fully wired, in-memory store.Store.
func New() *store.Store {
	return &store.Store{
		Bodies:           newEventBodies(),
		KEL:              newKEL(),
		FirstSeen:        newFirstSeen(),
		ControllerSigs:   newSigSet(),
		WitnessSigs:      newSigSet(),
		NonTransReceipts: newReceiptCouples(),
		TransReceipts:    newReceiptQuadruples(),
		Authorizers:      newAuthorizerCouples(),
		Timestamps:       newTimestamps(),
		Escrows:          newEscrows(),
		KeyStates:        newKeyStates(),
	}
}
