package event

import "github.com/keriproto/go-keri-core/threshold"

// Type is the event type tag ("t" field).
type Type string

const (
	TypeInception           Type = "icp"
	TypeRotation             Type = "rot"
	TypeInteraction          Type = "ixn"
	TypeDelegatedInception   Type = "dip"
	TypeDelegatedRotation    Type = "drt"
	TypeNonTransReceipt      Type = "rct"
	TypeTransferableReceipt  Type = "vrc"
	TypeKeyStateNotice       Type = "ksn"
	TypeQuery                Type = "req"
)

// Header is the common first fields shared by every event (§9 design
// note: "model each event as a tagged variant with type-specific
// required fields, sharing a common header").
type Header struct {
	Version string `json:"v" cbor:"v" msgpack:"v"`
	AID     string `json:"i" cbor:"i" msgpack:"i"`
	Seq     string `json:"s" cbor:"s" msgpack:"s"`
	Type    Type   `json:"t" cbor:"t" msgpack:"t"`
}

// Seal is a structured (AID, sn, digest) reference anchored in an
// event's "a" field, or used as the authorizer couple for delegation.
type Seal struct {
	AID    string `json:"i" cbor:"i" msgpack:"i"`
	Sn     string `json:"s" cbor:"s" msgpack:"s"`
	Digest string `json:"d" cbor:"d" msgpack:"d"`
}

// Inception is the icp event.
type Inception struct {
	Header
	Kt threshold.Spec `json:"kt" cbor:"kt" msgpack:"kt"`
	K  []string       `json:"k" cbor:"k" msgpack:"k"`
	N  string         `json:"n" cbor:"n" msgpack:"n"`
	Bt int            `json:"bt" cbor:"bt" msgpack:"bt"`
	B  []string       `json:"b" cbor:"b" msgpack:"b"`
	C  []string       `json:"c,omitempty" cbor:"c,omitempty" msgpack:"c,omitempty"`
	A  []Seal         `json:"a,omitempty" cbor:"a,omitempty" msgpack:"a,omitempty"`
}

// DelegatedInception is the dip event: an Inception plus the delegator AID.
type DelegatedInception struct {
	Header
	Kt threshold.Spec `json:"kt" cbor:"kt" msgpack:"kt"`
	K  []string       `json:"k" cbor:"k" msgpack:"k"`
	N  string         `json:"n" cbor:"n" msgpack:"n"`
	Bt int            `json:"bt" cbor:"bt" msgpack:"bt"`
	B  []string       `json:"b" cbor:"b" msgpack:"b"`
	C  []string       `json:"c,omitempty" cbor:"c,omitempty" msgpack:"c,omitempty"`
	A  []Seal         `json:"a,omitempty" cbor:"a,omitempty" msgpack:"a,omitempty"`
	Di string         `json:"di" cbor:"di" msgpack:"di"`
}

// Rotation is the rot event.
type Rotation struct {
	Header
	P  string         `json:"p" cbor:"p" msgpack:"p"`
	Kt threshold.Spec `json:"kt" cbor:"kt" msgpack:"kt"`
	K  []string       `json:"k" cbor:"k" msgpack:"k"`
	N  string         `json:"n" cbor:"n" msgpack:"n"`
	Bt int            `json:"bt" cbor:"bt" msgpack:"bt"`
	Br []string       `json:"br,omitempty" cbor:"br,omitempty" msgpack:"br,omitempty"`
	Ba []string       `json:"ba,omitempty" cbor:"ba,omitempty" msgpack:"ba,omitempty"`
	A  []Seal         `json:"a,omitempty" cbor:"a,omitempty" msgpack:"a,omitempty"`
}

// DelegatedRotation is the drt event.
type DelegatedRotation struct {
	Header
	P  string         `json:"p" cbor:"p" msgpack:"p"`
	Kt threshold.Spec `json:"kt" cbor:"kt" msgpack:"kt"`
	K  []string       `json:"k" cbor:"k" msgpack:"k"`
	N  string         `json:"n" cbor:"n" msgpack:"n"`
	Bt int            `json:"bt" cbor:"bt" msgpack:"bt"`
	Br []string       `json:"br,omitempty" cbor:"br,omitempty" msgpack:"br,omitempty"`
	Ba []string       `json:"ba,omitempty" cbor:"ba,omitempty" msgpack:"ba,omitempty"`
	A  []Seal         `json:"a,omitempty" cbor:"a,omitempty" msgpack:"a,omitempty"`
}

// Interaction is the ixn event.
type Interaction struct {
	Header
	P string `json:"p" cbor:"p" msgpack:"p"`
	A []Seal `json:"a,omitempty" cbor:"a,omitempty" msgpack:"a,omitempty"`
}

// NonTransReceipt is the rct event: a non-transferable receipt.
type NonTransReceipt struct {
	Header
	D string `json:"d" cbor:"d" msgpack:"d"`
}

// TransferableReceipt is the vrc event.
type TransferableReceipt struct {
	Header
	D string `json:"d" cbor:"d" msgpack:"d"`
}

// KeyStateNotice is the ksn event: an unsolicited key-state summary.
// §4.I / §9 leave key-state-notification escrow unimplemented; this
// type lets a ksn body be decoded. Nothing in this module cues on it.
type KeyStateNotice struct {
	Header
	Ksn map[string]any `json:"ksn" cbor:"ksn" msgpack:"ksn"`
}

// Query is the req event.
type Query struct {
	Header
	Route string         `json:"r" cbor:"r" msgpack:"r"`
	Query map[string]any `json:"q" cbor:"q" msgpack:"q"`
}

// GetHeader lets a bare Header satisfy the Event interface, used by the
// parser to sniff just the common fields before deciding which concrete
// type to fully decode into.
func (h Header) GetHeader() Header { return h }
func (h Header) AIDOf() string     { return h.AID }
func (h Header) SeqHex() string    { return h.Seq }
func (h Header) TypeOf() Type      { return h.Type }

// Event is satisfied by every concrete event type. It exposes only the
// common header fields (the header itself, AID, sequence number and
// type) without a type switch; seals and prior digests are not part of
// it.
type Event interface {
	GetHeader() Header
	AIDOf() string
	SeqHex() string
	TypeOf() Type
}

func (e Inception) GetHeader() Header            { return e.Header }
func (e Inception) AIDOf() string                { return e.AID }
func (e Inception) SeqHex() string                { return e.Seq }
func (e Inception) TypeOf() Type                  { return e.Type }

func (e DelegatedInception) GetHeader() Header { return e.Header }
func (e DelegatedInception) AIDOf() string     { return e.AID }
func (e DelegatedInception) SeqHex() string     { return e.Seq }
func (e DelegatedInception) TypeOf() Type       { return e.Type }

func (e Rotation) GetHeader() Header { return e.Header }
func (e Rotation) AIDOf() string     { return e.AID }
func (e Rotation) SeqHex() string     { return e.Seq }
func (e Rotation) TypeOf() Type       { return e.Type }

func (e DelegatedRotation) GetHeader() Header { return e.Header }
func (e DelegatedRotation) AIDOf() string     { return e.AID }
func (e DelegatedRotation) SeqHex() string     { return e.Seq }
func (e DelegatedRotation) TypeOf() Type       { return e.Type }

func (e Interaction) GetHeader() Header { return e.Header }
func (e Interaction) AIDOf() string     { return e.AID }
func (e Interaction) SeqHex() string     { return e.Seq }
func (e Interaction) TypeOf() Type       { return e.Type }

func (e NonTransReceipt) GetHeader() Header { return e.Header }
func (e NonTransReceipt) AIDOf() string     { return e.AID }
func (e NonTransReceipt) SeqHex() string     { return e.Seq }
func (e NonTransReceipt) TypeOf() Type       { return e.Type }

func (e TransferableReceipt) GetHeader() Header { return e.Header }
func (e TransferableReceipt) AIDOf() string     { return e.AID }
func (e TransferableReceipt) SeqHex() string     { return e.Seq }
func (e TransferableReceipt) TypeOf() Type       { return e.Type }

func (e KeyStateNotice) GetHeader() Header { return e.Header }
func (e KeyStateNotice) AIDOf() string     { return e.AID }
func (e KeyStateNotice) SeqHex() string     { return e.Seq }
func (e KeyStateNotice) TypeOf() Type       { return e.Type }

func (e Query) GetHeader() Header { return e.Header }
func (e Query) AIDOf() string     { return e.AID }
func (e Query) SeqHex() string     { return e.Seq }
func (e Query) TypeOf() Type       { return e.Type }

// IsEstablishment reports whether t is one of the event types that
// establish new signing authority (§3 "Establishment event").
func IsEstablishment(t Type) bool {
	switch t {
	case TypeInception, TypeDelegatedInception, TypeRotation, TypeDelegatedRotation:
		return true
	}
	return false
}

// Seals returns the anchored seal list for event types that carry one,
// or nil for types that don't (receipts, ksn, req).
func Seals(e Event) []Seal {
	switch t := e.(type) {
	case Inception:
		return t.A
	case DelegatedInception:
		return t.A
	case Rotation:
		return t.A
	case DelegatedRotation:
		return t.A
	case Interaction:
		return t.A
	default:
		return nil
	}
}

// Versioned is implemented by a pointer to every concrete event type,
// letting the serializer patch the version string in place during the
// two-pass construction described in §4.B.
type Versioned interface {
	SetVersion(v string)
}

func (e *Inception) SetVersion(v string)           { e.Version = v }
func (e *DelegatedInception) SetVersion(v string)  { e.Version = v }
func (e *Rotation) SetVersion(v string)             { e.Version = v }
func (e *DelegatedRotation) SetVersion(v string)    { e.Version = v }
func (e *Interaction) SetVersion(v string)          { e.Version = v }
func (e *NonTransReceipt) SetVersion(v string)      { e.Version = v }
func (e *TransferableReceipt) SetVersion(v string)  { e.Version = v }
func (e *KeyStateNotice) SetVersion(v string)       { e.Version = v }
func (e *Query) SetVersion(v string)                { e.Version = v }
func (e *Header) SetVersion(v string)               { e.Version = v }

// PriorDigest returns the "p" field for event types that carry one.
func PriorDigest(e Event) (string, bool) {
	switch t := e.(type) {
	case Rotation:
		return t.P, true
	case DelegatedRotation:
		return t.P, true
	case Interaction:
		return t.P, true
	default:
		return "", false
	}
}
