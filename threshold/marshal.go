package threshold

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// asInterface converts Spec to the plain-Go-value shape shared by all
// three wire encodings: either a hex string (numeric threshold) or a
// [][]string of weight clauses (weighted threshold). Building one
// intermediate representation and handing it to each encoder's generic
// marshaler keeps the three wire forms in lockstep without hand-rolling
// three independent writers.
func (s Spec) asInterface() any {
	if !s.IsWeighted() {
		return fmt.Sprintf("%x", s.Numeric)
	}
	clauses := make([][]string, len(s.Clauses))
	for i, clause := range s.Clauses {
		ws := make([]string, len(clause))
		for j, w := range clause {
			ws[j] = w.RatString()
		}
		clauses[i] = ws
	}
	return clauses
}

func fromInterface(v any) (Spec, error) {
	switch t := v.(type) {
	case string:
		var m int64
		if _, err := fmt.Sscanf(t, "%x", &m); err != nil {
			return Spec{}, fmt.Errorf("threshold: invalid numeric threshold %q: %w", t, err)
		}
		return NewNumeric(int(m)), nil
	case [][]string:
		return NewWeighted(t)
	case []any:
		clauses := make([][]string, len(t))
		for i, c := range t {
			items, ok := c.([]any)
			if !ok {
				return Spec{}, fmt.Errorf("threshold: malformed clause at index %d", i)
			}
			ws := make([]string, len(items))
			for j, it := range items {
				s, ok := it.(string)
				if !ok {
					return Spec{}, fmt.Errorf("threshold: clause weight must be a string")
				}
				ws[j] = s
			}
			clauses[i] = ws
		}
		return NewWeighted(clauses)
	default:
		return Spec{}, fmt.Errorf("threshold: unrecognized threshold shape %T", v)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.asInterface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	spec, err := fromInterface(raw)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// MarshalCBOR implements cbor.Marshaler (recognized by fxamacker/cbor/v2).
func (s Spec) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s.asInterface())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Spec) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	spec, err := fromInterface(normalizeCBOR(raw))
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// normalizeCBOR converts cbor's generic decode shapes ([]interface{} of
// []interface{} of []byte/string) into the []any shape fromInterface
// understands; fxamacker/cbor decodes text strings as string and byte
// strings as []byte, so weight clauses (always text) come back as
// expected, but we still funnel through []any for clause lists.
func normalizeCBOR(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeCBOR(e)
		}
		return out
	default:
		return v
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (s Spec) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(s.asInterface())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (s *Spec) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	spec, err := fromInterface(normalizeCBOR(raw))
	if err != nil {
		return err
	}
	*s = spec
	return nil
}
