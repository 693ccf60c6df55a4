package premint

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tagged-union wire format: {"type": "<variant>", ...}, the
// same shape the teacher's Transaction type hides behind its MarshalJSON /
// inner-txdata dispatch, generalized to a JSON (not RLP) encoding since
// premints travel as gossip payloads, not chain-confirmed transactions.
type Envelope struct {
	Value Premint
}

type taggedHeader struct {
	Type Kind `json:"type"`
}

// MarshalJSON flattens the concrete variant's fields alongside its "type"
// tag, matching the original's `#[serde(tag = "type")]` enum encoding.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var kind Kind
	switch e.Value.(type) {
	case *Simple:
		kind = KindSimple
	case *ZoraPremintV2:
		kind = KindZoraPremint
	default:
		return nil, fmt.Errorf("premint: unknown variant %T", e.Value)
	}

	body, err := json.Marshal(e.Value)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = mustMarshal(kind)
	return json.Marshal(fields)
}

// UnmarshalJSON reads the "type" tag first, then decodes the remaining
// fields into the matching concrete variant.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var hdr taggedHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("premint envelope: reading type tag: %w", err)
	}
	switch hdr.Type {
	case KindSimple:
		var s Simple
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Value = &s
	case KindZoraPremint:
		var z ZoraPremintV2
		if err := json.Unmarshal(data, &z); err != nil {
			return err
		}
		e.Value = &z
	default:
		return fmt.Errorf("premint envelope: unknown type %q", hdr.Type)
	}
	return nil
}

// FromJSON parses a single gossip/storage JSON payload into its concrete
// premint variant, the Go equivalent of PremintTypes::from_json.
func FromJSON(data []byte) (Premint, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// ToJSON serializes a premint variant back to its canonical envelope form,
// the Go equivalent of PremintTypes::to_json.
func ToJSON(p Premint) ([]byte, error) {
	return json.Marshal(Envelope{Value: p})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
