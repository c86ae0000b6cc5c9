package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalValue marshals a Value to JSON. Sets become arrays, Null becomes
// null. Infinite numbers are encoded as the strings "Infinity" and
// "-Infinity" so interval keys survive a round trip.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(val))
	case Number:
		f := float64(val)
		if math.IsNaN(f) {
			return nil, fmt.Errorf("NaN is not a valid value")
		}
		if math.IsInf(f, 0) {
			return json.Marshal(formatNumber(f))
		}
		return []byte(formatNumber(f)), nil
	case String:
		return json.Marshal(string(val))
	case Set:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, m := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(m)
			if err != nil {
				return nil, fmt.Errorf("set[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes JSON into a Value. Arrays become normalized sets;
// objects are rejected because the value model is flat.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts a decoded Go value (from encoding/json, yaml.v3 or CUE)
// into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case float64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", val, err)
		}
		return Number(f), nil
	case []any:
		members := make([]Value, 0, len(val))
		for i, elem := range val {
			m, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if m.Kind() == KindSet {
				return nil, fmt.Errorf("[%d]: nested sets are not allowed", i)
			}
			members = append(members, m)
		}
		return NewSet(members...), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Value back into plain Go values (nil, bool, float64,
// string, []any).
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Number:
		return float64(val)
	case String:
		return string(val)
	case Set:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = ToGo(m)
		}
		return out
	default:
		return nil
	}
}

// Box wraps a Value so it can be embedded in structs that use
// encoding/json.
type Box struct {
	Value Value
}

// MarshalJSON implements json.Marshaler.
func (b Box) MarshalJSON() ([]byte, error) {
	return MarshalValue(b.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Box) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	b.Value = v
	return nil
}
