package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind tags the active member of a Value.
type ValueKind string

const (
	KindNull    ValueKind = "null"
	KindString  ValueKind = "string"
	KindNumber  ValueKind = "number"
	KindBoolean ValueKind = "boolean"
	KindTuple   ValueKind = "tuple"
	KindDevice  ValueKind = "device"
)

// Value is the tagged union held by variables and process arguments.
// The zero Value is null.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Tuple  []float64
	Device int
}

func NullValue() Value            { return Value{Kind: KindNull} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBoolean, Bool: b} }
func DeviceValue(id int) Value    { return Value{Kind: KindDevice, Device: id} }

func TupleValue(xs ...float64) Value {
	return Value{Kind: KindTuple, Tuple: append([]float64{}, xs...)}
}

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool {
	return v.Kind == "" || v.Kind == KindNull
}

// AsInt returns the number as an int when it is integral and fits in
// 32 bits.
func (v Value) AsInt() (int, bool) {
	if v.Kind != KindNumber || v.Num != math.Trunc(v.Num) {
		return 0, false
	}
	if v.Num < math.MinInt32 || v.Num > math.MaxInt32 {
		return 0, false
	}
	return int(v.Num), true
}

// AsVec2 returns a two-element tuple as a Vec2.
func (v Value) AsVec2() (Vec2, bool) {
	if v.Kind != KindTuple || len(v.Tuple) != 2 {
		return Vec2{}, false
	}
	return Vec2{v.Tuple[0], v.Tuple[1]}, true
}

func (v Value) Clone() Value {
	out := v
	if v.Tuple != nil {
		out.Tuple = append([]float64{}, v.Tuple...)
	}
	return out
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindTuple:
		return fmt.Sprintf("%v", v.Tuple)
	case KindDevice:
		return fmt.Sprintf("device(%d)", v.Device)
	default:
		return "null"
	}
}

type deviceRef struct {
	Device *int `json:"device"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindTuple:
		if v.Tuple == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Tuple)
	case KindDevice:
		id := v.Device
		return json.Marshal(deviceRef{Device: &id})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string, number, boolean, null, an array of
// numbers, or {"device": <int>}.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case 'n':
		*v = NullValue()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	case '[':
		var xs []float64
		if err := json.Unmarshal(data, &xs); err != nil {
			return fmt.Errorf("tuple values must be numbers: %w", err)
		}
		*v = TupleValue(xs...)
		return nil
	case '{':
		var ref deviceRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		if ref.Device == nil {
			return fmt.Errorf("object values must be a device reference")
		}
		*v = DeviceValue(*ref.Device)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
		return nil
	}
}
