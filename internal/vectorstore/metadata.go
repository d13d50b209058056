// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Kind is the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a scalar metadata value. Every backend can store and filter on
// these; nested structures are not representable.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(s string) Value  { return Value{kind: KindString, s: s} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Null() Value            { return Value{} }
func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }

// AsFloat also accepts ints, since JSON round trips do not keep the
// distinction for whole floats.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Any returns the value as a plain Go scalar, or nil.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// Equal compares kind and value. Ints and floats holding the same number
// are equal.
func (v Value) Equal(o Value) bool {
	if a, ok := v.AsFloat(); ok {
		b, ok := o.AsFloat()
		return ok && a == b
	}
	return v == o
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return nil, fmt.Errorf("metadata float %v is not representable in JSON", v.f)
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromScalar(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromScalar converts a Go scalar to a Value. Maps, slices and other
// composite types are rejected.
func FromScalar(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata integer %d overflows int64", x)
		}
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata integer %d overflows int64", x)
		}
		return Int(int64(x)), nil
	case float32:
		return checkFloat(float64(x))
	case float64:
		return checkFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("metadata number %q: %w", x, err)
		}
		return checkFloat(f)
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata type %T", raw)
	}
}

func checkFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("metadata float %v is not finite", f)
	}
	return Float(f), nil
}

// Metadata is a flat map of scalar values.
type Metadata map[string]Value

// Clone returns a copy safe to modify.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the metadata as plain Go values, for JSON encoding by callers
// that do not know Value.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}

// FromAny keeps the scalar entries of raw and reports the rest. The issues
// list is empty when nothing was dropped.
func FromAny(raw map[string]any) (Metadata, []string) {
	out := make(Metadata, len(raw))
	issues := ValidateMetadata(raw)
	for k, v := range raw {
		if k == "" {
			continue
		}
		val, err := FromScalar(v)
		if err != nil {
			continue
		}
		out[k] = val
	}
	return out, issues
}

// ParseMetadata decodes a JSON object of scalars.
func ParseMetadata(data []byte) (Metadata, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Metadata{}, nil
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreMetadataInvalid, "decoding metadata")
	}
	if md == nil {
		md = Metadata{}
	}
	return md, nil
}
