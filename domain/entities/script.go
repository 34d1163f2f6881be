package entities

import (
	"encoding/json"
	"fmt"
)

// ScriptKind discriminates ScriptValue.
type ScriptKind string

const (
	ScriptUndefined ScriptKind = "undefined"
	ScriptNull      ScriptKind = "null"
	ScriptNumber    ScriptKind = "number"
	ScriptString    ScriptKind = "string"
	ScriptBuffer    ScriptKind = "buffer"
	ScriptFunction  ScriptKind = "function"
	ScriptObject    ScriptKind = "object"
	// ScriptAny is only used in parameter lists and accepts every kind.
	ScriptAny ScriptKind = "any"
)

// ScriptValue is a value as seen by the script engine.
type ScriptValue struct {
	obj  any
	str  string
	buf  EngineBuffer
	num  float64
	fn   uint64
	kind ScriptKind
}

// Undefined returns the undefined value.
func Undefined() ScriptValue { return ScriptValue{kind: ScriptUndefined} }

// Null returns the null value.
func Null() ScriptValue { return ScriptValue{kind: ScriptNull} }

// Number returns a numeric value.
func Number(n float64) ScriptValue { return ScriptValue{kind: ScriptNumber, num: n} }

// String returns a string value.
func String(s string) ScriptValue { return ScriptValue{kind: ScriptString, str: s} }

// Buffer returns an engine buffer value.
func Buffer(b EngineBuffer) ScriptValue { return ScriptValue{kind: ScriptBuffer, buf: b} }

// Function returns a reference to a script function by engine identifier.
func Function(id uint64) ScriptValue { return ScriptValue{kind: ScriptFunction, fn: id} }

// JSONObject wraps an arbitrary JSON-compatible value.
func JSONObject(v any) ScriptValue { return ScriptValue{kind: ScriptObject, obj: v} }

// Kind returns the discriminator. The zero ScriptValue is undefined.
func (v ScriptValue) Kind() ScriptKind {
	if v.kind == "" {
		return ScriptUndefined
	}
	return v.kind
}

// AsNumber returns the numeric payload.
func (v ScriptValue) AsNumber() (float64, bool) { return v.num, v.kind == ScriptNumber }

// AsString returns the string payload.
func (v ScriptValue) AsString() (string, bool) { return v.str, v.kind == ScriptString }

// AsBuffer returns the buffer payload.
func (v ScriptValue) AsBuffer() (EngineBuffer, bool) { return v.buf, v.kind == ScriptBuffer }

// AsFunction returns the function identifier.
func (v ScriptValue) AsFunction() (uint64, bool) { return v.fn, v.kind == ScriptFunction }

// AsObject returns the JSON payload.
func (v ScriptValue) AsObject() (any, bool) { return v.obj, v.kind == ScriptObject }

// scriptValueWire is the JSON form used at the WASM boundary.
type scriptValueWire struct {
	Kind     ScriptKind      `json:"kind"`
	Number   *float64        `json:"number,omitempty"`
	String   *string         `json:"string,omitempty"`
	Buffer   []byte          `json:"buffer,omitempty"`
	Function uint64          `json:"function,omitempty"`
	Object   json.RawMessage `json:"object,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v ScriptValue) MarshalJSON() ([]byte, error) {
	w := scriptValueWire{Kind: v.Kind()}
	switch w.Kind {
	case ScriptNumber:
		n := v.num
		w.Number = &n
	case ScriptString:
		s := v.str
		w.String = &s
	case ScriptBuffer:
		w.Buffer = v.buf.Bytes()
	case ScriptFunction:
		w.Function = v.fn
	case ScriptObject:
		raw, err := json.Marshal(v.obj)
		if err != nil {
			return nil, fmt.Errorf("marshal object value: %w", err)
		}
		w.Object = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *ScriptValue) UnmarshalJSON(data []byte) error {
	var w scriptValueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", ScriptUndefined:
		*v = Undefined()
	case ScriptNull:
		*v = Null()
	case ScriptNumber:
		if w.Number == nil {
			return fmt.Errorf("number value missing payload")
		}
		*v = Number(*w.Number)
	case ScriptString:
		if w.String == nil {
			return fmt.Errorf("string value missing payload")
		}
		*v = String(*w.String)
	case ScriptBuffer:
		*v = Buffer(NewEngineBuffer(w.Buffer))
	case ScriptFunction:
		*v = Function(w.Function)
	case ScriptObject:
		var obj any
		if len(w.Object) > 0 {
			if err := json.Unmarshal(w.Object, &obj); err != nil {
				return fmt.Errorf("object value: %w", err)
			}
		}
		*v = JSONObject(obj)
	default:
		return fmt.Errorf("unknown script value kind %q", w.Kind)
	}
	return nil
}
