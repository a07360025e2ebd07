// Package ldvalue provides the Value type, an immutable representation of any
// JSON value. Feature flag variations and custom user attributes are always
// represented as Values, so flag data can be parsed once and then evaluated
// without further type inspection.
package ldvalue

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValueType indicates which JSON type is contained in a Value.
type ValueType int

const (
	// NullType describes a null value.
	NullType ValueType = iota
	// BoolType describes a boolean value.
	BoolType
	// NumberType describes a numeric value. JSON does not distinguish
	// between integers and floats.
	NumberType
	// StringType describes a string value.
	StringType
	// ArrayType describes an array value.
	ArrayType
	// ObjectType describes an object (map) value.
	ObjectType
)

// String returns the name of the value type.
func (t ValueType) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case NumberType:
		return "number"
	case StringType:
		return "string"
	case ArrayType:
		return "array"
	case ObjectType:
		return "object"
	default:
		return "unknown"
	}
}

// Value represents any of the data types supported by JSON. The zero value of
// Value is a JSON null.
//
// Values are immutable by convention: the arrays and maps inside a Value are
// never modified after construction, so Values may be shared freely between
// goroutines.
type Value struct {
	valueType   ValueType
	boolValue   bool
	numberValue float64
	stringValue string
	arrayValue  []Value
	objectValue map[string]Value
}

// Null returns a null Value. This is the same as the zero value of Value.
func Null() Value {
	return Value{}
}

// Bool returns a boolean Value.
func Bool(value bool) Value {
	return Value{valueType: BoolType, boolValue: value}
}

// Int returns a numeric Value from an integer.
func Int(value int) Value {
	return Float64(float64(value))
}

// Float64 returns a numeric Value.
func Float64(value float64) Value {
	return Value{valueType: NumberType, numberValue: value}
}

// String returns a string Value.
func String(value string) Value {
	return Value{valueType: StringType, stringValue: value}
}

// CopyArbitraryValue converts an arbitrary interface{} value to a Value,
// deep-copying any arrays and maps. Numeric types are normalized to float64.
// Types with no JSON equivalent become null.
func CopyArbitraryValue(value interface{}) Value {
	switch o := value.(type) {
	case nil:
		return Null()
	case Value:
		return o
	case bool:
		return Bool(o)
	case int:
		return Float64(float64(o))
	case int8:
		return Float64(float64(o))
	case int16:
		return Float64(float64(o))
	case int32:
		return Float64(float64(o))
	case int64:
		return Float64(float64(o))
	case uint:
		return Float64(float64(o))
	case uint8:
		return Float64(float64(o))
	case uint16:
		return Float64(float64(o))
	case uint32:
		return Float64(float64(o))
	case uint64:
		return Float64(float64(o))
	case float32:
		return Float64(float64(o))
	case float64:
		return Float64(o)
	case string:
		return String(o)
	case []interface{}:
		a := make([]Value, 0, len(o))
		for _, e := range o {
			a = append(a, CopyArbitraryValue(e))
		}
		return Value{valueType: ArrayType, arrayValue: a}
	case map[string]interface{}:
		m := make(map[string]Value, len(o))
		for k, v := range o {
			m[k] = CopyArbitraryValue(v)
		}
		return Value{valueType: ObjectType, objectValue: m}
	case json.RawMessage:
		var v Value
		if err := json.Unmarshal(o, &v); err == nil {
			return v
		}
		return Null()
	default:
		return Null()
	}
}

// ArrayBuilder is a builder created by ArrayBuild(), for constructing arrays.
type ArrayBuilder struct {
	output []Value
}

// ArrayBuild creates a builder for an array Value.
func ArrayBuild() *ArrayBuilder {
	return &ArrayBuilder{}
}

// ArrayOf creates an array Value from the given elements.
func ArrayOf(items ...Value) Value {
	a := make([]Value, len(items))
	copy(a, items)
	return Value{valueType: ArrayType, arrayValue: a}
}

// Add appends an element to the array.
func (b *ArrayBuilder) Add(value Value) *ArrayBuilder {
	b.output = append(b.output, value)
	return b
}

// Build creates a Value from the elements added so far.
func (b *ArrayBuilder) Build() Value {
	a := make([]Value, len(b.output))
	copy(a, b.output)
	return Value{valueType: ArrayType, arrayValue: a}
}

// ObjectBuilder is a builder created by ObjectBuild(), for constructing objects.
type ObjectBuilder struct {
	output map[string]Value
}

// ObjectBuild creates a builder for an object Value.
func ObjectBuild() *ObjectBuilder {
	return &ObjectBuilder{output: make(map[string]Value)}
}

// Set sets a key-value pair in the object.
func (b *ObjectBuilder) Set(key string, value Value) *ObjectBuilder {
	b.output[key] = value
	return b
}

// Build creates a Value from the key-value pairs set so far.
func (b *ObjectBuilder) Build() Value {
	m := make(map[string]Value, len(b.output))
	for k, v := range b.output {
		m[k] = v
	}
	return Value{valueType: ObjectType, objectValue: m}
}

// Type returns the ValueType of the Value.
func (v Value) Type() ValueType {
	return v.valueType
}

// IsNull returns true if the Value is a null.
func (v Value) IsNull() bool {
	return v.valueType == NullType
}

// IsBool returns true if the Value is a boolean.
func (v Value) IsBool() bool {
	return v.valueType == BoolType
}

// IsNumber returns true if the Value is numeric.
func (v Value) IsNumber() bool {
	return v.valueType == NumberType
}

// IsInt returns true if the Value is numeric and has no fractional component.
func (v Value) IsInt() bool {
	return v.valueType == NumberType && v.numberValue == float64(int(v.numberValue))
}

// IsString returns true if the Value is a string.
func (v Value) IsString() bool {
	return v.valueType == StringType
}

// BoolValue returns the Value as a bool, or false if it is not a boolean.
func (v Value) BoolValue() bool {
	return v.valueType == BoolType && v.boolValue
}

// IntValue returns the Value as an int, truncating toward zero; it is zero if
// the Value is not numeric.
func (v Value) IntValue() int {
	return int(v.Float64Value())
}

// Float64Value returns the Value as a float64, or zero if it is not numeric.
func (v Value) Float64Value() float64 {
	if v.valueType == NumberType {
		return v.numberValue
	}
	return 0
}

// StringValue returns the Value as a string, or an empty string if it is not
// a string. This is not the same as String(), which returns a JSON
// representation of any value type.
func (v Value) StringValue() string {
	if v.valueType == StringType {
		return v.stringValue
	}
	return ""
}

// Count returns the number of elements in an array or object; zero for all
// other types.
func (v Value) Count() int {
	switch v.valueType {
	case ArrayType:
		return len(v.arrayValue)
	case ObjectType:
		return len(v.objectValue)
	}
	return 0
}

// GetByIndex gets an element of an array by index, returning a null Value if
// the index is out of range or the Value is not an array.
func (v Value) GetByIndex(index int) Value {
	if v.valueType == ArrayType && index >= 0 && index < len(v.arrayValue) {
		return v.arrayValue[index]
	}
	return Null()
}

// TryGetByKey gets a property of an object by key; the second return value is
// false if the key was not found or the Value is not an object.
func (v Value) TryGetByKey(name string) (Value, bool) {
	if v.valueType == ObjectType {
		ret, ok := v.objectValue[name]
		return ret, ok
	}
	return Null(), false
}

// GetByKey gets a property of an object by key, returning a null Value if the
// key was not found or the Value is not an object.
func (v Value) GetByKey(name string) Value {
	ret, _ := v.TryGetByKey(name)
	return ret
}

// Keys returns the property names of an object, in no particular order; nil
// for all other types.
func (v Value) Keys() []string {
	if v.valueType != ObjectType {
		return nil
	}
	ret := make([]string, 0, len(v.objectValue))
	for k := range v.objectValue {
		ret = append(ret, k)
	}
	return ret
}

// AsArbitraryValue converts the Value back to an arbitrary interface{} value:
// nil, bool, float64, string, []interface{}, or map[string]interface{}.
func (v Value) AsArbitraryValue() interface{} {
	switch v.valueType {
	case NullType:
		return nil
	case BoolType:
		return v.boolValue
	case NumberType:
		return v.numberValue
	case StringType:
		return v.stringValue
	case ArrayType:
		ret := make([]interface{}, 0, len(v.arrayValue))
		for _, e := range v.arrayValue {
			ret = append(ret, e.AsArbitraryValue())
		}
		return ret
	case ObjectType:
		ret := make(map[string]interface{}, len(v.objectValue))
		for k, e := range v.objectValue {
			ret[k] = e.AsArbitraryValue()
		}
		return ret
	}
	return nil
}

// Equal tests whether two Values are structurally equal. Arrays are equal if
// they have equal elements in the same order; objects are equal if they have
// the same keys with equal values.
func (v Value) Equal(other Value) bool {
	if v.valueType != other.valueType {
		return false
	}
	switch v.valueType {
	case NullType:
		return true
	case BoolType:
		return v.boolValue == other.boolValue
	case NumberType:
		return v.numberValue == other.numberValue
	case StringType:
		return v.stringValue == other.stringValue
	case ArrayType:
		if len(v.arrayValue) != len(other.arrayValue) {
			return false
		}
		for i, e := range v.arrayValue {
			if !e.Equal(other.arrayValue[i]) {
				return false
			}
		}
		return true
	case ObjectType:
		if len(v.objectValue) != len(other.objectValue) {
			return false
		}
		for k, e := range v.objectValue {
			e1, ok := other.objectValue[k]
			if !ok || !e.Equal(e1) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the JSON representation of the Value, implementing
// fmt.Stringer.
func (v Value) String() string {
	return v.JSONString()
}

// JSONString returns the JSON representation of the Value.
func (v Value) JSONString() string {
	switch v.valueType {
	case NullType:
		return "null"
	case BoolType:
		if v.boolValue {
			return "true"
		}
		return "false"
	case NumberType:
		if v.IsInt() {
			return strconv.Itoa(int(v.numberValue))
		}
		return strconv.FormatFloat(v.numberValue, 'f', -1, 64)
	default:
		bytes, _ := json.Marshal(v)
		return string(bytes)
	}
}

// MarshalJSON converts the Value to its JSON representation, implementing
// json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.valueType {
	case NullType:
		return []byte("null"), nil
	case BoolType:
		return json.Marshal(v.boolValue)
	case NumberType:
		return json.Marshal(v.numberValue)
	case StringType:
		return json.Marshal(v.stringValue)
	case ArrayType:
		if v.arrayValue == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arrayValue)
	case ObjectType:
		if v.objectValue == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.objectValue)
	}
	return nil, nil
}

// UnmarshalJSON parses a Value from JSON, implementing json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = Null()
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = CopyArbitraryValue(raw)
	return nil
}
