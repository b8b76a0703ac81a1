package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TargetID is a string-encoded entity identifier. Integer-valued ids are
// stored in their decimal form so mixed identifier spaces share one column.
//
// The zero value is the null id.
type TargetID struct {
	value string
	set   bool
}

// StringID returns a TargetID holding s verbatim.
func StringID(s string) TargetID {
	return TargetID{value: s, set: true}
}

// IntID returns the decimal TargetID for n.
func IntID(n uint64) TargetID {
	return TargetID{value: strconv.FormatUint(n, 10), set: true}
}

// NullID returns the null TargetID.
func NullID() TargetID {
	return TargetID{}
}

// ParseTargetID converts a scalar into a TargetID.
// Accepted: nil, string, TargetID, *TargetID and every Go integer type.
// Negative integers are rejected.
func ParseTargetID(v any) (TargetID, error) {
	switch val := v.(type) {
	case nil:
		return TargetID{}, nil
	case TargetID:
		return val, nil
	case *TargetID:
		if val == nil {
			return TargetID{}, nil
		}
		return *val, nil
	case string:
		return StringID(val), nil
	case uint64:
		return IntID(val), nil
	case uint:
		return IntID(uint64(val)), nil
	case uint32:
		return IntID(uint64(val)), nil
	case int:
		return signedID(int64(val))
	case int64:
		return signedID(val)
	case int32:
		return signedID(int64(val))
	default:
		return TargetID{}, fmt.Errorf("unsupported target id type %T", v)
	}
}

func signedID(n int64) (TargetID, error) {
	if n < 0 {
		return TargetID{}, fmt.Errorf("negative target id %d", n)
	}
	return IntID(uint64(n)), nil
}

// String returns the stored form, or "" for the null id.
func (id TargetID) String() string {
	return id.value
}

// IsNull reports whether no id was set.
func (id TargetID) IsNull() bool {
	return !id.set
}

// IsZero reports whether the id is null or the empty string.
func (id TargetID) IsZero() bool {
	return !id.set || id.value == ""
}

// Uint64 returns the integer value of a numeric id.
// The second result is false when the id does not satisfy IsNumericID or
// overflows 64 bits.
func (id TargetID) Uint64() (uint64, bool) {
	if !IsNumericID(id.value) {
		return 0, false
	}
	n, err := strconv.ParseUint(id.value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Equal compares ids by their stored form.
func (id TargetID) Equal(other TargetID) bool {
	return id.set == other.set && id.value == other.value
}

// Value returns the id as a SQL parameter: nil or the string form.
func (id TargetID) Value() any {
	if !id.set {
		return nil
	}
	return id.value
}

// MarshalJSON encodes the null id as null and everything else as a string.
func (id TargetID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts null, strings and non-negative integers.
func (id *TargetID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = TargetID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = StringID(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("target id: %w", err)
	}
	*id = IntID(n)
	return nil
}

// MarshalYAML encodes the id like MarshalJSON.
func (id TargetID) MarshalYAML() (any, error) {
	if !id.set {
		return nil, nil
	}
	return id.value, nil
}

// UnmarshalYAML accepts null, strings and integers.
func (id *TargetID) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*id = TargetID{}
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("target id: expected scalar, got kind %d", node.Kind)
	}
	*id = StringID(node.Value)
	return nil
}

// IsNumericID reports whether s consists of ASCII digits only.
//
// This is the classification every database dialect's shadow trigger
// implements (^[0-9]+$): no sign, no whitespace, no decimal point, and the
// empty string is not numeric.
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
