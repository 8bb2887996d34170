package models

import (
	"encoding/json"
)

// NullableInt represents an int field that can distinguish between:
// - Field absent in JSON: Set=false, Valid=false, Value=0
// - Field present with null: Set=true, Valid=false, Value=0
// - Field present with value: Set=true, Valid=true, Value=the value
//
// This is needed because Go's standard JSON unmarshaling treats both
// "field absent" and "field: null" as nil for pointer types. The travel
// time override uses this: an explicit null clears the override so the
// estimated value applies again, while an absent field leaves it alone.
type NullableInt struct {
	Value int
	Valid bool // true if Value is not null
	Set   bool // true if field was present in JSON
}

// UnmarshalJSON implements custom JSON unmarshaling for NullableInt.
func (ni *NullableInt) UnmarshalJSON(data []byte) error {
	ni.Set = true // Field was present in JSON

	if string(data) == "null" {
		ni.Valid = false
		ni.Value = 0
		return nil
	}

	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ni.Value = v
	ni.Valid = true
	return nil
}

// MarshalJSON implements custom JSON marshaling for NullableInt.
func (ni NullableInt) MarshalJSON() ([]byte, error) {
	if !ni.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ni.Value)
}

// ToPtr converts NullableInt to *int for use with existing code.
// Returns nil if Valid is false, otherwise returns pointer to Value.
func (ni NullableInt) ToPtr() *int {
	if !ni.Valid {
		return nil
	}
	return &ni.Value
}
