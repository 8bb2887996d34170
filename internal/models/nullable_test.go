package models

import (
	"encoding/json"
	"testing"
)

func TestNullableInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantSet   bool
		wantValid bool
		wantValue int
	}{
		{
			name:      "field present with value",
			json:      `{"travel_time_minutes": 25}`,
			wantSet:   true,
			wantValid: true,
			wantValue: 25,
		},
		{
			name:      "field present with null value",
			json:      `{"travel_time_minutes": null}`,
			wantSet:   true,
			wantValid: false,
			wantValue: 0,
		},
		{
			name:      "field absent",
			json:      `{}`,
			wantSet:   false,
			wantValid: false,
			wantValue: 0,
		},
		{
			name:      "field present with zero",
			json:      `{"travel_time_minutes": 0}`,
			wantSet:   true,
			wantValid: true,
			wantValue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result struct {
				TravelTimeMinutes NullableInt `json:"travel_time_minutes"`
			}
			err := json.Unmarshal([]byte(tt.json), &result)
			if err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}

			if result.TravelTimeMinutes.Set != tt.wantSet {
				t.Errorf("Set = %v, want %v", result.TravelTimeMinutes.Set, tt.wantSet)
			}
			if result.TravelTimeMinutes.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", result.TravelTimeMinutes.Valid, tt.wantValid)
			}
			if result.TravelTimeMinutes.Value != tt.wantValue {
				t.Errorf("Value = %d, want %d", result.TravelTimeMinutes.Value, tt.wantValue)
			}
		})
	}
}

func TestNullableInt_ToPtr(t *testing.T) {
	valid := NullableInt{Value: 10, Valid: true, Set: true}
	if p := valid.ToPtr(); p == nil || *p != 10 {
		t.Errorf("ToPtr() = %v, want pointer to 10", p)
	}

	null := NullableInt{Set: true}
	if p := null.ToPtr(); p != nil {
		t.Errorf("ToPtr() = %v, want nil for null value", p)
	}
}

func TestNullableInt_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(NullableInt{Value: 7, Valid: true, Set: true})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(out) != "7" {
		t.Errorf("Marshal = %s, want 7", out)
	}

	out, err = json.Marshal(NullableInt{Set: true})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(out) != "null" {
		t.Errorf("Marshal = %s, want null", out)
	}
}
