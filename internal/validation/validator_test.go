package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Name     string  `json:"name" validate:"required,motionname"`
	Haptics  string  `json:"haptics" validate:"omitempty,haptics"`
	Behavior string  `json:"behavior" validate:"omitempty,behavior"`
	Scale    float64 `json:"scale" validate:"gte=0,lte=1"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		in        sample
		wantField string
		wantTag   string
	}{
		{name: "valid", in: sample{Name: "heave up_1", Haptics: "010:255", Behavior: "append", Scale: 1}},
		{name: "missing name", in: sample{}, wantField: "name", wantTag: "required"},
		{name: "path in name", in: sample{Name: "../etc"}, wantField: "name", wantTag: "motionname"},
		{name: "short haptics", in: sample{Name: "a", Haptics: "10:20"}, wantField: "haptics", wantTag: "haptics"},
		{name: "unknown behavior", in: sample{Name: "a", Behavior: "loop"}, wantField: "behavior", wantTag: "behavior"},
		{name: "scale range", in: sample{Name: "a", Scale: 1.5}, wantField: "scale", wantTag: "lte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.in)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestMissingFields(t *testing.T) {
	if MissingFields() != nil {
		t.Error("MissingFields() with no fields should be nil")
	}

	verr := MissingFields("motion", "scale")
	if verr == nil {
		t.Fatal("MissingFields() = nil")
	}
	fields := verr.Fields()
	if len(fields) != 2 || fields[0]["field"] != "motion" || fields[1]["tag"] != "required" {
		t.Errorf("Fields() = %v", fields)
	}
	if !strings.Contains(verr.Error(), "scale is required") {
		t.Errorf("Error() = %q", verr.Error())
	}
}

func TestIsMotionName(t *testing.T) {
	long := strings.Repeat("a", 101)
	for name, want := range map[string]bool{
		"nod_1":     true,
		"heave up":  true,
		"":          false,
		"a/b":       false,
		"bump.json": false,
		long:        false,
	} {
		if got := IsMotionName(name); got != want {
			t.Errorf("IsMotionName(%q) = %v, want %v", name, got, want)
		}
	}
}
