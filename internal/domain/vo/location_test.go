package vo

import (
	"errors"
	"testing"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in       string
		wantRank int
		wantErr  bool
	}{
		{"", 0, false},
		{"base", 0, false},
		{"unsorted", 0, false},
		{"photos/unsorted", 0, false},
		{"/", 0, false},
		{"sorted/1", 1, false},
		{"sorted/5", 5, false},
		{"/sorted/3/", 3, false},
		{"photos/sorted/2", 2, false},
		{"sorted/0", 0, true},
		{"sorted/6", 0, true},
		{"sorted/x", 0, true},
		{"sorted", 0, true},
		{"sorted/3/extra", 0, true},
		{"elsewhere", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocation(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLocation) {
					t.Fatalf("ParseLocation(%q) error = %v, want ErrInvalidLocation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocation(%q) error = %v", tt.in, err)
			}
			if got.Rank() != tt.wantRank {
				t.Errorf("Rank() = %d, want %d", got.Rank(), tt.wantRank)
			}
		})
	}
}

func TestLocation_Format(t *testing.T) {
	if Base.String() != "base" || Base.Dir() != "" {
		t.Errorf("Base formats as %q / %q", Base.String(), Base.Dir())
	}
	s := Sorted(3)
	if s.String() != "sorted/3" || s.Dir() != "sorted/3" {
		t.Errorf("Sorted(3) formats as %q / %q", s.String(), s.Dir())
	}

	for _, loc := range AllLocations() {
		back, err := ParseLocation(loc.String())
		if err != nil || !back.Equals(loc) {
			t.Errorf("round trip of %v = %v, %v", loc, back, err)
		}
		back, err = ParseLocation(loc.Dir())
		if err != nil || !back.Equals(loc) {
			t.Errorf("dir round trip of %v = %v, %v", loc, back, err)
		}
	}
}

func TestSorted_Clamps(t *testing.T) {
	if Sorted(0).Rank() != 1 {
		t.Error("Sorted(0) should clamp to 1")
	}
	if Sorted(9).Rank() != 5 {
		t.Error("Sorted(9) should clamp to 5")
	}
	if Sorted(5).Up().Rank() != 5 {
		t.Error("Up() from 5 should stay at 5")
	}
	if Sorted(1).Down().Rank() != 1 {
		t.Error("Down() from 1 should stay at 1")
	}
}

func TestLocation_Predicates(t *testing.T) {
	if !Base.IsBase() || Base.IsSorted() {
		t.Error("Base predicates wrong")
	}
	if Sorted(2).IsBase() || !Sorted(2).IsSorted() {
		t.Error("Sorted predicates wrong")
	}
	var zero Location
	if !zero.Equals(Base) {
		t.Error("zero Location should be Base")
	}
}

func TestLocation_Text(t *testing.T) {
	var loc Location
	if err := loc.UnmarshalText([]byte("sorted/4")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if loc.Rank() != 4 {
		t.Errorf("Rank() = %d, want 4", loc.Rank())
	}
	if err := loc.UnmarshalText([]byte("sorted/9")); err == nil {
		t.Error("UnmarshalText(sorted/9) expected error")
	}
}
