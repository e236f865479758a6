package vo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rank bounds for sorted buckets.
const (
	MinRank = 1
	MaxRank = 5
)

// SortedDirName is the directory under the library root that holds the
// rating buckets.
const SortedDirName = "sorted"

var ErrInvalidLocation = errors.New("invalid location")

// Location is the bucket a photo lives in: the unrated base bucket or one of
// the sorted/1..sorted/5 rating buckets. The zero value is Base.
type Location struct {
	rank int
}

// Base is the bucket of unrated photos.
var Base = Location{}

// Sorted returns the rating bucket for rank. Ranks outside 1..5 are clamped.
func Sorted(rank int) Location {
	if rank < MinRank {
		rank = MinRank
	}
	if rank > MaxRank {
		rank = MaxRank
	}
	return Location{rank: rank}
}

// AllLocations returns every bucket, base first.
func AllLocations() []Location {
	return []Location{Base, Sorted(1), Sorted(2), Sorted(3), Sorted(4), Sorted(5)}
}

// ParseLocation parses both the persisted form ("base", "sorted/3") and the
// directory form used by clients ("", "sorted/3"). Legacy "photos/..." and
// "unsorted" spellings are accepted.
func ParseLocation(s string) (Location, error) {
	v := strings.Trim(strings.TrimSpace(s), "/")
	v = strings.TrimPrefix(v, "photos/")

	switch v {
	case "", "base", "unsorted", "photos":
		return Base, nil
	}

	rest, ok := strings.CutPrefix(v, SortedDirName+"/")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	rank, err := strconv.Atoi(rest)
	if err != nil || rank < MinRank || rank > MaxRank {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	return Location{rank: rank}, nil
}

// MustLocation parses s, panicking if invalid.
// Use only when the value is known to be valid.
func MustLocation(s string) Location {
	loc, err := ParseLocation(s)
	if err != nil {
		panic(err)
	}
	return loc
}

// String returns the persisted form: "base" or "sorted/N".
func (l Location) String() string {
	if l.rank == 0 {
		return "base"
	}
	return SortedDirName + "/" + strconv.Itoa(l.rank)
}

// Dir returns the bucket directory relative to the library root:
// "" for base, "sorted/N" otherwise.
func (l Location) Dir() string {
	if l.rank == 0 {
		return ""
	}
	return l.String()
}

// Rank returns 0 for base and 1..5 for sorted buckets.
func (l Location) Rank() int {
	return l.rank
}

// IsBase returns true for the unrated bucket.
func (l Location) IsBase() bool {
	return l.rank == 0
}

// IsSorted returns true for rating buckets.
func (l Location) IsSorted() bool {
	return l.rank != 0
}

// Equals returns true if both locations are the same bucket.
func (l Location) Equals(other Location) bool {
	return l.rank == other.rank
}

// Up returns the next higher rating bucket, clamped at 5.
func (l Location) Up() Location {
	return Sorted(l.rank + 1)
}

// Down returns the next lower rating bucket, clamped at 1.
func (l Location) Down() Location {
	return Sorted(l.rank - 1)
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(text []byte) error {
	parsed, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
