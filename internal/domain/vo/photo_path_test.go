package vo

import (
	"errors"
	"testing"
)

func TestNewPhotoPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"a.jpg", "a.jpg", nil},
		{"trips/2019/a.jpg", "trips/2019/a.jpg", nil},
		{"trips//a.jpg", "trips/a.jpg", nil},
		{"./a.jpg", "a.jpg", nil},
		{"", "", ErrEmptyPath},
		{".", "", ErrEmptyPath},
		{"../a.jpg", "", ErrInvalidPath},
		{"trips/../../a.jpg", "", ErrInvalidPath},
		{"/etc/passwd", "", ErrInvalidPath},
		{"trips\\..\\a.jpg", "", ErrInvalidPath},
		{"a\x00.jpg", "", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewPhotoPath(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewPhotoPath(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPhotoPath(%q) error = %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPG", "b.jpeg", "c.PNG", "d.gif", "e.bmp", "x/y/z.Jpeg"} {
		if !IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = false", name)
		}
	}
	for _, name := range []string{"a.txt", "a.heic", "jpg", "a.jpg.tmp", ".DS_Store"} {
		if IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = true", name)
		}
	}
}

func TestPhotoPath_Parts(t *testing.T) {
	p := MustPhotoPath("trips/2019/a.jpg")
	if p.Folder() != "trips/2019" {
		t.Errorf("Folder() = %q", p.Folder())
	}
	if p.FileName() != "a.jpg" {
		t.Errorf("FileName() = %q", p.FileName())
	}
	if p.Extension() != ".jpg" {
		t.Errorf("Extension() = %q", p.Extension())
	}
	if MustPhotoPath("a.jpg").Folder() != "" {
		t.Error("top-level file should have empty folder")
	}
	if got := p.InBucket(Sorted(2)); got != "sorted/2/trips/2019/a.jpg" {
		t.Errorf("InBucket() = %q", got)
	}
	if got := p.InBucket(Base); got != "trips/2019/a.jpg" {
		t.Errorf("InBucket(Base) = %q", got)
	}
}

func TestSplitBucket(t *testing.T) {
	tests := []struct {
		in       string
		wantLoc  Location
		wantPath string
	}{
		{"a.jpg", Base, "a.jpg"},
		{"trips/a.jpg", Base, "trips/a.jpg"},
		{"sorted/3/a.jpg", Sorted(3), "a.jpg"},
		{"sorted/5/trips/a.jpg", Sorted(5), "trips/a.jpg"},
		{"sorted/9/a.jpg", Base, "sorted/9/a.jpg"},
	}

	for _, tt := range tests {
		loc, p := SplitBucket(MustPhotoPath(tt.in))
		if !loc.Equals(tt.wantLoc) || p.String() != tt.wantPath {
			t.Errorf("SplitBucket(%q) = %v, %q; want %v, %q", tt.in, loc, p, tt.wantLoc, tt.wantPath)
		}
	}
}

func TestPhotoPath_BelongsTo(t *testing.T) {
	tests := []struct {
		in   string
		loc  Location
		want bool
	}{
		{"a.jpg", Base, true},
		{"trips/2019/a.JPG", Base, true},
		{"a.jpg", Sorted(3), true},
		{"sorted/3/b.jpg", Base, false},
		{"sorted/a.jpg", Base, false},
		{"sorted/3/b.jpg", Sorted(4), true},
		{"unsorted/b.jpg", Base, true},
		{".photo-triage.db", Base, false},
		{".thumbnails/ab.jpg", Base, false},
		{"trips/.hidden/a.jpg", Sorted(2), false},
		{"trips/.a.jpg", Base, false},
		{"notes.txt", Base, false},
		{"trips", Sorted(1), false},
	}

	for _, tt := range tests {
		if got := MustPhotoPath(tt.in).BelongsTo(tt.loc); got != tt.want {
			t.Errorf("BelongsTo(%q, %v) = %v, want %v", tt.in, tt.loc, got, tt.want)
		}
	}
}
