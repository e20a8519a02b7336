package ranges

import "testing"

func TestOverlaps(t *testing.T) {
	a := IndexedRange{File: "f.go", Start: 10, Extent: 5}
	b := IndexedRange{File: "f.go", Start: 14, Extent: 5}
	if !a.Overlaps(b) {
		t.Fatal("expected overlapping ranges to overlap")
	}

	c := IndexedRange{File: "f.go", Start: 15, Extent: 5}
	if a.Overlaps(c) {
		t.Fatal("expected adjacent ranges not to overlap")
	}

	d := IndexedRange{File: "other.go", Start: 10, Extent: 5}
	if a.Overlaps(d) {
		t.Fatal("expected ranges in different files not to overlap")
	}
}

func TestEmptyAndEnd(t *testing.T) {
	insertion := IndexedRange{Start: 42, Extent: 0}
	if !insertion.Empty() {
		t.Fatal("expected zero-extent range to be empty")
	}
	if insertion.End() != 42 {
		t.Fatalf("End() = %d, want 42", insertion.End())
	}

	span := IndexedRange{Start: 1, Extent: 10}
	if span.Empty() {
		t.Fatal("expected nonzero-extent range not to be empty")
	}
	if span.End() != 11 {
		t.Fatalf("End() = %d, want 11", span.End())
	}
}

func TestFormattedRange(t *testing.T) {
	r := IndexedRange{Start: 3, Extent: 7}
	if got, want := r.FormattedRange(), "3,+7"; got != want {
		t.Fatalf("FormattedRange() = %q, want %q", got, want)
	}
}
