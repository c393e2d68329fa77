package stats

import (
	"testing"
)

func sequence(n int, base float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = base + float64(i)
	}
	return s
}

func TestAlignTruncatesToShorter(t *testing.T) {
	sa := NewSequenceAligner(512)
	original := sequence(10, 100)
	user := sequence(7, 200)

	points := sa.Align(original, user, 3, 3)
	if len(points) != 7 {
		t.Fatalf("got %d points, want 7", len(points))
	}
	for i, p := range points {
		if p.Original != original[i] || p.User != user[i] {
			t.Errorf("point %d = %+v", i, p)
		}
	}

	// symmetric when the user side is longer
	if n := len(sa.Align(user, original, 3, 3)); n != 7 {
		t.Errorf("swapped: got %d points, want 7", n)
	}
}

func TestAlignEmpty(t *testing.T) {
	sa := NewSequenceAligner(512)

	tests := []struct {
		name           string
		original, user []float64
	}{
		{"both nil", nil, nil},
		{"both empty", []float64{}, []float64{}},
		{"original empty", nil, sequence(5, 0)},
		{"user empty", sequence(5, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := sa.Align(tt.original, tt.user, 3, 3)
			if points == nil || len(points) != 0 {
				t.Errorf("expected empty non-nil result, got %#v", points)
			}
		})
	}
}

func TestAlignTimeLabels(t *testing.T) {
	sa := NewSequenceAligner(512)

	// 10 windows spread over the longer 120s recording: 12s per window
	points := sa.Align(sequence(10, 0), sequence(12, 0), 120, 30)
	want := []string{
		"0 min 0 sec", "0 min 12 sec", "0 min 24 sec", "0 min 36 sec", "0 min 48 sec",
		"1 min 0 sec", "1 min 12 sec", "1 min 24 sec", "1 min 36 sec", "1 min 48 sec",
	}
	for i, p := range points {
		if p.Time != want[i] {
			t.Errorf("point %d: got %q, want %q", i, p.Time, want[i])
		}
	}
}

func TestAlignLabelIndependentOfWindowSize(t *testing.T) {
	a := NewSequenceAligner(512).Align(sequence(4, 0), sequence(4, 0), 8, 2)
	b := NewSequenceAligner(2048).Align(sequence(4, 0), sequence(4, 0), 8, 2)
	for i := range a {
		if a[i].Time != b[i].Time {
			t.Errorf("point %d: %q vs %q", i, a[i].Time, b[i].Time)
		}
	}
	if a[3].Time != "0 min 6 sec" {
		t.Errorf("last label = %q, want 0 min 6 sec", a[3].Time)
	}
}

func TestAlignZeroDuration(t *testing.T) {
	points := NewSequenceAligner(512).Align(sequence(3, 0), sequence(3, 0), 0, 0)
	for i, p := range points {
		if p.Time != "0 min 0 sec" {
			t.Errorf("point %d: got %q", i, p.Time)
		}
	}
}

func TestEffectiveRate(t *testing.T) {
	sa := NewSequenceAligner(512)
	if got := sa.EffectiveRate(100, 2); got != 25600 {
		t.Errorf("EffectiveRate(100, 2) = %v, want 25600", got)
	}
	if got := sa.EffectiveRate(0, 2); got != 0 {
		t.Errorf("EffectiveRate(0, 2) = %v, want 0", got)
	}
	if got := sa.EffectiveRate(10, -1); got != 0 {
		t.Errorf("EffectiveRate(10, -1) = %v, want 0", got)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0 min 0 sec"},
		{0.4, "0 min 0 sec"},
		{0.5, "0 min 1 sec"},
		{59.4, "0 min 59 sec"},
		{59.6, "0 min 60 sec"},
		{60, "1 min 0 sec"},
		{125.2, "2 min 5 sec"},
		{3600, "60 min 0 sec"},
		{-3, "0 min 0 sec"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.seconds); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
