package window

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWindow_Accept(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		at     int64
		want   bool
	}{
		{"first positive", 1.0, 100, true},
		{"zero rejected", 0, 200, false},
		{"negative rejected", -1, 200, false},
		{"duplicate timestamp rejected", 2.0, 100, false},
		{"older timestamp rejected", 2.0, 50, false},
		{"newer accepted", 2.0, 101, true},
	}

	w := New(time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Accept(tt.amount, at(tt.at)); got != tt.want {
				t.Errorf("Accept(%v, %d) = %v, want %v", tt.amount, tt.at, got, tt.want)
			}
		})
	}

	if got := w.Evaluate(at(150)); !approx(got, 3.0) {
		t.Errorf("Evaluate() = %v, want 3.0", got)
	}
	if !w.LastUpdate().Equal(at(101)) {
		t.Errorf("LastUpdate() = %v, want 101", w.LastUpdate())
	}
}

func TestWindow_EvaluateBoundary(t *testing.T) {
	w := New(60 * time.Second)
	w.Accept(1.0, at(100))

	if got := w.Evaluate(at(160)); got != 1.0 {
		t.Errorf("entry exactly at cutoff: Evaluate() = %v, want 1.0", got)
	}
	if got := w.Evaluate(at(161)); got != 0 {
		t.Errorf("entry past cutoff: Evaluate() = %v, want 0", got)
	}
	if w.Len() != 0 {
		t.Error("stale entry should have been purged")
	}
	// Eviction does not reopen the door to older deltas.
	if w.Accept(1.0, at(99)) {
		t.Error("Accept() older than last update after eviction should be rejected")
	}
}

func TestWindow_RestoreRoundTrip(t *testing.T) {
	src := New(60 * time.Second)
	src.Accept(1.0, at(100))
	src.Accept(2.5, at(200))

	entries := src.Entries()
	last := src.LastUpdate()

	tests := []struct {
		now  int64
		want float64
	}{
		{250, 2.5},
		{150, 3.5},
	}
	for _, tt := range tests {
		dst := New(60 * time.Second)
		if got := dst.Restore(entries, last, at(tt.now)); !approx(got, tt.want) {
			t.Errorf("Restore(now=%d) = %v, want %v", tt.now, got, tt.want)
		}
		if !dst.LastUpdate().Equal(at(200)) {
			t.Errorf("restored LastUpdate() = %v", dst.LastUpdate())
		}
	}
}

func TestWindow_RestoreSanitises(t *testing.T) {
	w := New(time.Hour)
	got := w.Restore([]Entry{
		{At: at(100), Amount: 1.0},
		{At: at(110), Amount: -3},
		{At: time.Time{}, Amount: 5},
		{At: at(120), Amount: 0.5},
	}, at(50), at(130))

	if !approx(got, 1.5) {
		t.Errorf("Restore() = %v, want 1.5", got)
	}
	if !w.LastUpdate().Equal(at(120)) {
		t.Errorf("LastUpdate() = %v, want newest entry 120", w.LastUpdate())
	}
	if w.Accept(1, at(115)) {
		t.Error("Accept() before restored newest entry should be rejected")
	}
}

func TestWindow_RejectsNonFinite(t *testing.T) {
	w := New(time.Hour)
	w.Accept(1.0, at(100))

	tests := []struct {
		name   string
		amount float64
	}{
		{"nan", math.NaN()},
		{"positive inf", math.Inf(1)},
		{"negative inf", math.Inf(-1)},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w.Accept(tt.amount, at(int64(200+i))) {
				t.Errorf("Accept(%v) = true, want false", tt.amount)
			}
		})
	}

	if got := w.Evaluate(at(300)); got != 1.0 {
		t.Errorf("Evaluate() = %v, want 1.0", got)
	}
	if !w.LastUpdate().Equal(at(100)) {
		t.Errorf("LastUpdate() = %v, rejected increments must not advance it", w.LastUpdate())
	}

	restored := New(time.Hour)
	got := restored.Restore([]Entry{
		{At: at(100), Amount: 1.0},
		{At: at(110), Amount: math.Inf(1)},
		{At: at(120), Amount: math.NaN()},
	}, at(100), at(130))
	if got != 1.0 || restored.Len() != 1 {
		t.Errorf("Restore() = %v with %d entries, want 1.0 with 1", got, restored.Len())
	}
}

// Eviction result must equal the brute-force sum regardless of insertion
// order of the surviving entries.
func TestWindow_EvictionMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const duration = 300 * time.Second

	for trial := 0; trial < 50; trial++ {
		w := New(duration)
		var accepted []Entry
		ts := int64(1000)
		for i := 0; i < 40; i++ {
			ts += rng.Int63n(60) - 10 // occasionally goes backwards
			amount := float64(rng.Intn(5)) * 0.5
			if w.Accept(amount, at(ts)) {
				accepted = append(accepted, Entry{At: at(ts), Amount: amount})
			}
		}

		now := at(ts + rng.Int63n(400))
		cutoff := now.Add(-duration)
		want := 0.0
		for _, e := range accepted {
			if !e.At.Before(cutoff) {
				want += e.Amount
			}
		}

		if got := w.Evaluate(now); !approx(got, want) {
			t.Fatalf("trial %d: Evaluate() = %v, want %v", trial, got, want)
		}
	}
}
