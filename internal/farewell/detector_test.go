package farewell

import "testing"

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultSets())
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestDetectGoodbye(t *testing.T) {
	d := newTestDetector(t)
	cases := []struct {
		fragment string
		want     bool
	}{
		{"goodbye", true},
		{"bye", true},
		{"end session", true},
		{"quit", true},
		{"adiós", true},
		{"再见", true},
		{"ok goodbye now", true},
		{"um, bye bye!", true},
		{"please end the session", true},
		{"好的再见", true},
		{"see you later", false},
		{"good night", false},
		{"gotta go", false},
		{"   ", false},
		{"", false},
		{"um uh well", false},
		{"hmm... uh", false},
		{"the bypass surgery", false},
		{"that was quite interesting", false},
		{"what is exit velocity", false},
	}
	for _, tc := range cases {
		if got := d.DetectGoodbye(tc.fragment); got != tc.want {
			t.Fatalf("DetectGoodbye(%q) = %v, want %v", tc.fragment, got, tc.want)
		}
	}
}

func TestTerminationAndAmbiguousSetsDisjoint(t *testing.T) {
	sets := DefaultSets()
	seen := make(map[string]struct{}, len(sets.Termination))
	for _, phrase := range sets.Termination {
		seen[normalizePhrase(phrase)] = struct{}{}
	}
	for _, phrase := range sets.Ambiguous {
		if _, dup := seen[normalizePhrase(phrase)]; dup {
			t.Fatalf("phrase %q present in both sets", phrase)
		}
	}
}

func TestAmbiguousPhrasesNeverTerminate(t *testing.T) {
	d := newTestDetector(t)
	for _, phrase := range DefaultSets().Ambiguous {
		if d.DetectGoodbye(phrase) {
			t.Fatalf("DetectGoodbye(%q) = true for ambiguous phrase", phrase)
		}
	}
}

func TestNewDetectorRejectsOverlap(t *testing.T) {
	sets := DefaultSets()
	sets.Ambiguous = append(sets.Ambiguous, "goodbye")
	if _, err := NewDetector(sets); err == nil {
		t.Fatalf("NewDetector() accepted overlapping sets")
	}
}

func TestNewDetectorRejectsAmbiguousContainingTermination(t *testing.T) {
	sets := DefaultSets()
	sets.Ambiguous = append(sets.Ambiguous, "bye for now")
	if _, err := NewDetector(sets); err == nil {
		t.Fatalf("NewDetector() accepted an ambiguous phrase that matches termination")
	}
}

func BenchmarkDetectGoodbye(b *testing.B) {
	d, err := NewDetector(DefaultSets())
	if err != nil {
		b.Fatalf("NewDetector() error = %v", err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.DetectGoodbye("can you explain photosynthesis one more time")
	}
}
