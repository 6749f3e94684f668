package phonetic_test

import (
	"testing"

	"github.com/MrWong99/audiojournal/internal/phonetic"
)

func TestMatcher_MisspelledFullName(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	names := []string{"John Smith", "Sarah Connor", "Kyiv"}

	corrected, conf, matched := m.Match("Sara Conor", names)
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "Sara Conor")
	}
	if corrected != "Sarah Connor" {
		t.Errorf("Match(%q): corrected=%q, want %q", "Sara Conor", corrected, "Sarah Connor")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9", "Sara Conor", conf)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	corrected, conf, matched := m.Match("hello", []string{"Sarah Connor", "John Smith"})
	if matched {
		t.Fatalf("Match(%q): matched=true, want false", "hello")
	}
	if corrected != "hello" || conf != 0 {
		t.Errorf("Match(%q) = (%q, %f), want (%q, 0)", "hello", corrected, conf, "hello")
	}
}

func TestMatcher_CaseInsensitive(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("SARAH CONNOR", []string{"Sarah Connor"})
	if !matched || corrected != "Sarah Connor" {
		t.Fatalf("Match = (%q, %v), want Sarah Connor", corrected, matched)
	}
	if conf < 0.99 {
		t.Errorf("confidence = %f, want 1", conf)
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		name  string
		word  string
		names []string
	}{
		{"no names", "Sarah", nil},
		{"blank word", "   ", []string{"Sarah"}},
		{"blank names only", "Sarah", []string{"", "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, matched := m.Match(tt.word, tt.names); matched {
				t.Error("matched=true, want false")
			}
			if got := m.Rank(tt.word, tt.names); len(got) != 0 {
				t.Errorf("Rank = %v, want empty", got)
			}
		})
	}
}

func TestRank_SkipsSelf(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	got := m.Rank("Sarah Connor", []string{"Sarah Connor", "Sara Conor", "sarah connor"})
	if len(got) != 1 {
		t.Fatalf("Rank returned %d candidates, want 1: %+v", len(got), got)
	}
	if got[0].Name != "Sara Conor" || !got[0].Phonetic {
		t.Errorf("Rank[0] = %+v, want phonetic Sara Conor", got[0])
	}
}

func TestRank_OrderedByScore(t *testing.T) {
	t.Parallel()

	m := phonetic.New(phonetic.WithTokenPairs(false))
	got := m.Rank("Jon Smith", []string{"Jon Smyth", "John Smith"})
	if len(got) != 2 {
		t.Fatalf("Rank returned %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].Name != "John Smith" || got[1].Name != "Jon Smyth" {
		t.Errorf("order = [%s, %s], want [John Smith, Jon Smyth]", got[0].Name, got[1].Name)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %f < %f", got[0].Score, got[1].Score)
	}
}

func TestRank_TokenPairs(t *testing.T) {
	t.Parallel()

	// A shared first name is a perfect pairwise token match.
	withPairs := phonetic.New()
	if got := withPairs.Rank("John Doe", []string{"John Smith"}); len(got) != 1 {
		t.Errorf("with token pairs: Rank = %+v, want one candidate", got)
	}

	strict := phonetic.New(phonetic.WithTokenPairs(false), phonetic.WithPhoneticThreshold(0.9))
	if got := strict.Rank("John Doe", []string{"John Smith"}); len(got) != 0 {
		t.Errorf("without token pairs: Rank = %+v, want none", got)
	}
}

func TestWithFuzzyThreshold(t *testing.T) {
	t.Parallel()

	m := phonetic.New(phonetic.WithPhoneticThreshold(1.01), phonetic.WithFuzzyThreshold(1.01))
	if _, _, matched := m.Match("Sara Conor", []string{"Sarah Connor"}); matched {
		t.Error("matched above an unreachable threshold")
	}
}
