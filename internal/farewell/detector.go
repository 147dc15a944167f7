package farewell

import (
	"fmt"
	"strings"
	"unicode"
)

// Sets holds the phrase lists the detector is built from. Termination and
// Ambiguous must stay disjoint; Validate enforces that.
type Sets struct {
	Termination []string `yaml:"termination"`
	Ambiguous   []string `yaml:"ambiguous"`
	Fillers     []string `yaml:"fillers"`
}

// DefaultSets returns the curated built-in phrase lists.
func DefaultSets() Sets {
	return Sets{
		Termination: []string{
			"goodbye",
			"bye",
			"bye bye",
			"end session",
			"end the session",
			"stop session",
			"stop the session",
			"quit",
			"adiós",
			"adios",
			"au revoir",
			"auf wiedersehen",
			"tschüss",
			"arrivederci",
			"до свидания",
			"さようなら",
			"再见",
			"拜拜",
		},
		Ambiguous: []string{
			"see you later",
			"see you",
			"see ya",
			"good night",
			"goodnight",
			"gotta go",
			"got to go",
			"talk to you later",
			"catch you later",
			"later",
			"take care",
			"be right back",
			"buenas noches",
			"hasta luego",
			"bonne nuit",
			"晚安",
			"おやすみ",
		},
		Fillers: []string{
			"um", "uh", "er", "ah", "hmm", "mm", "mmm",
			"like", "well", "so", "oh", "huh",
		},
	}
}

// Detector decides whether a transcript fragment is an explicit request to
// end the session. Phrases in the ambiguous set are farewell-adjacent but
// never terminate; casual sign-offs must not kill a session mid-thought.
type Detector struct {
	wordPhrases    [][]string
	containPhrases []string
	termination    map[string]struct{}
	ambiguous      map[string]struct{}
	fillers        map[string]struct{}
}

// NewDetector builds a detector from the given sets, validating them.
func NewDetector(sets Sets) (*Detector, error) {
	d := &Detector{
		termination: make(map[string]struct{}),
		ambiguous:   make(map[string]struct{}),
		fillers:     make(map[string]struct{}),
	}
	for _, raw := range sets.Termination {
		phrase := normalizePhrase(raw)
		if phrase == "" {
			continue
		}
		if _, dup := d.termination[phrase]; dup {
			continue
		}
		d.termination[phrase] = struct{}{}
		if hasLogographic(phrase) {
			d.containPhrases = append(d.containPhrases, phrase)
		} else {
			d.wordPhrases = append(d.wordPhrases, tokenize(phrase))
		}
	}
	for _, raw := range sets.Ambiguous {
		phrase := normalizePhrase(raw)
		if phrase == "" {
			continue
		}
		d.ambiguous[phrase] = struct{}{}
	}
	for _, raw := range sets.Fillers {
		filler := normalizePhrase(raw)
		if filler == "" {
			continue
		}
		d.fillers[filler] = struct{}{}
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DetectGoodbye reports whether the fragment is an explicit end-of-session
// command. Filler-only and empty fragments never terminate.
func (d *Detector) DetectGoodbye(fragment string) bool {
	normalized := strings.ToLower(strings.TrimSpace(fragment))
	if normalized == "" {
		return false
	}
	tokens := tokenize(normalized)
	if !d.hasContentWord(tokens) {
		return false
	}
	return d.matchesTermination(normalized, tokens)
}

func (d *Detector) matchesTermination(normalized string, tokens []string) bool {
	for _, phrase := range d.containPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	for _, phraseTokens := range d.wordPhrases {
		if containsTokenRun(tokens, phraseTokens) {
			return true
		}
	}
	return false
}

func (d *Detector) hasContentWord(tokens []string) bool {
	for _, tok := range tokens {
		if _, filler := d.fillers[tok]; !filler {
			return true
		}
	}
	return false
}

func (d *Detector) validate() error {
	for phrase := range d.ambiguous {
		if _, dup := d.termination[phrase]; dup {
			return fmt.Errorf("phrase %q appears in both termination and ambiguous sets", phrase)
		}
		if d.matchesTermination(phrase, tokenize(phrase)) {
			return fmt.Errorf("ambiguous phrase %q would match the termination set", phrase)
		}
	}
	return nil
}

func normalizePhrase(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// tokenize splits on any rune that is not a letter or number, which keeps
// whole-word matching correct for accented scripts.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// hasLogographic reports whether the phrase uses a script without reliable
// word segmentation; those are matched by substring containment instead.
func hasLogographic(phrase string) bool {
	for _, r := range phrase {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}

func containsTokenRun(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		matched := true
		for j, want := range phrase {
			if tokens[i+j] != want {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
