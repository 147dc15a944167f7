package coherence

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ClarificationMessage is spoken back when a fragment is rejected; filtered
// speech is surfaced to the student, never silently dropped.
const ClarificationMessage = "I didn't quite catch that. Could you repeat it, or ask me about what we're working on?"

const (
	ReasonEmpty         = "empty"
	ReasonDisabled      = "disabled"
	ReasonEducational   = "educational_vocabulary"
	ReasonSimilar       = "similar"
	ReasonChatter       = "chatter_mismatch"
	ReasonLowSimilarity = "low_similarity"
)

const defaultTopKeywords = 5

// Verdict is the outcome of scoring one transcript fragment.
type Verdict struct {
	Coherent      bool
	Similarity    float64
	Reason        string
	Keywords      []string
	Clarification string
}

// Config tunes the gate. Zero-value lexicon slices fall back to the built-in
// lists.
type Config struct {
	Enabled               bool
	Threshold             float64
	TopKeywords           int
	EducationalVocabulary []string
	HouseholdChatter      []string
	Stopwords             []string
}

// DefaultConfig returns the gate defaults used in production.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Threshold:   0.15,
		TopKeywords: defaultTopKeywords,
	}
}

// Gate filters ambient and off-topic speech before it becomes a turn.
type Gate struct {
	enabled     bool
	threshold   float64
	topKeywords int
	eduVocab    map[string]struct{}
	chatter     map[string]struct{}
	stopwords   map[string]struct{}
}

// NewGate builds a gate from config, validating the threshold.
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("coherence threshold must be in (0, 1], got %v", cfg.Threshold)
	}
	topN := cfg.TopKeywords
	if topN <= 0 {
		topN = defaultTopKeywords
	}
	edu := cfg.EducationalVocabulary
	if len(edu) == 0 {
		edu = defaultEducationalVocabulary
	}
	chatter := cfg.HouseholdChatter
	if len(chatter) == 0 {
		chatter = defaultHouseholdChatter
	}
	stop := cfg.Stopwords
	if len(stop) == 0 {
		stop = defaultStopwords
	}
	return &Gate{
		enabled:     cfg.Enabled,
		threshold:   cfg.Threshold,
		topKeywords: topN,
		eduVocab:    wordSet(edu),
		chatter:     wordSet(chatter),
		stopwords:   wordSet(stop),
	}, nil
}

// Score classifies a transcript fragment against the conversation context.
// It never fails: an empty fragment is coherent by definition.
func (g *Gate) Score(fragment string, ctx *Context) Verdict {
	tokens := tokenize(fragment)
	if len(tokens) == 0 {
		return Verdict{Coherent: true, Similarity: 1, Reason: ReasonEmpty}
	}
	contextTokens, keywords := g.contextTokens(ctx)
	similarity := jaccard(tokenSet(tokens), contextTokens)
	if !g.enabled {
		return Verdict{Coherent: true, Similarity: similarity, Reason: ReasonDisabled, Keywords: keywords}
	}
	for _, tok := range tokens {
		if _, edu := g.eduVocab[tok]; edu {
			return Verdict{Coherent: true, Similarity: similarity, Reason: ReasonEducational, Keywords: keywords}
		}
	}
	if similarity < g.threshold && g.containsChatter(tokens) {
		return Verdict{
			Similarity:    similarity,
			Reason:        ReasonChatter,
			Keywords:      keywords,
			Clarification: ClarificationMessage,
		}
	}
	if similarity < g.threshold/2 && len(tokens) > 3 {
		return Verdict{
			Similarity:    similarity,
			Reason:        ReasonLowSimilarity,
			Keywords:      keywords,
			Clarification: ClarificationMessage,
		}
	}
	return Verdict{Coherent: true, Similarity: similarity, Reason: ReasonSimilar, Keywords: keywords}
}

func (g *Gate) containsChatter(tokens []string) bool {
	for _, tok := range tokens {
		if _, hit := g.chatter[tok]; hit {
			return true
		}
	}
	return false
}

// contextTokens returns the unioned context token set and the top-N most
// frequent non-stopword tokens for telemetry.
func (g *Gate) contextTokens(ctx *Context) (map[string]struct{}, []string) {
	if ctx == nil {
		return nil, nil
	}
	counts := make(map[string]int)
	union := make(map[string]struct{})
	for _, text := range ctx.snapshot() {
		for _, tok := range tokenize(text) {
			union[tok] = struct{}{}
			if _, stop := g.stopwords[tok]; !stop {
				counts[tok]++
			}
		}
	}
	if len(counts) == 0 {
		return union, nil
	}
	keywords := make([]string, 0, len(counts))
	for tok := range counts {
		keywords = append(keywords, tok)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > g.topKeywords {
		keywords = keywords[:g.topKeywords]
	}
	return union, keywords
}

// jaccard computes |a∩b| / |a∪b| with empty-vs-empty defined as 1 and
// one-empty as 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, hit := b[tok]; hit {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// tokenize lowercases, strips punctuation, and drops tokens of length <=1.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		normalized := strings.ToLower(strings.TrimSpace(w))
		if normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}
