package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Pollis22/voicecore/internal/farewell"
	"github.com/Pollis22/voicecore/internal/gradeband"
)

// Tuning is the optional on-disk overlay for speech policy: per-band
// threshold overrides, farewell phrase sets, and coherence lexicons. Any
// section left empty keeps the built-in values.
type Tuning struct {
	Bands     map[string]gradeband.Override `yaml:"bands"`
	Farewell  farewell.Sets                 `yaml:"farewell"`
	Coherence CoherenceLexicons             `yaml:"coherence"`
}

// CoherenceLexicons overrides the gate's word lists.
type CoherenceLexicons struct {
	EducationalVocabulary []string `yaml:"educational_vocabulary"`
	HouseholdChatter      []string `yaml:"household_chatter"`
	Stopwords             []string `yaml:"stopwords"`
}

// LoadTuning parses the overlay file. Unknown keys are rejected so a typo
// in a threshold name fails loudly instead of silently keeping defaults.
func LoadTuning(path string) (Tuning, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("open tuning config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var t Tuning
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return Tuning{}, nil
		}
		return Tuning{}, fmt.Errorf("parse tuning config %s: %w", path, err)
	}
	return t, nil
}

// BandOverrides converts the yaml band keys to canonical band labels.
func (t Tuning) BandOverrides() (map[gradeband.Band]gradeband.Override, error) {
	if len(t.Bands) == 0 {
		return nil, nil
	}
	out := make(map[gradeband.Band]gradeband.Override, len(t.Bands))
	for label, ov := range t.Bands {
		band, ok := gradeband.NormalizeBand(label)
		if !ok {
			return nil, fmt.Errorf("tuning config: unknown grade band %q", label)
		}
		out[band] = ov
	}
	return out, nil
}
