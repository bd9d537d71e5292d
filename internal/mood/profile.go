package mood

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/justestif/go-moodtunes/internal/music"
)

// Display colors.
const (
	colorHappy   = "#52c41a"
	colorSad     = "#1890ff"
	colorDefault = "#faad14"
)

// ErrEmptyProfiles is returned when a mood table defines no moods.
var ErrEmptyProfiles = errors.New("mood table defines no moods")

// Profile describes one supported mood.
type Profile struct {
	Mood    Label               `yaml:"mood" json:"mood"`
	Color   string              `yaml:"color" json:"color"`
	Genres  []string            `yaml:"genres" json:"genres"`
	Targets *music.AudioTargets `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// Profiles is the ordered mood table.
type Profiles []Profile

var neutralTargets = music.AudioTargets{Energy: 0.5, Valence: 0.5, Danceability: 0.5}

func targets(energy, valence, danceability float64) *music.AudioTargets {
	return &music.AudioTargets{Energy: energy, Valence: valence, Danceability: danceability}
}

// DefaultProfiles returns the built-in mood table. Its genres double as the
// fallback mapping when the backend cannot be reached.
func DefaultProfiles() Profiles {
	return Profiles{
		{Mood: Happy, Color: colorHappy, Genres: []string{"pop", "dance", "happy"}, Targets: targets(0.8, 0.9, 0.7)},
		{Mood: Sad, Color: colorSad, Genres: []string{"acoustic", "sad", "piano"}, Targets: targets(0.3, 0.2, 0.4)},
		{Mood: Angry, Color: colorDefault, Genres: []string{"metal", "rock", "punk"}, Targets: targets(0.9, 0.4, 0.6)},
		{Mood: Fearful, Color: colorDefault, Genres: []string{"ambient", "classical", "chill"}, Targets: targets(0.4, 0.3, 0.3)},
		{Mood: Disgusted, Color: colorDefault, Genres: []string{"grunge", "alternative", "punk-rock"}},
		{Mood: Surprised, Color: colorDefault, Genres: []string{"electronic", "edm", "funk"}, Targets: targets(0.7, 0.6, 0.6)},
		{Mood: Neutral, Color: colorDefault, Genres: []string{"indie", "chill", "jazz"}, Targets: targets(0.5, 0.5, 0.5)},
	}
}

// LoadProfiles reads a YAML mood table:
//
//	moods:
//	  - mood: Happy
//	    color: "#52c41a"
//	    genres: [pop, dance]
//	    targets: {energy: 0.8, valence: 0.9, danceability: 0.7}
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mood table: %w", err)
	}

	var doc struct {
		Moods Profiles `yaml:"moods"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing mood table: %w", err)
	}
	if len(doc.Moods) == 0 {
		return nil, ErrEmptyProfiles
	}
	for i := range doc.Moods {
		if doc.Moods[i].Color == "" {
			doc.Moods[i].Color = colorDefault
		}
	}
	return doc.Moods, nil
}

// Set returns the supported-mood allowlist defined by the table.
func (p Profiles) Set() Set {
	labels := make([]Label, 0, len(p))
	for _, prof := range p {
		labels = append(labels, prof.Mood)
	}
	return NewSet(labels...)
}

// Lookup returns the profile for l.
func (p Profiles) Lookup(l Label) (Profile, bool) {
	for _, prof := range p {
		if prof.Mood == l {
			return prof, true
		}
	}
	return Profile{}, false
}

// Genres returns the mood to genre table.
func (p Profiles) Genres() map[Label][]string {
	out := make(map[Label][]string, len(p))
	for _, prof := range p {
		out[prof.Mood] = append([]string(nil), prof.Genres...)
	}
	return out
}

// TargetsFor returns the audio targets for l, falling back to neutral values.
func (p Profiles) TargetsFor(l Label) music.AudioTargets {
	if prof, ok := p.Lookup(l); ok && prof.Targets != nil {
		return *prof.Targets
	}
	return neutralTargets
}
