// Package mood reduces detected expressions to a single supported mood label.
package mood

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/justestif/go-moodtunes/internal/errkind"
)

// Label is a display-cased mood name such as "Happy".
type Label string

// Default mood labels.
const (
	Happy     Label = "Happy"
	Sad       Label = "Sad"
	Angry     Label = "Angry"
	Fearful   Label = "Fearful"
	Disgusted Label = "Disgusted"
	Surprised Label = "Surprised"
	Neutral   Label = "Neutral"
)

// String implements fmt.Stringer.
func (l Label) String() string {
	return string(l)
}

// Capitalize turns an expression category ("happy") into its mood label
// ("Happy").
func Capitalize(expression string) Label {
	expression = strings.ToLower(strings.TrimSpace(expression))
	r, size := utf8.DecodeRuneInString(expression)
	if r == utf8.RuneError {
		return ""
	}
	return Label(string(unicode.ToUpper(r)) + expression[size:])
}

// Set is an ordered allowlist of mood labels. Membership is case-sensitive.
type Set struct {
	labels []Label
	index  map[Label]struct{}
}

// NewSet creates a Set. Duplicates are dropped, first occurrence wins.
func NewSet(labels ...Label) Set {
	s := Set{index: make(map[Label]struct{}, len(labels))}
	for _, l := range labels {
		if _, ok := s.index[l]; ok || l == "" {
			continue
		}
		s.index[l] = struct{}{}
		s.labels = append(s.labels, l)
	}
	return s
}

// DefaultSet holds the seven expression categories, capitalized.
func DefaultSet() Set {
	return NewSet(Happy, Sad, Angry, Fearful, Disgusted, Surprised, Neutral)
}

// Contains reports whether l is in the set with matching capitalization.
func (s Set) Contains(l Label) bool {
	_, ok := s.index[l]
	return ok
}

// Labels returns the labels in configured order.
func (s Set) Labels() []Label {
	out := make([]Label, len(s.labels))
	copy(out, s.labels)
	return out
}

// Parse validates a user-supplied mood name. The name must match a label
// exactly; "happy" is not accepted for "Happy".
func (s Set) Parse(name string) (Label, error) {
	l := Label(strings.TrimSpace(name))
	if !s.Contains(l) {
		return "", errkind.New(errkind.UnsupportedMood, fmt.Sprintf("parse mood %q", name))
	}
	return l, nil
}
