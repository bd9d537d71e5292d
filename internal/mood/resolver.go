package mood

import (
	"errors"
	"fmt"
	"time"

	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/errkind"
)

// Strategy selects how samples are reduced to a mood.
type Strategy string

// Strategies.
const (
	// StrategyMajority picks the most frequent per-frame top expression
	// across an observation window.
	StrategyMajority Strategy = "majority"
	// StrategySingle gates the single most confident face of one still.
	StrategySingle Strategy = "single"
	// StrategyCluster runs k-means over per-frame expression vectors and
	// reads the mood off the largest cluster's centroid.
	StrategyCluster Strategy = "cluster"
)

// DefaultThreshold is the minimum winning confidence.
const DefaultThreshold = 0.5

// ErrNoFace marks a resolution that saw no face. It is not a failure kind:
// the mood is simply unresolved.
var ErrNoFace = errors.New("no face detected")

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMajority, StrategySingle, StrategyCluster:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown mood strategy %q", s)
	}
}

// Sample is the outcome of one sampled frame.
type Sample struct {
	At    time.Time
	Faces []detection.Face
	Err   error
}

// Resolution is either a valid mood or an unresolved state with a Reason.
type Resolution struct {
	Mood       Label   `json:"mood,omitempty"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
	Age        float64 `json:"age,omitempty"`
	Gender     string  `json:"gender,omitempty"`
	Manual     bool    `json:"manual,omitempty"`
	Reason     error   `json:"-"`
}

// Resolved reports whether the resolution produced a usable mood.
func (r Resolution) Resolved() bool {
	return r.Reason == nil && r.Mood != ""
}

func unresolved(reason error, samples int) Resolution {
	return Resolution{Reason: reason, Samples: samples}
}

// Resolver applies a Strategy, a confidence threshold and a supported-mood
// allowlist.
type Resolver struct {
	strategy  Strategy
	threshold float64
	supported Set
	clusters  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategy sets the window strategy.
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) {
		if s != "" {
			r.strategy = s
		}
	}
}

// WithThreshold sets the confidence gate.
func WithThreshold(t float64) Option {
	return func(r *Resolver) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithClusters sets k for StrategyCluster.
func WithClusters(k int) Option {
	return func(r *Resolver) {
		if k > 0 {
			r.clusters = k
		}
	}
}

// NewResolver creates a Resolver over the supported set.
func NewResolver(supported Set, opts ...Option) *Resolver {
	r := &Resolver{
		strategy:  StrategyMajority,
		threshold: DefaultThreshold,
		supported: supported,
		clusters:  2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Supported returns the allowlist.
func (r *Resolver) Supported() Set {
	return r.supported
}

// Resolve reduces a window of samples using the configured strategy. Under
// StrategySingle only the most recent sample with a face is considered.
func (r *Resolver) Resolve(samples []Sample) Resolution {
	switch r.strategy {
	case StrategySingle:
		for i := len(samples) - 1; i >= 0; i-- {
			if len(samples[i].Faces) > 0 {
				res := r.ResolveStill(samples[i].Faces)
				res.Samples = len(samples)
				return res
			}
		}
		return unresolved(ErrNoFace, len(samples))
	case StrategyCluster:
		return r.resolveCluster(samples)
	default:
		return r.resolveMajority(samples)
	}
}

// ResolveStill is the single-shot strategy: the most confident face wins,
// and resolution fails without a face, below the threshold, or outside the
// supported set.
func (r *Resolver) ResolveStill(faces []detection.Face) Resolution {
	face, ok := primaryFace(faces)
	if !ok {
		return unresolved(ErrNoFace, 1)
	}

	expr, score := face.Top()
	if score < r.threshold {
		return unresolved(errkind.New(errkind.LowConfidenceDetection,
			fmt.Sprintf("%s at %.2f below %.2f", expr, score, r.threshold)), 1)
	}
	return r.accept(Capitalize(expr), score, 1, face)
}

// Override resolves to a user-picked mood, bypassing inference.
func (r *Resolver) Override(name string) Resolution {
	l, err := r.supported.Parse(name)
	if err != nil {
		return unresolved(err, 0)
	}
	return Resolution{Mood: l, Confidence: 1, Manual: true}
}

func (r *Resolver) accept(l Label, confidence float64, samples int, face detection.Face) Resolution {
	if !r.supported.Contains(l) {
		return unresolved(errkind.New(errkind.UnsupportedMood, string(l)), samples)
	}
	return Resolution{
		Mood:       l,
		Confidence: confidence,
		Samples:    samples,
		Age:        face.Age,
		Gender:     face.Gender,
	}
}

func (r *Resolver) resolveMajority(samples []Sample) Resolution {
	var labels []string
	scores := make(map[string][]float64)
	var last detection.Face

	for _, s := range samples {
		face, ok := primaryFace(s.Faces)
		if !ok {
			continue
		}
		expr, score := face.Top()
		labels = append(labels, expr)
		scores[expr] = append(scores[expr], score)
		last = face
	}

	winner, ok := Majority(labels)
	if !ok {
		return unresolved(ErrNoFace, len(samples))
	}

	mean := average(scores[winner])
	if mean < r.threshold {
		return unresolved(errkind.New(errkind.LowConfidenceDetection,
			fmt.Sprintf("%s averaged %.2f below %.2f", winner, mean, r.threshold)), len(samples))
	}
	return r.accept(Capitalize(winner), mean, len(samples), last)
}

// Majority returns the most frequent label. Ties go to the label encountered
// first. ok is false for an empty input.
func Majority(labels []string) (label string, ok bool) {
	if len(labels) == 0 {
		return "", false
	}

	counts := make(map[string]int, len(labels))
	var order []string
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}

	best := order[0]
	for _, l := range order[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best, true
}

// primaryFace returns the face whose top expression is most confident.
// The earlier face wins ties.
func primaryFace(faces []detection.Face) (detection.Face, bool) {
	if len(faces) == 0 {
		return detection.Face{}, false
	}
	best := 0
	_, bestScore := faces[0].Top()
	for i := 1; i < len(faces); i++ {
		if _, s := faces[i].Top(); s > bestScore {
			best, bestScore = i, s
		}
	}
	return faces[best], true
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
