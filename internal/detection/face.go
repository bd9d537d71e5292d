// Package detection adapts the out-of-process expression model to the
// pipeline. It reports detected faces with per-expression scores, estimated
// age and gender, and exposes model readiness separately from inference
// failures.
package detection

import (
	"context"

	"github.com/justestif/go-moodtunes/internal/capture"
)

// Expression categories reported by the model, in canonical order.
const (
	Happy     = "happy"
	Sad       = "sad"
	Angry     = "angry"
	Fearful   = "fearful"
	Disgusted = "disgusted"
	Surprised = "surprised"
	Neutral   = "neutral"
)

// Categories is the fixed expression set. Iteration order breaks ties.
var Categories = []string{Happy, Sad, Angry, Fearful, Disgusted, Surprised, Neutral}

// Box is a face bounding box in image pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one detected face.
type Face struct {
	Box               Box                `json:"box"`
	Score             float64            `json:"score"`
	Expressions       map[string]float64 `json:"expressions"`
	Age               float64            `json:"age"`
	Gender            string             `json:"gender"`
	GenderProbability float64            `json:"gender_probability"`
}

// Top returns the highest scoring expression category and its score.
// Ties resolve to the earlier category in Categories. Categories missing from
// Expressions score zero.
func (f Face) Top() (string, float64) {
	best, bestScore := "", -1.0
	for _, c := range Categories {
		score := f.Expressions[c]
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

// Vector returns the expression scores ordered as Categories.
func (f Face) Vector() []float64 {
	v := make([]float64, len(Categories))
	for i, c := range Categories {
		v[i] = f.Expressions[c]
	}
	return v
}

// Detector finds faces in a frame.
//
// Detect returns an empty slice, not an error, when the frame holds no face.
// Before the model is loaded Detect fails with errkind.ModelNotReady; callers
// can poll Ready to avoid that.
type Detector interface {
	Detect(ctx context.Context, frame capture.Frame) ([]Face, error)
	Ready() bool
}
