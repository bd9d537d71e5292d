package mood

import (
	"fmt"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/errkind"
)

// sampleObservation wraps a face's expression vector for clustering.
type sampleObservation struct {
	index  int
	face   detection.Face
	coords clusters.Coordinates
}

func (o sampleObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o sampleObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// resolveCluster groups per-frame expression vectors with k-means and reads
// the mood from the centroid of the largest group. Windows with fewer frames
// than clusters fall back to the majority vote.
func (r *Resolver) resolveCluster(samples []Sample) Resolution {
	var obs clusters.Observations
	for i, s := range samples {
		face, ok := primaryFace(s.Faces)
		if !ok {
			continue
		}
		obs = append(obs, sampleObservation{index: i, face: face, coords: face.Vector()})
	}
	if len(obs) == 0 {
		return unresolved(ErrNoFace, len(samples))
	}
	if len(obs) < r.clusters {
		return r.resolveMajority(samples)
	}

	result, err := kmeans.New().Partition(obs, r.clusters)
	if err != nil {
		return r.resolveMajority(samples)
	}

	var (
		largest  clusters.Cluster
		earliest int
		found    bool
	)
	for _, c := range result {
		if len(c.Observations) == 0 {
			continue
		}
		first := firstIndex(c.Observations)
		if !found || len(c.Observations) > len(largest.Observations) ||
			(len(c.Observations) == len(largest.Observations) && first < earliest) {
			largest, earliest, found = c, first, true
		}
	}
	if !found {
		return r.resolveMajority(samples)
	}

	expr, score := centroidTop(largest.Center)
	if score < r.threshold {
		return unresolved(errkind.New(errkind.LowConfidenceDetection,
			fmt.Sprintf("cluster centroid %s at %.2f below %.2f", expr, score, r.threshold)), len(samples))
	}

	last := largest.Observations[len(largest.Observations)-1].(sampleObservation).face
	return r.accept(Capitalize(expr), score, len(samples), last)
}

func firstIndex(obs clusters.Observations) int {
	first := -1
	for _, o := range obs {
		if so, ok := o.(sampleObservation); ok && (first < 0 || so.index < first) {
			first = so.index
		}
	}
	return first
}

func centroidTop(center clusters.Coordinates) (string, float64) {
	best, bestScore := "", -1.0
	for i, c := range detection.Categories {
		if i >= len(center) {
			break
		}
		if center[i] > bestScore {
			best, bestScore = c, center[i]
		}
	}
	return best, bestScore
}
