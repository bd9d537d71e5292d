package detection

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/justestif/go-moodtunes/internal/capture"
)

const (
	pigoMinSize      = 40
	pigoMaxSize      = 1200
	pigoShiftFactor  = 0.1
	pigoScaleFactor  = 1.1
	pigoIoUThreshold = 0.2
	pigoMinQuality   = 5.0
)

// PigoPrefilter rejects frames in which the pigo cascade finds no face.
type PigoPrefilter struct {
	classifier *pigo.Pigo
}

// LoadPigoPrefilter reads and unpacks a pigo cascade file.
func LoadPigoPrefilter(cascadePath string) (*PigoPrefilter, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}
	return &PigoPrefilter{classifier: classifier}, nil
}

// HasFace implements Prefilter.
func (p *PigoPrefilter) HasFace(frame capture.Frame) (bool, error) {
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return false, fmt.Errorf("decoding frame: %w", err)
	}

	bounds := img.Bounds()
	params := pigo.CascadeParams{
		MinSize:     pigoMinSize,
		MaxSize:     pigoMaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: grayscale(img),
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    bounds.Dx(),
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, pigoIoUThreshold)
	for _, d := range dets {
		if d.Q >= pigoMinQuality {
			return true, nil
		}
	}
	return false, nil
}

func grayscale(img image.Image) []uint8 {
	b := img.Bounds()
	out := make([]uint8, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[(y-b.Min.Y)*b.Dx()+(x-b.Min.X)] = uint8((r*299 + g*587 + bl*114) / 1000 >> 8)
		}
	}
	return out
}

var _ Prefilter = (*PigoPrefilter)(nil)
