// Package capture provides camera frames to the detection pipeline.
//
// The camera itself lives in the browser. Frames arrive over HTTP and are
// held in a Buffer, which the continuous scanner polls. A single-shot
// snapshot is validated with NewFrame and detected directly. Camera failures
// reported by the browser are stored on the Buffer and surfaced to the next
// caller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/justestif/go-moodtunes/internal/errkind"
)

// Camera failures. Each carries errkind.CameraUnavailable.
var (
	ErrUnsupported      = fmt.Errorf("%w: device unsupported", errkind.CameraUnavailable)
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", errkind.CameraUnavailable)
	ErrBusy             = fmt.Errorf("%w: device busy", errkind.CameraUnavailable)
)

var (
	// ErrNoFrame is returned when no fresh frame is available yet.
	ErrNoFrame = errors.New("no frame available")

	// ErrInvalidImage is returned for frames that are not JPEG or PNG.
	ErrInvalidImage = fmt.Errorf("%w: frame is not a JPEG or PNG image", errkind.Rejected)
)

// Frame is one encoded camera image.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Source yields camera frames.
type Source interface {
	RequestFrame(ctx context.Context) (Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Frame, error)

// RequestFrame calls f.
func (f SourceFunc) RequestFrame(ctx context.Context) (Frame, error) {
	return f(ctx)
}

// NewFrame validates raw image bytes and stamps them with the capture time.
func NewFrame(data []byte, at time.Time) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrInvalidImage
	}
	ct := http.DetectContentType(data)
	if ct != "image/jpeg" && ct != "image/png" {
		return Frame{}, ErrInvalidImage
	}
	return Frame{Data: data, ContentType: ct, CapturedAt: at}, nil
}

// ErrorFromName maps a browser media error name (a DOMException name such as
// "NotAllowedError") to a camera failure.
func ErrorFromName(name string) error {
	switch strings.TrimSpace(name) {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return ErrPermissionDenied
	case "NotReadableError", "TrackStartError", "AbortError":
		return ErrBusy
	default:
		return ErrUnsupported
	}
}
