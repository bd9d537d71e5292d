package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

// Capture is a snapshot to upload.
type Capture struct {
	Image       []byte
	ContentType string
	Mood        string
	UserID      int // optional; 0 omits the field
}

// UploadCapture stores a captured image with its resolved mood. The request
// is multipart with fields image, mood and optionally user.
func (c *Client) UploadCapture(ctx context.Context, capture Capture) (*CapturedImage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := capture.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="capture`+extension(contentType)+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating image part: %w", err)
	}
	if _, err := part.Write(capture.Image); err != nil {
		return nil, fmt.Errorf("writing image part: %w", err)
	}

	if err := w.WriteField("mood", capture.Mood); err != nil {
		return nil, fmt.Errorf("writing mood field: %w", err)
	}
	if capture.UserID != 0 {
		if err := w.WriteField("user", strconv.Itoa(capture.UserID)); err != nil {
			return nil, fmt.Errorf("writing user field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	var out CapturedImage
	if err := c.do(ctx, "upload captured image", http.MethodPost, "captured-images/", w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
