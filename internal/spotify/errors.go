package spotify

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-moodtunes/internal/errkind"
)

// normalize maps an API error onto the failure taxonomy.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	if errkind.Of(err) != nil {
		return err
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return errkind.Wrap(kindForStatus(apiErr.Status), op, err)
	}

	if status, ok := statusFromMessage(err.Error()); ok {
		return errkind.Wrap(kindForStatus(status), op, err)
	}

	// Transport errors, timeouts and undecodable bodies.
	return errkind.Wrap(errkind.NetworkFailure, op, err)
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return errkind.AuthorizationExpired
	case status == http.StatusTooManyRequests || status >= 500:
		return errkind.NetworkFailure
	case status >= 400:
		return errkind.Rejected
	default:
		return errkind.NetworkFailure
	}
}

// statusFromMessage recovers the status from errors the API client reports
// without a decoded body, such as "spotify: HTTP 401: Unauthorized (body empty)".
func statusFromMessage(msg string) (int, bool) {
	i := strings.Index(msg, "HTTP ")
	if i < 0 || len(msg) < i+8 {
		return 0, false
	}
	code := 0
	for _, r := range msg[i+5 : i+8] {
		if r < '0' || r > '9' {
			return 0, false
		}
		code = code*10 + int(r-'0')
	}
	return code, true
}
