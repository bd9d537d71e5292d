// Package errkind defines the fixed failure taxonomy shared by every pipeline
// component. Adapters translate raw transport and payload errors into one of
// these kinds at the boundary; callers match on kinds with errors.Is.
package errkind

import (
	"errors"
	"fmt"
)

// Failure kinds.
var (
	CameraUnavailable       = errors.New("camera unavailable")
	ModelNotReady           = errors.New("model not ready")
	ModelLoadFailure        = errors.New("model load failure")
	LowConfidenceDetection  = errors.New("low confidence detection")
	UnsupportedMood         = errors.New("unsupported mood")
	Unauthenticated         = errors.New("unauthenticated")
	AuthorizationExpired    = errors.New("reauthentication required")
	NetworkFailure          = errors.New("network failure")
	NoGenresForMood         = errors.New("no genres for mood")
	EmptyRecommendationPool = errors.New("empty recommendation pool")
	PlaylistCreateFailure   = errors.New("playlist save failed")
	PlaylistFetchFailure    = errors.New("playlist fetch failed")
	Rejected                = errors.New("request rejected")
)

// kinds lists every kind in match priority order. AuthorizationExpired comes
// first because an expired token must interrupt the flow regardless of what
// else the chain carries.
var kinds = []error{
	AuthorizationExpired,
	Unauthenticated,
	CameraUnavailable,
	ModelNotReady,
	ModelLoadFailure,
	LowConfidenceDetection,
	UnsupportedMood,
	NoGenresForMood,
	EmptyRecommendationPool,
	PlaylistCreateFailure,
	PlaylistFetchFailure,
	Rejected,
	NetworkFailure,
}

var messages = map[error]string{
	CameraUnavailable:       "The camera could not be used. Check permissions and try again.",
	ModelNotReady:           "The face model is still loading. Try again in a moment.",
	ModelLoadFailure:        "The face model failed to load.",
	LowConfidenceDetection:  "Your expression was not clear enough. Try again.",
	UnsupportedMood:         "That mood is not supported.",
	Unauthenticated:         "Please log in to the music service.",
	AuthorizationExpired:    "Your music session expired. Please log in again.",
	NetworkFailure:          "A network error occurred. Please try again.",
	NoGenresForMood:         "No genres are configured for this mood.",
	EmptyRecommendationPool: "No tracks were found for this mood.",
	PlaylistCreateFailure:   "Saving the playlist failed. Please retry.",
	PlaylistFetchFailure:    "The playlist was saved but its tracks could not be loaded.",
	Rejected:                "The request was rejected.",
}

// Wrap annotates err with an operation name and a kind. The result matches
// both the kind and err under errors.Is. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// New returns an error of the given kind with no underlying cause.
func New(kind error, op string) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// Is reports whether err carries kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Of returns the kind carried by err, or nil if err carries none.
func Of(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the user-facing notice for err's kind.
func Message(err error) string {
	if k := Of(err); k != nil {
		return messages[k]
	}
	return "Something went wrong. Please try again."
}

// Name returns a stable identifier for err's kind, suitable for JSON payloads
// and metric labels.
func Name(err error) string {
	switch Of(err) {
	case CameraUnavailable:
		return "camera_unavailable"
	case ModelNotReady:
		return "model_not_ready"
	case ModelLoadFailure:
		return "model_load_failure"
	case LowConfidenceDetection:
		return "low_confidence_detection"
	case UnsupportedMood:
		return "unsupported_mood"
	case Unauthenticated:
		return "unauthenticated"
	case AuthorizationExpired:
		return "authorization_expired"
	case NetworkFailure:
		return "network_failure"
	case NoGenresForMood:
		return "no_genres_for_mood"
	case EmptyRecommendationPool:
		return "empty_recommendation_pool"
	case PlaylistCreateFailure:
		return "playlist_create_failure"
	case PlaylistFetchFailure:
		return "playlist_fetch_failure"
	case Rejected:
		return "rejected"
	default:
		return "internal"
	}
}
