package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/pipeline"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errkind.Of(err) {
	case errkind.Unauthenticated, errkind.AuthorizationExpired:
		return http.StatusUnauthorized
	case errkind.NoGenresForMood, errkind.UnsupportedMood, errkind.LowConfidenceDetection:
		return http.StatusUnprocessableEntity
	case errkind.CameraUnavailable:
		return http.StatusConflict
	case errkind.ModelNotReady:
		return http.StatusServiceUnavailable
	case errkind.NetworkFailure:
		return http.StatusBadGateway
	case errkind.Rejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes the normalized error body for err.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrInProgress) {
		writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{Kind: "in_progress", Message: err.Error()}})
		return
	}
	if errors.Is(err, pipeline.ErrNoHistory) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: err.Error()}})
		return
	}
	msg := errkind.Message(err)
	if errkind.Is(err, errkind.Rejected) {
		// Rejections describe a problem with the request itself.
		msg = err.Error()
	}
	writeJSON(w, statusFor(err), errorBody{Error: errorDetail{
		Kind:    errkind.Name(err),
		Message: msg,
	}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "rejected", Message: message}})
}
