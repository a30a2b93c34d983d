package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {error, message, details}. Recognized kinds are
// client errors; anything else is logged and reported as an internal error.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		log.WithField("kind", ae.Kind).WithError(err).Warn("request failed")
		writeJSON(w, apperr.HTTPStatus(err), ae.ToMap())
		return
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		log.WithField("kind", apperr.Validation).WithError(err).Warn("request failed")
		writeJSON(w, apperr.HTTPStatus(err), ve.ToMap())
		return
	}
	log.WithError(err).Error("unexpected error")
	writeInternal(w, err.Error())
}

func writeInternal(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "InternalServerError",
		"message": "internal server error",
		"details": map[string]any{"error": detail},
	})
}
