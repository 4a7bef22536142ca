package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/larder/internal/membership"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// writePolicyError maps membership errors onto HTTP statuses. Anything the
// policy did not classify is logged and reported as a 500.
func writePolicyError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, membership.ErrNotMember), errors.Is(err, membership.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, membership.ErrAlreadyMember), errors.Is(err, membership.ErrSelfRemovalForbidden):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, membership.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, membership.ErrInvalidDecision), errors.Is(err, membership.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, membership.ErrStorageUnavailable):
		logger.Error("storage unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logger.Error("unexpected policy error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeStoreError reports a failed store call after authorization passed.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	writeError(w, http.StatusServiceUnavailable, "storage unavailable")
}
