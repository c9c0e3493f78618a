package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"taskwise/internal/routine"
	"taskwise/internal/service"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeStatus(w, code, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fail maps domain errors onto status codes. Anything unrecognised is a 500
// and its detail stays in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeStatus(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, service.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAmbiguousID), errors.Is(err, service.ErrDueDateLocked):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnknownUser):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotificationsOff), errors.Is(err, service.ErrNoPushAddress):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoSender):
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, routine.ErrInputTooShort), errors.Is(err, routine.ErrInputTooLong),
		errors.Is(err, routine.ErrEmptyDescription):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, routine.ErrNoTasks), errors.Is(err, routine.ErrNoFutureTasks):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, routine.ErrCompletion), errors.Is(err, routine.ErrInvalidResponse):
		s.log.Warn("completion failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
