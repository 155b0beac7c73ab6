package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chat-auth-service/internal/service"
	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Response represents a standard API response
type Response struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Data    interface{}          `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
	Errors  []service.FieldError `json:"errors,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err onto the taxonomy and writes the envelope.
// Internal causes are logged, never sent.
func respondWithError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	e := service.AsError(err)
	status := statusCode(e)

	fields := []zap.Field{
		util.String("method", r.Method),
		util.String("path", r.URL.Path),
		util.Int("status_code", status),
		util.String("message", e.Message),
	}
	if e.Err != nil {
		fields = append(fields, util.ErrorField(e.Err))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP error response", fields...)
	} else {
		logger.Debug("HTTP error response", fields...)
	}

	respondWithJSON(w, logger, status, Response{
		Success: false,
		Message: e.Message,
		Error:   e.Kind.Error(),
		Errors:  e.Fields,
	})
}

// statusCode determines the HTTP status code for an error
func statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into dst. An empty body decodes as {}.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &service.Error{Kind: service.ErrInvalidInput, Message: "Invalid request body", Err: err}
	}
	return nil
}
