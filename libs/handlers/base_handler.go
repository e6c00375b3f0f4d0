package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/skillpath/backend/libs/apperr"
	"go.uber.org/zap"
)

// BaseHandler provides common handler functionality
type BaseHandler struct {
	Logger *zap.Logger
}

// ErrorBody is the JSON envelope of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable error code and a human readable message
type ErrorDetail struct {
	Code    apperr.Kind `json:"code"`
	Message string      `json:"message"`
}

// RespondJSON sends a JSON response
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends an error JSON response of the given kind
func (h *BaseHandler) RespondError(w http.ResponseWriter, kind apperr.Kind, message string) {
	h.RespondJSON(w, kind.HTTPStatus(), ErrorBody{Error: ErrorDetail{Code: kind, Message: message}})
}

// RespondAppError maps err onto its stable kind and sends it.
// Errors without a kind are logged and answered as INTERNAL.
func (h *BaseHandler) RespondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal || kind == apperr.Unavailable {
		h.Logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	h.RespondError(w, kind, apperr.MessageOf(err))
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields
func (h *BaseHandler) DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.ValidationFailed, "request body is required")
		}
		return apperr.Wrap(apperr.ValidationFailed, err, "invalid request body")
	}
	return nil
}
