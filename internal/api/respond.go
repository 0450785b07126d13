package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", "error", err)
	}
}

// writeError renders err as an error envelope. Anything that is not an
// application error is logged and reported as a generic failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Unknown {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	payload := apperr.ToPayload(err)
	if payload.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(payload.RetryAfterSeconds))
	}
	writeJSON(w, kind.HTTPStatus(), apperr.Envelope{Error: payload})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.Validation, "request body is empty")
		}
		return apperr.Wrap(apperr.Validation, err, "invalid request body: "+err.Error())
	}
	return nil
}
