package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"novy.market/internal/audit"
	"novy.market/internal/auth"
	"novy.market/internal/market"
	"novy.market/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleMarketError maps the service error taxonomy to HTTP status codes.
// ErrIntegrity deliberately maps to 500 so the sender retries and the
// delivery is never silently acknowledged.
func handleMarketError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, market.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrConflict), errors.Is(err, market.ErrAlreadyUsed):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrExpired):
		writeError(w, r, http.StatusGone, err.Error())
	case errors.Is(err, market.ErrInvalidState):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, market.ErrUpstream):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "internal error",
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// actor builds the audit identity for the current request.
func actor(r *http.Request) market.Actor {
	userID, _ := auth.UserIDFromContext(r.Context())
	return market.Actor{
		UserID:    userID,
		IPHash:    audit.HashIP(clientIP(r)),
		UserAgent: r.UserAgent(),
	}
}
