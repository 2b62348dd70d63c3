package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"RebalanceKeeper/internal/cycle"
	"RebalanceKeeper/internal/service"
)

const actorHeader = "X-Actor"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a service error onto its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	switch service.Classify(err) {
	case service.ClassTiming:
		var nse *cycle.NotStartedError
		if errors.As(err, &nse) {
			writeJSON(w, http.StatusTooEarly, map[string]any{"error": err.Error(), "next_cycle": nse.Next})
			return
		}
		writeError(w, http.StatusTooEarly, err.Error())
	case service.ClassValidation:
		if service.IsConflict(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case service.ClassAuthorization:
		writeError(w, http.StatusForbidden, err.Error())
	case service.ClassNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
