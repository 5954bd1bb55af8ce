package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// pagination reads offset and limit query parameters.
func pagination(r *http.Request) (offset, limit int, msg string) {
	query := r.URL.Query()
	offset, limit = 0, defaultPageLimit
	if v := query.Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, 0, "invalid offset parameter"
		}
		offset = parsed
	}
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, 0, "invalid limit parameter"
		}
		limit = parsed
	}
	if limit == 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit, ""
}

// normalizeInputs prefers payload["inputs"] when it is an object, otherwise
// the top-level keys minus the request metadata.
func normalizeInputs(payload map[string]any, meta ...string) map[string]any {
	if in, ok := payload["inputs"].(map[string]any); ok {
		return in
	}
	skip := map[string]bool{"files": true, "webhook_url": true, "inputs": true}
	for _, k := range meta {
		skip[k] = true
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if !skip[k] {
			out[k] = v
		}
	}
	return out
}

// decodeObject reads a JSON object body. ok is false when the body is not an
// object; err is set when it is not JSON at all.
func decodeObject(r *http.Request) (payload map[string]any, ok bool, err error) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, false, err
	}
	payload, ok = raw.(map[string]any)
	return payload, ok, nil
}

func decodeInto(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
