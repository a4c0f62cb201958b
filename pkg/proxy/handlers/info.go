package handlers

import (
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/proxy"
)

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Message   string   `json:"message"`
	Version   string   `json:"version"`
	Status    string   `json:"status"`
	Auth      string   `json:"auth"`
	Docs      string   `json:"docs"`
	Endpoints []string `json:"endpoints"`
}

// InfoHandler returns the handler for GET /.
func InfoHandler(version string, endpoints []string) http.HandlerFunc {
	info := ServiceInfo{
		Message:   "OpenAI-compatible relay",
		Version:   version,
		Status:    "running",
		Auth:      "API key authentication required",
		Docs:      "Authenticate with the header Authorization: Bearer <api_key>",
		Endpoints: endpoints,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := proxy.WriteJSONResponse(w, http.StatusOK, info); err != nil {
			slog.ErrorContext(r.Context(), "failed to write response", "error", err)
		}
	}
}
