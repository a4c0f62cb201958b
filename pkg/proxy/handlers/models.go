package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
)

// DefaultModels is served when the models file cannot be read.
var DefaultModels = []string{"gemini-1.5-pro", "gemini-1.5-flash"}

// modelsFile is the on-disk format of the models list.
type modelsFile struct {
	Models []string `json:"models"`
}

// ModelsHandler serves GET /v1/models. The models file is read on every
// request so edits take effect without a restart.
type ModelsHandler struct {
	path    string
	ownedBy string
	now     func() time.Time
}

// NewModelsHandler creates a handler listing the models in path.
func NewModelsHandler(path string) *ModelsHandler {
	return &ModelsHandler{
		path:    path,
		ownedBy: "google",
		now:     time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names := h.load(r)
	created := h.now().Unix()

	list := types.ModelList{Object: "list", Data: make([]types.Model, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, types.Model{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: h.ownedBy,
		})
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, list); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}

func (h *ModelsHandler) load(r *http.Request) []string {
	data, err := os.ReadFile(h.path)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to read models file, using defaults",
			"path", h.path,
			"error", err,
		)
		return DefaultModels
	}

	var f modelsFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.WarnContext(r.Context(), "failed to parse models file, using defaults",
			"path", h.path,
			"error", err,
		)
		return DefaultModels
	}
	return f.Models
}
