package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
)

// maxAdminBodySize bounds administrative request bodies.
const maxAdminBodySize = 64 * 1024

// AdminHandler serves the key administration routes. Authorization is the
// caller's job; mount it behind auth.Authorizer.RequireAdmin.
//
// Routes:
//
//	GET  /admin/api-keys                list keys and registry stats
//	POST /admin/api-keys                create a key
//	PUT  /admin/api-keys/{name}/status  activate or deactivate a key
//	POST /admin/api-keys/reload         reload the registry from its store
type AdminHandler struct {
	registry *keys.Registry

	// persist writes the registry back to its store after each mutation
	persist bool
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(registry *keys.Registry, persistOnChange bool) *AdminHandler {
	return &AdminHandler{registry: registry, persist: persistOnChange}
}

// List handles GET /admin/api-keys.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()

	summaries := make(map[string]KeySummary, len(records))
	for _, rec := range records {
		summary := KeySummary{
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			UsageCount:  rec.UsageCount,
			IsActive:    rec.Active,
		}
		if !rec.LastUsed.IsZero() {
			lastUsed := rec.LastUsed.Format(time.RFC3339)
			summary.LastUsed = &lastUsed
		}
		summaries[rec.Name] = summary
	}

	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"stats": h.registry.Stats(),
		"keys":  summaries,
	})
}

// Create handles POST /admin/api-keys.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateKeyRequest
	if errResp := decodeBody(r, &req); errResp != nil {
		writeError(ctx, w, errResp)
		return
	}
	if req.Name == "" {
		writeError(ctx, w, types.NewInvalidRequestError("name is required", "name", types.CodeMissingField))
		return
	}

	secret, err := h.registry.Create(req.Name, req.Description)
	switch {
	case errors.Is(err, keys.ErrDuplicateName):
		writeError(ctx, w, types.NewInvalidRequestError(
			fmt.Sprintf("an api key named %q already exists", req.Name), "name", types.CodeInvalidValue))
		return
	case errors.Is(err, keys.ErrInvalidName):
		writeError(ctx, w, types.NewInvalidRequestError(err.Error(), "name", types.CodeInvalidValue))
		return
	case err != nil:
		slog.ErrorContext(ctx, "failed to create api key", "name", req.Name, "error", err)
		writeError(ctx, w, types.NewServerError("Failed to create api key"))
		return
	}

	if !h.persistChange(ctx, w, "create", req.Name) {
		return
	}

	slog.InfoContext(ctx, "api key created", "name", req.Name)
	h.writeJSON(ctx, w, http.StatusOK, CreateKeyResponse{
		Message:     "api key created",
		APIKey:      secret,
		Name:        req.Name,
		Description: req.Description,
	})
}

// SetStatus handles PUT /admin/api-keys/{name}/status.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	var req KeyStatusRequest
	if errResp := decodeBody(r, &req); errResp != nil {
		writeError(ctx, w, errResp)
		return
	}
	if req.IsActive == nil {
		writeError(ctx, w, types.NewInvalidRequestError("is_active is required", "is_active", types.CodeMissingField))
		return
	}

	rec, ok := h.registry.Lookup(name)
	if !ok {
		writeError(ctx, w, types.NewNotFoundError(fmt.Sprintf("no api key named %q", name)))
		return
	}

	var changed bool
	if *req.IsActive {
		changed = h.registry.Activate(rec.Secret)
	} else {
		changed = h.registry.Deactivate(rec.Secret)
	}
	if !changed {
		// Removed by a concurrent reload between Lookup and the update.
		writeError(ctx, w, types.NewNotFoundError(fmt.Sprintf("no api key named %q", name)))
		return
	}

	if !h.persistChange(ctx, w, "status", name) {
		return
	}

	verb := "deactivated"
	if *req.IsActive {
		verb = "activated"
	}
	slog.InfoContext(ctx, "api key "+verb, "name", name)
	h.writeJSON(ctx, w, http.StatusOK, KeyStatusResponse{
		Message:  "api key " + verb,
		Name:     name,
		IsActive: *req.IsActive,
	})
}

// Reload handles POST /admin/api-keys/reload. Unlike the background refresh
// it loads unconditionally.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.registry.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "api key reload failed", "error", err)
		writeError(ctx, w, types.NewServerError("Failed to reload api keys"))
		return
	}

	stats := h.registry.Stats()
	slog.InfoContext(ctx, "api keys reloaded", "total", stats.Total, "active", stats.Active)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"message": "api keys reloaded",
		"stats":   stats,
	})
}

// persistChange saves the registry when configured to. It reports whether
// the handler should go on to write its success response.
func (h *AdminHandler) persistChange(ctx context.Context, w http.ResponseWriter, op, name string) bool {
	if !h.persist {
		return true
	}
	if err := h.registry.Save(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to persist api keys",
			"operation", op,
			"name", name,
			"error", err,
		)
		writeError(ctx, w, types.NewServerError("Change applied but could not be persisted"))
		return false
	}
	return true
}

func (h *AdminHandler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	if err := proxy.WriteJSONResponse(w, status, v); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// decodeBody decodes a JSON body of at most maxAdminBodySize bytes.
func decodeBody(r *http.Request, v interface{}) *types.ErrorResponse {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBodySize+1))
	if err != nil {
		return types.NewInvalidRequestError("failed to read request body", "body", types.CodeInvalidJSON)
	}
	if len(body) > maxAdminBodySize {
		return types.NewInvalidRequestError("request body too large", "body", types.CodeRequestTooLarge)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return types.NewInvalidRequestError("invalid JSON: "+err.Error(), "body", types.CodeInvalidJSON)
	}
	return nil
}
