package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ongsolidaria/backoffice/internal/audit"
	"github.com/ongsolidaria/backoffice/internal/auth"
)

// Window names from the bootstrap catalog. Authorization for these
// endpoints keys on them.
const (
	windowRoles   = "Roles"
	windowWindows = "Ventanas"
	windowAudit   = "Auditoria"
)

type createRoleRequest struct {
	Name string `json:"name"`
}

type updateRoleRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

type setGrantRequest struct {
	WindowID  int64 `json:"window_id"`
	CanCreate bool  `json:"can_create"`
	CanRead   bool  `json:"can_read"`
	CanUpdate bool  `json:"can_update"`
	CanDelete bool  `json:"can_delete"`
}

type roleResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type windowResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type auditEntryResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	OccurredAt string `json:"occurred_at"`
	Action     string `json:"action"`
	Detail     string `json:"detail"`
	Resource   string `json:"resource"`
}

func toRoleResponse(role *auth.Role) roleResponse {
	return roleResponse{
		ID:        role.ID,
		Name:      role.Name,
		Status:    role.Status,
		CreatedAt: role.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: role.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		caller, ok := a.require(w, r, windowRoles, auth.ActionRead)
		if !ok {
			return
		}
		roles, err := a.svc.ListRoles(r.Context(), caller)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		resp := make([]roleResponse, 0, len(roles))
		for _, role := range roles {
			resp = append(resp, toRoleResponse(role))
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		caller, ok := a.require(w, r, windowRoles, auth.ActionCreate)
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), caller, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.created", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%d", role.ID))
		writeJSON(w, http.StatusCreated, toRoleResponse(role))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "recurso no encontrado")
		return
	}
	parts := strings.Split(path, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "identificador de rol inválido")
		return
	}
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, id)
	case len(parts) == 2 && parts[1] == "grants":
		a.handleRoleGrants(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "recurso no encontrado")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.require(w, r, windowRoles, auth.ActionRead); !ok {
			return
		}
		role, err := a.svc.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRoleResponse(role))
	case http.MethodPut:
		caller, ok := a.require(w, r, windowRoles, auth.ActionUpdate)
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), caller, id, auth.RoleUpdate{
			Name:   req.Name,
			Status: req.Status,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
			"status":  role.Status,
		})
		writeJSON(w, http.StatusOK, toRoleResponse(role))
	case http.MethodDelete:
		caller, ok := a.require(w, r, windowRoles, auth.ActionDelete)
		if !ok {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), caller, id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{
			"role_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRoleGrants(w http.ResponseWriter, r *http.Request, roleID int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	caller, ok := a.require(w, r, windowRoles, auth.ActionUpdate)
	if !ok {
		return
	}
	var req setGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant := auth.Grant{
		RoleID:    roleID,
		WindowID:  req.WindowID,
		CanCreate: req.CanCreate,
		CanRead:   req.CanRead,
		CanUpdate: req.CanUpdate,
		CanDelete: req.CanDelete,
	}
	if err := a.svc.SetGrant(r.Context(), caller, grant); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.grant.set", map[string]any{
		"role_id":   grant.RoleID,
		"window_id": grant.WindowID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.require(w, r, windowWindows, auth.ActionRead); !ok {
		return
	}
	windows, err := a.svc.ListWindows(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		resp = append(resp, windowResponse{ID: win.ID, Name: win.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.require(w, r, windowAudit, auth.ActionRead); !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var before time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("before")); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "before debe ser una fecha RFC3339")
			return
		}
	}
	entries, err := a.svc.ListAudit(r.Context(), limit, before)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditEntryResponse{
			ID:         e.ID,
			Email:      e.Email,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
			Action:     string(e.Action),
			Detail:     e.Detail,
			Resource:   e.Resource,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
