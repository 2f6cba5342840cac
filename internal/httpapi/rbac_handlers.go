package httpapi

import (
	"net/http"
	"strings"

	"clinicore.org/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type bindRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleRoleList(w, r)
	case http.MethodPost:
		a.handleRoleCreate(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	roles, err := a.svc.Registry.ListRoles(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.Registry.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// handleIdentityScoped routes /v1/identities/{id}/bindings.
func (a *API) handleIdentityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/identities/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "bindings" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	identityID := parts[0]

	switch r.Method {
	case http.MethodPost:
		a.handleBindRole(w, r, identityID)
	case http.MethodDelete:
		a.handleRevokeBinding(w, r, identityID)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleBindRole(w http.ResponseWriter, r *http.Request, identityID string) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req bindRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	binding, err := a.svc.Registry.Bind(r.Context(), identityID, req.RoleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (a *API) handleRevokeBinding(w http.ResponseWriter, r *http.Request, identityID string) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	roleID := strings.TrimSpace(r.URL.Query().Get("role_id"))
	if roleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if err := a.svc.Registry.Revoke(r.Context(), identityID, roleID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
