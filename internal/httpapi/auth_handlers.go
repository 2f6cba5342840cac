package httpapi

import (
	"errors"
	"net/http"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type meResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Superuser   bool     `json:"is_staff"`
	Roles       []string `json:"roles"`
}

// handleCSRF hands out the CSRF token needed before any cookie-less
// unsafe request (notably login itself).
func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := newCSRFToken()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ident, err := a.svc.Identity.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthentication) {
			// Failed attempts are part of the trail; recording failure
			// must not leak a different status to the caller.
			if _, aerr := a.svc.Recorder.Record(r.Context(), audit.Event{
				Action:     audit.ActionLoginFailed,
				ObjectType: "identity",
			}); aerr != nil {
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	token, expires, err := auth.GenerateSessionToken(ident.ID, auth.DefaultSessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	csrfToken, err := newCSRFToken()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if _, err := a.svc.Recorder.Record(r.Context(), audit.Event{
		ActorID:    ident.ID,
		Action:     audit.ActionLogin,
		ObjectType: "identity",
		ObjectID:   ident.ID,
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	setSessionCookies(w, token, expires, csrfToken)
	roles, err := a.svc.Registry.RoleNamesFor(r.Context(), ident.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:          ident.ID,
		Username:    ident.Username,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		Superuser:   ident.Superuser,
		Roles:       roles,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if ok {
		if _, err := a.svc.Recorder.Record(r.Context(), audit.Event{
			ActorID:    principal.Identity.ID,
			Action:     audit.ActionLogout,
			ObjectType: "identity",
			ObjectID:   principal.Identity.ID,
		}); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}
	clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:          principal.Identity.ID,
		Username:    principal.Identity.Username,
		Email:       principal.Identity.Email,
		DisplayName: principal.Identity.DisplayName,
		Superuser:   principal.Identity.Superuser,
		Roles:       principal.Roles,
	})
}

// requireAdmin gates administrative endpoints.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	decision, err := a.svc.Eval.Authorize(r.Context(), principal.Identity, auth.AdminRole)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return auth.Principal{}, false
	}
	if !decision.Allowed {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return auth.Principal{}, false
	}
	return principal, true
}
