package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"clinicore.org/internal/auth"
)

const (
	sessionCookie = "clinicore_session"
	csrfCookie    = "clinicore_csrf"
	csrfHeader    = "X-CSRF-Token"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/csrf",
	"/v1/auth/login",
	"/v1/invites/redeem",
}

// withSession authenticates the session cookie, loads the principal
// with its current role bindings and enforces double-submit CSRF on
// unsafe methods. Roles are re-read per request so a revocation takes
// effect immediately.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		identityID, err := auth.ParseSessionToken(cookie.Value)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid session")
			return
		}

		ident, err := a.svc.Identity.Get(r.Context(), identityID)
		if err != nil || !ident.Active {
			writeError(w, r, http.StatusUnauthorized, "invalid session")
			return
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if err := checkCSRF(r); err != nil {
				writeError(w, r, http.StatusForbidden, "csrf token mismatch")
				return
			}
		}

		roles, err := a.svc.Registry.RoleNamesFor(r.Context(), ident.ID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Identity: ident, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// checkCSRF implements the double-submit pattern: the CSRF cookie must
// match the header copy byte for byte.
func checkCSRF(r *http.Request) error {
	cookie, err := r.Cookie(csrfCookie)
	if err != nil || cookie.Value == "" {
		return errors.New("missing csrf cookie")
	}
	header := r.Header.Get(csrfHeader)
	if header == "" {
		return errors.New("missing csrf header")
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return errors.New("csrf token mismatch")
	}
	return nil
}

func newCSRFToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func setSessionCookies(w http.ResponseWriter, sessionToken string, expires time.Time, csrfToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionToken,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	// The CSRF cookie is readable by the client so it can be echoed in
	// the header.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    csrfToken,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{sessionCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
	}
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
