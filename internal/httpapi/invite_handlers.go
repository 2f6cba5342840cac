package httpapi

import (
	"net/http"

	"clinicore.org/internal/invite"
)

type issueInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type issueInviteResponse struct {
	Invite invite.Invite `json:"invite"`
	Token  string        `json:"token"`
}

type redeemInviteRequest struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (a *API) handleInvites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleInviteIssue(w, r)
	case http.MethodGet:
		a.handleInviteList(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleInviteIssue(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req issueInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inv, token, err := a.svc.Invites.Issue(r.Context(), invite.IssueParams{
		Email:    req.Email,
		RoleName: req.Role,
		IssuedBy: principal.Identity.ID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	// The raw token appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, issueInviteResponse{Invite: inv, Token: token})
}

func (a *API) handleInviteList(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	invites, err := a.svc.Invites.List(r.Context(), 100)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if invites == nil {
		invites = []invite.Invite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (a *API) handleInviteRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req redeemInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.svc.Invites.Redeem(r.Context(), req.Token, invite.Registration{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       ident.ID,
		"username": ident.Username,
		"email":    ident.Email,
	})
}
