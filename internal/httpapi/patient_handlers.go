package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clinicore.org/internal/ids"
	"clinicore.org/internal/patient"
)

const confirmCreateHeader = "X-Confirm-Create"

type createPatientRequest struct {
	patient.IntakeFields
	ConfirmCreate bool `json:"confirm_create"`
}

func (a *API) handlePatients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handlePatientSearch(w, r)
	case http.MethodPost:
		a.handlePatientCreate(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePatientSearch(w http.ResponseWriter, r *http.Request) {
	results, err := a.svc.Patients.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if results == nil {
		results = []patient.Patient{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": results})
}

func (a *API) handlePatientCreate(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	confirmed := req.ConfirmCreate || r.Header.Get(confirmCreateHeader) == "true"

	rec, err := a.svc.Patients.Create(r.Context(), req.IntakeFields, confirmed)
	if err != nil {
		var dup *patient.DuplicateError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "potential duplicate records found",
				"candidates": dup.Candidates,
				"request_id": RequestIDFromContext(r.Context()),
			})
			return
		}
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/patients/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleDuplicateCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var fields patient.IntakeFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cands, err := a.svc.Patients.CheckDuplicates(r.Context(), fields)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if cands == nil {
		cands = []patient.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cands})
}

func (a *API) handlePatientResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/patients/"), "/")
	if id == "" || strings.Contains(id, "/") || !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rec, err := a.svc.Patients.View(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
