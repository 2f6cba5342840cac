package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

// DuplicateError blocks an unconfirmed create when strong duplicate
// candidates exist. The HTTP layer maps it to 409 Conflict.
type DuplicateError struct {
	Candidates []Candidate
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%d potential duplicate record(s) found", len(e.Candidates))
}

// Service is the intake gateway. Every operation requires an
// authenticated principal in the context with a clinical role; every
// permitted operation writes an audit entry before returning.
type Service struct {
	store    Store
	eval     *auth.Evaluator
	recorder *audit.Recorder
	policy   DedupePolicy
}

// NewService constructs the gateway.
func NewService(store Store, eval *auth.Evaluator, recorder *audit.Recorder, policy DedupePolicy) (*Service, error) {
	if store == nil || eval == nil || recorder == nil {
		return nil, errors.New("patient service requires store, evaluator and recorder")
	}
	if policy == (DedupePolicy{}) {
		policy = DefaultDedupePolicy
	}
	return &Service{store: store, eval: eval, recorder: recorder, policy: policy}, nil
}

func (s *Service) authorize(ctx context.Context) (auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, auth.ErrAuthentication
	}
	decision, err := s.eval.Authorize(ctx, principal.Identity, RequiredRoles...)
	if err != nil {
		return auth.Principal{}, err
	}
	if !decision.Allowed {
		return auth.Principal{}, fmt.Errorf("%w: %s", auth.ErrAuthorization, decision.Reason)
	}
	return principal, nil
}

// Search finds patients by name, contact or external id.
func (s *Service) Search(ctx context.Context, query string) ([]Patient, error) {
	principal, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", auth.ErrInvalidInput)
	}
	results, err := s.store.SearchPatients(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		ActorID:    principal.Identity.ID,
		Action:     audit.ActionPatientSearch,
		ObjectType: "patient",
		ObjectID:   query,
	}); err != nil {
		return nil, err
	}
	return results, nil
}

// View loads one patient record.
func (s *Service) View(ctx context.Context, id string) (Patient, error) {
	principal, err := s.authorize(ctx)
	if err != nil {
		return Patient{}, err
	}
	rec, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return Patient{}, err
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		ActorID:    principal.Identity.ID,
		Action:     audit.ActionPatientView,
		ObjectType: "patient",
		ObjectID:   rec.ID,
	}); err != nil {
		return Patient{}, err
	}
	return rec, nil
}

// CheckDuplicates scores the intake against existing records without
// creating anything.
func (s *Service) CheckDuplicates(ctx context.Context, fields IntakeFields) ([]Candidate, error) {
	principal, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateIntake(fields); err != nil {
		return nil, err
	}
	cands, err := s.rankCandidates(ctx, fields)
	if err != nil {
		return nil, err
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		ActorID:    principal.Identity.ID,
		Action:     audit.ActionDuplicateCheck,
		ObjectType: "patient",
	}); err != nil {
		return nil, err
	}
	return cands, nil
}

// Create registers a patient. Unless confirmed, a strong duplicate
// candidate aborts the create with DuplicateError.
func (s *Service) Create(ctx context.Context, fields IntakeFields, confirmed bool) (Patient, error) {
	principal, err := s.authorize(ctx)
	if err != nil {
		return Patient{}, err
	}
	if err := s.validateIntake(fields); err != nil {
		return Patient{}, err
	}
	if !confirmed {
		cands, err := s.rankCandidates(ctx, fields)
		if err != nil {
			return Patient{}, err
		}
		if s.policy.Strong(cands) {
			return Patient{}, &DuplicateError{Candidates: cands}
		}
	}

	dob, err := fields.parseDOB()
	if err != nil {
		return Patient{}, fmt.Errorf("%w: invalid dob", auth.ErrInvalidInput)
	}
	rec, err := s.store.CreatePatient(ctx, Patient{
		ExternalID:  strings.TrimSpace(fields.ExternalID),
		FamilyName:  strings.TrimSpace(fields.FamilyName),
		GivenName:   strings.TrimSpace(fields.GivenName),
		DOB:         dob,
		Sex:         strings.TrimSpace(fields.Sex),
		Email:       NormalizeEmail(fields.Email),
		Phone:       strings.TrimSpace(fields.Phone),
		AddressLine: strings.TrimSpace(fields.AddressLine),
		City:        strings.TrimSpace(fields.City),
		Region:      strings.TrimSpace(fields.Region),
		PostalCode:  strings.TrimSpace(fields.PostalCode),
		Country:     strings.TrimSpace(fields.Country),
		Active:      true,
	})
	if err != nil {
		return Patient{}, err
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		ActorID:    principal.Identity.ID,
		Action:     audit.ActionPatientCreate,
		ObjectType: "patient",
		ObjectID:   rec.ID,
	}); err != nil {
		return Patient{}, err
	}
	return rec, nil
}

func (s *Service) validateIntake(fields IntakeFields) error {
	if err := fieldValidator().Struct(fields); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
	}
	if strings.TrimSpace(fields.Email) == "" && strings.TrimSpace(fields.Phone) == "" {
		return fmt.Errorf("%w: email or phone is required", auth.ErrInvalidInput)
	}
	return nil
}

func (s *Service) rankCandidates(ctx context.Context, fields IntakeFields) ([]Candidate, error) {
	records, err := s.store.CandidatesFor(ctx, fields)
	if err != nil {
		return nil, err
	}
	return s.policy.Rank(fields, records), nil
}
