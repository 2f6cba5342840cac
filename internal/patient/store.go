package patient

import "context"

// SearchLimit caps results returned by a search query.
const SearchLimit = 100

// Store persists patient records.
type Store interface {
	CreatePatient(ctx context.Context, p Patient) (Patient, error)
	GetPatient(ctx context.Context, id string) (Patient, error)
	// SearchPatients matches the query against family name, given
	// name, email, phone and external id, case-insensitively.
	SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error)
	// CandidatesFor returns records that could duplicate the given
	// intake: same normalized email or phone, or same DOB. The
	// caller scores and ranks them.
	CandidatesFor(ctx context.Context, fields IntakeFields) ([]Patient, error)
}
