package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/ids"
	"clinicore.org/internal/patient"
)

var _ patient.Store = (*Store)(nil)

const patientColumns = `id, external_id, family_name, given_name, dob, sex, email, phone,
		address_line, city, region, postal_code, country, active, created_at, updated_at`

func (s *Store) CreatePatient(ctx context.Context, p patient.Patient) (patient.Patient, error) {
	if s.db == nil {
		return patient.Patient{}, errors.New("database connection unavailable")
	}
	var dob sql.NullTime
	if p.DOB != nil {
		dob = sql.NullTime{Time: *p.DOB, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		insert into patients (id, external_id, family_name, given_name, dob, sex, email, phone,
			address_line, city, region, postal_code, country, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		returning id, created_at, updated_at
	`, ids.New(), nullIfEmpty(p.ExternalID), p.FamilyName, p.GivenName, dob,
		nullIfEmpty(p.Sex), nullIfEmpty(p.Email), nullIfEmpty(p.Phone),
		nullIfEmpty(p.AddressLine), nullIfEmpty(p.City), nullIfEmpty(p.Region),
		nullIfEmpty(p.PostalCode), nullIfEmpty(p.Country), true)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return patient.Patient{}, fmt.Errorf("%w: external id already registered", auth.ErrConflict)
		}
		return patient.Patient{}, err
	}
	p.Active = true
	return p, nil
}

func (s *Store) GetPatient(ctx context.Context, id string) (patient.Patient, error) {
	if s.db == nil {
		return patient.Patient{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+patientColumns+`
		from patients
		where id = $1
	`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return patient.Patient{}, fmt.Errorf("%w: patient %s", auth.ErrNotFound, id)
	}
	return p, err
}

func (s *Store) SearchPatients(ctx context.Context, query string, limit int) ([]patient.Patient, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if limit <= 0 || limit > patient.SearchLimit {
		limit = patient.SearchLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+patientColumns+`
		from patients
		where family_name ilike $1
		   or given_name ilike $1
		   or email ilike $1
		   or phone ilike $1
		   or external_id ilike $1
		order by family_name, given_name
		limit $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func (s *Store) CandidatesFor(ctx context.Context, fields patient.IntakeFields) ([]patient.Patient, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	email := patient.NormalizeEmail(fields.Email)
	phone := patient.NormalizePhone(fields.Phone)
	var dob sql.NullTime
	if fields.DOB != "" {
		if t, err := time.Parse("2006-01-02", fields.DOB); err == nil {
			dob = sql.NullTime{Time: t, Valid: true}
		}
	}
	// Phone comparison strips formatting on both sides so stored
	// punctuation does not hide a match.
	rows, err := s.db.QueryContext(ctx, `
		select `+patientColumns+`
		from patients
		where active
		  and (($1 <> '' and lower(email) = $1)
		   or ($2 <> '' and regexp_replace(coalesce(phone, ''), '[^0-9+]', '', 'g') = $2)
		   or ($3::date is not null and dob = $3))
		limit 500
	`, email, phone, dob)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func scanPatient(row rowScanner) (patient.Patient, error) {
	var (
		p                patient.Patient
		extID, email, ph sql.NullString
		sex              sql.NullString
		addr, city       sql.NullString
		region, postal   sql.NullString
		country          sql.NullString
		dob              sql.NullTime
	)
	err := row.Scan(&p.ID, &extID, &p.FamilyName, &p.GivenName, &dob, &sex, &email, &ph,
		&addr, &city, &region, &postal, &country, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return patient.Patient{}, err
	}
	p.ExternalID = extID.String
	p.Sex = sex.String
	p.Email = email.String
	p.Phone = ph.String
	p.AddressLine = addr.String
	p.City = city.String
	p.Region = region.String
	p.PostalCode = postal.String
	p.Country = country.String
	if dob.Valid {
		t := dob.Time
		p.DOB = &t
	}
	return p, nil
}

func collectPatients(rows *sql.Rows) ([]patient.Patient, error) {
	var out []patient.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
