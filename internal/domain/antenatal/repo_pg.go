package antenatal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/ancexport/internal/platform/db"
)

type patientRepoPG struct{ db db.Querier }

func NewPatientRepoPG(q db.Querier) PatientRepository {
	return &patientRepoPG{db: q}
}

const patientCols = `id, name, age, phone, email, address, blood_type, allergies, medical_history,
	emergency_contact, emergency_phone, gestation_weeks, due_date, last_visit,
	risk_level, anc_visits, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*PatientRecord, error) {
	var p PatientRecord
	var risk string
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Phone, &p.Email, &p.Address, &p.BloodType, &p.Allergies, &p.MedicalHistory,
		&p.EmergencyContact, &p.EmergencyPhone, &p.GestationWeeks, &p.DueDate, &p.LastVisit,
		&risk, &p.ANCVisits, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RiskLevel = RiskLevel(risk)
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *PatientRecord) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO anc_patient (id, name, age, phone, email, address, blood_type, allergies, medical_history,
			emergency_contact, emergency_phone, gestation_weeks, due_date, last_visit, risk_level, anc_visits)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Age, p.Phone, p.Email, p.Address, p.BloodType, p.Allergies, p.MedicalHistory,
		p.EmergencyContact, p.EmergencyPhone, p.GestationWeeks, p.DueDate, p.LastVisit, string(p.RiskLevel), p.ANCVisits,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient %s: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*PatientRecord, error) {
	p, err := r.scanPatient(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM anc_patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientRecord) error {
	err := r.db.QueryRow(ctx, `
		UPDATE anc_patient SET name=$2, age=$3, phone=$4, email=$5, address=$6, blood_type=$7, allergies=$8,
			medical_history=$9, emergency_contact=$10, emergency_phone=$11, gestation_weeks=$12,
			due_date=$13, last_visit=$14, risk_level=$15, anc_visits=$16, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Age, p.Phone, p.Email, p.Address, p.BloodType, p.Allergies,
		p.MedicalHistory, p.EmergencyContact, p.EmergencyPhone, p.GestationWeeks,
		p.DueDate, p.LastVisit, string(p.RiskLevel), p.ANCVisits,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM anc_patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// List returns patients in registration order, which is also the order
// bundle exports use.
func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*PatientRecord, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM anc_patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM anc_patient ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	items := []*PatientRecord{}
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	return items, total, nil
}
