package antenatal

import "context"

type PatientRepository interface {
	Create(ctx context.Context, p *PatientRecord) error
	GetByID(ctx context.Context, id string) (*PatientRecord, error)
	Update(ctx context.Context, p *PatientRecord) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*PatientRecord, int, error)
}
