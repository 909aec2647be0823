package ventilation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrCalculationNotFound = errors.New("calculation not found")

// CalculationKind tags a history record with the operation that produced it.
type CalculationKind string

const (
	KindPrediction   CalculationKind = "prediction"
	KindRRAdjustment CalculationKind = "rr_adjustment"
	KindTVAdjustment CalculationKind = "tv_adjustment"
)

// CalculationRecord maps to the ventilation_calculation table.
type CalculationRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Kind        CalculationKind `db:"kind" json:"kind"`
	Inputs      json.RawMessage `db:"inputs" json:"inputs"`
	Outputs     json.RawMessage `db:"outputs" json:"outputs"`
	RequestedBy *string         `db:"requested_by" json:"requested_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type CalculationRepository interface {
	Create(ctx context.Context, r *CalculationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*CalculationRecord, error)
	List(ctx context.Context, kind CalculationKind, limit, offset int) ([]*CalculationRecord, int, error)
}
