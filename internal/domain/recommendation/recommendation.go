package recommendation

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested recommendation does not exist.
var ErrNotFound = errors.New("recommendation not found")

// Type classifies the relationship between the base and recommended product.
type Type string

const (
	TypeCrossSell Type = "cross-sell"
	TypeUpSell    Type = "up-sell"
	TypeAccessory Type = "accessory"
)

// ParseType normalizes and validates a recommendation type value.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeCrossSell, TypeUpSell, TypeAccessory:
		return t, nil
	default:
		return "", errors.Errorf("recommendation_type must be one of [accessory cross-sell up-sell], got %q", s)
	}
}

// Status marks whether a recommendation is currently served to clients.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus normalizes and validates a status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive:
		return st, nil
	default:
		return "", errors.Errorf("status must be one of [active inactive], got %q", s)
	}
}

// ValidateConfidence checks that a confidence score lies in [0, 1].
func ValidateConfidence(score decimal.Decimal) error {
	if score.IsNegative() || score.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("confidence_score must be in [0, 1]")
	}
	return nil
}

// Recommendation links a base product to a recommended product. The two
// price fields are independently nullable: a NullDecimal with Valid=false
// means the price is unknown and must never be touched by discounting.
type Recommendation struct {
	ID                            int64
	BaseProductID                 int64
	RecommendedProductID          int64
	Type                          Type
	Status                        Status
	ConfidenceScore               decimal.Decimal
	BaseProductPrice              decimal.NullDecimal
	RecommendedProductPrice       decimal.NullDecimal
	BaseProductDescription        string
	RecommendedProductDescription string
	CreatedDate                   time.Time
	UpdatedDate                   time.Time
}

// ListFilter narrows List results. Nil fields match everything; Limit <= 0
// falls back to the repository default.
type ListFilter struct {
	BaseProductID *int64
	Type          *Type
	Status        *Status
	MinConfidence *decimal.Decimal
	Limit         int
}

// Repository defines persistence operations for recommendations.
type Repository interface {
	Create(ctx context.Context, rec *Recommendation) error
	Get(ctx context.Context, id int64) (*Recommendation, error)
	List(ctx context.Context, filter ListFilter) ([]Recommendation, error)
	Update(ctx context.Context, rec *Recommendation) error
	Delete(ctx context.Context, id int64) error
}
