package tier

import (
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/validate"
)

// Input is the payload for creating a tier.
type Input struct {
	Name          string        `json:"name" validate:"required,max=120"`
	Description   string        `json:"description" validate:"max=5000"`
	Price         Money         `json:"price"`
	BillingPeriod BillingPeriod `json:"billing_period" validate:"required,oneof=monthly yearly one_time free"`
	Tokens        int64         `json:"tokens" validate:"gte=-1"`
	IsFree        bool          `json:"is_free"`
	Popular       bool          `json:"popular"`
	PriceRef      *string       `json:"external_price_ref" validate:"omitempty,min=1,max=255"`
	ProductIDs    []uuid.UUID   `json:"product_ids" validate:"unique"`
}

// Patch is a partial update. Nil fields keep their current value. A non-nil
// ProductIDs replaces the whole product set. ClearPriceRef removes the
// reference, which is required when turning a paid tier into the free one.
type Patch struct {
	Name          *string        `json:"name" validate:"omitempty,min=1,max=120"`
	Description   *string        `json:"description" validate:"omitempty,max=5000"`
	Price         *Money         `json:"price"`
	BillingPeriod *BillingPeriod `json:"billing_period" validate:"omitempty,oneof=monthly yearly one_time free"`
	Tokens        *int64         `json:"tokens" validate:"omitempty,gte=-1"`
	IsFree        *bool          `json:"is_free"`
	Popular       *bool          `json:"popular"`
	PriceRef      *string        `json:"external_price_ref" validate:"omitempty,min=1,max=255"`
	ClearPriceRef bool           `json:"clear_external_price_ref"`
	ProductIDs    *[]uuid.UUID   `json:"product_ids" validate:"omitempty,unique"`
}

func (p Patch) apply(t *Tier) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Price != nil {
		t.Price = *p.Price
	}
	if p.BillingPeriod != nil {
		t.BillingPeriod = *p.BillingPeriod
	}
	if p.Tokens != nil {
		t.Tokens = *p.Tokens
	}
	if p.IsFree != nil {
		t.IsFree = *p.IsFree
	}
	if p.Popular != nil {
		t.Popular = *p.Popular
	}
	if p.PriceRef != nil {
		ref := *p.PriceRef
		t.PriceRef = &ref
	}
	if p.ClearPriceRef {
		t.PriceRef = nil
	}
	if p.ProductIDs != nil {
		t.ProductIDs = slices.Clone(*p.ProductIDs)
	}
}

// CheckInvariants validates the cross-field rules of a single tier.
func CheckInvariants(t Tier) error {
	fe := validate.FieldErrors{}

	if t.Tokens < Unlimited {
		fe.Add("tokens", "must be -1 (unlimited) or greater")
	}
	if t.PriceRef != nil && strings.TrimSpace(*t.PriceRef) == "" {
		fe.Add("external_price_ref", "must not be blank")
	}

	if t.IsFree {
		if t.Price.Amount != 0 {
			fe.Add("price.amount", "must be 0 for the free tier")
		}
		if t.BillingPeriod != PeriodFree {
			fe.Add("billing_period", "must be free for the free tier")
		}
		if t.PriceRef != nil {
			fe.Add("external_price_ref", "must be empty for the free tier")
		}
	} else {
		if t.BillingPeriod == PeriodFree {
			fe.Add("billing_period", "is only allowed for the free tier")
		}
		if t.PriceRef == nil {
			fe.Add("external_price_ref", "is required for paid tiers")
		}
	}

	if err := fe.OrNil(); err != nil {
		return errors.Join(ErrInvalidTier, err)
	}
	return nil
}
