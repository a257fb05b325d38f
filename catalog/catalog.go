package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Product is an application sold through the marketplace.
type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CoverImage    string    `json:"cover_image,omitempty"`
	DemoVideoLink string    `json:"demo_video_link,omitempty"`
	LaunchURL     string    `json:"launch_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductInput is the payload for creating a product.
type ProductInput struct {
	Name          string `json:"name" validate:"required,max=120"`
	Description   string `json:"description" validate:"max=5000"`
	CoverImage    string `json:"cover_image" validate:"omitempty,url"`
	DemoVideoLink string `json:"demo_video_link" validate:"omitempty,url"`
	LaunchURL     string `json:"launch_url" validate:"required,url"`
}

// ProductPatch carries a partial update. Nil fields are left unchanged.
type ProductPatch struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	Description   *string `json:"description" validate:"omitempty,max=5000"`
	CoverImage    *string `json:"cover_image" validate:"omitempty,url"`
	DemoVideoLink *string `json:"demo_video_link" validate:"omitempty,url"`
	LaunchURL     *string `json:"launch_url" validate:"omitempty,url"`
}

func (p ProductPatch) apply(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.CoverImage != nil {
		prod.CoverImage = *p.CoverImage
	}
	if p.DemoVideoLink != nil {
		prod.DemoVideoLink = *p.DemoVideoLink
	}
	if p.LaunchURL != nil {
		prod.LaunchURL = *p.LaunchURL
	}
}

// Store persists products. DeleteProduct returns ErrProductInUse while a live
// tier references the product.
type Store interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	MissingProducts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}
