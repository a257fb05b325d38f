package catalog

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInUse    = errors.New("product is included in a live tier")
	ErrInvalidProduct  = errors.New("invalid product")
)
