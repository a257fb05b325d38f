// Package catalog manages the products offered on the marketplace. Products
// are referenced by tiers; a product can only be removed once no live tier
// includes it.
package catalog
