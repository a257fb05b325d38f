// Package access issues short-lived launch tokens for products. A user with
// the product in their entitlement gets a signed token to hand to the
// product; the product redeems it once through Verify, which is also where a
// call is counted against the user's quota.
package access
