// Package tier holds the subscription tiers offered on the marketplace and
// the Registry that enforces their invariants:
//
//   - a free tier costs nothing, bills on the "free" period and has no
//     processor price reference; a paid tier always has one
//   - at most one tier is free and at most one is marked popular
//   - every referenced product exists
//   - a tier held by an active subscription cannot be deleted
package tier
