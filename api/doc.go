// Package api is the REST boundary of the marketplace.
//
// Router assembles the versioned routes under /api/v1 from the mountable
// handler groups (products, tiers, subscriptions, access, admin) behind
// request id, recovery, metrics and bearer-token authentication. Every
// response uses the handler package's {data, meta, error} envelope and every
// domain error is mapped to a status by Classify.
package api
