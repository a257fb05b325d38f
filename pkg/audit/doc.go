// Package audit records who changed what. Every admin mutation of the
// catalog and tier registry, every subscription transition and every
// processed payment confirmation produces an Event that is handed to a
// Storage backend.
//
// Actor and request ids are pulled from the context through extractor
// options, so domain code only names the action and the resource:
//
//	auditLog.Log(ctx, "tier.update", audit.WithResource("tier", id.String()))
package audit
