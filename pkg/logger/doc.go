// Package logger builds *slog.Logger instances for the service.
//
// New applies functional options on top of a JSON-to-stdout default. Values
// registered through WithContextExtractors (request id, authenticated user)
// are copied from context.Context into every record, so call sites only have
// to use the *Context logging methods:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "marketplace"),
//		logger.WithContextExtractors(requestid.LoggerExtractor(), identity.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tier activated", logger.TierID(tierID))
//
// The attribute helpers in attr.go keep key names consistent across packages.
package logger
