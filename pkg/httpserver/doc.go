// Package httpserver runs an *http.Server until its context is cancelled and
// then shuts it down gracefully. Signal handling belongs to the caller
// (usually signal.NotifyContext in main), which keeps Run composable with
// errgroup alongside other long-running components.
package httpserver
