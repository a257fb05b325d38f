// Package binder fills request structs from the parts of an HTTP request.
//
// Each binder reads only its own source: JSON the body, Path the fields
// tagged `path`, Query the fields tagged `query`. They are combined with
// handler.WithBinders and applied in order. Field types implementing
// encoding.TextUnmarshaler, such as uuid.UUID, are parsed through it.
package binder
