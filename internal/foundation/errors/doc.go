// Package errors provides the classified error primitives used across sitegraph.
//
// A ClassifiedError carries a category (config, validation, plugin, persistence,
// build, ...), a severity and a retry hint next to the message and cause. Errors
// are built with the fluent ErrorBuilder:
//
//	err := errors.PluginError("plugin does not provide a content loader").
//		WithCause(ErrMissingCapability).
//		WithContext("plugin", name).
//		Build()
//
// The CLI and HTTP adapters turn classified errors into exit codes and JSON
// responses respectively.
package errors
