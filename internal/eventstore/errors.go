package eventstore

// Sentinel errors for action log operations. They are wrapped together with
// the underlying cause, so errors.Is matches both.

import (
	"git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.PersistenceError("could not open action log database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.PersistenceError("failed to initialize action log schema").Build()

	// ErrAppendFailed indicates appending a record failed.
	ErrAppendFailed = errors.PersistenceError("failed to append action to log").Build()

	// ErrQueryFailed indicates querying records failed.
	ErrQueryFailed = errors.PersistenceError("failed to query action log").Build()

	// ErrMarshalPayloadFailed indicates JSON marshaling of an action failed.
	ErrMarshalPayloadFailed = errors.PersistenceError("failed to marshal action payload").Build()
)
