// Package eventstore keeps a durable log of dispatched actions for the
// development inspector.
package eventstore

import "context"

// Store defines the interface for persisting and retrieving logged actions.
type Store interface {
	// Append adds a record and returns its sequence number.
	Append(ctx context.Context, r Record) (int64, error)

	// Recent returns the newest records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// ByNode returns the records about one node, oldest first.
	ByNode(ctx context.Context, nodeID string) ([]Record, error)

	// CountByType counts the records of one session per action type.
	CountByType(ctx context.Context, sessionID string) (map[string]int, error)

	// Close closes the store and releases resources.
	Close() error
}
