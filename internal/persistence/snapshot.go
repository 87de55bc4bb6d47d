// Package persistence writes the persisted part of the store to disk and
// restores it on startup.
package persistence

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// DefaultFile is the snapshot file name inside the cache directory.
const DefaultFile = "graph-state.json"

// Load reads a snapshot. A missing file yields a not_found error and a corrupt
// one a persistence error; callers treat both as "start empty".
func Load(path string) (store.PersistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.EmptyPersistedState(), ferrors.NotFoundError("no snapshot").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		return store.EmptyPersistedState(), ferrors.WrapError(err, ferrors.CategoryPersistence, "read snapshot").
			WithContext("path", path).
			Build()
	}

	ps := store.EmptyPersistedState()
	if err := json.Unmarshal(data, &ps); err != nil {
		return store.EmptyPersistedState(), ferrors.WrapError(err, ferrors.CategoryPersistence, "decode snapshot").
			WithContext("path", path).
			Build()
	}
	for id, n := range ps.Nodes {
		if n == nil || n.ID != id {
			return store.EmptyPersistedState(), ferrors.PersistenceError("snapshot node id does not match its key").
				WithContext("path", path).
				WithContext("node_id", id).
				Build()
		}
	}
	return ps, nil
}

// Encode renders the snapshot file contents.
func Encode(ps store.PersistedState) ([]byte, error) {
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPersistence, "encode snapshot").Build()
	}
	return append(data, '\n'), nil
}

// Save writes the snapshot atomically and returns the number of bytes written.
func Save(path string, ps store.PersistedState) (int, error) {
	data, err := Encode(ps)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryPersistence, "create snapshot directory").
			Retryable().
			WithContext("path", path).
			Build()
	}

	// Atomic write using temporary file
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryPersistence, "write temporary snapshot").
			Retryable().
			WithContext("path", tempPath).
			Build()
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return 0, ferrors.WrapError(err, ferrors.CategoryPersistence, "replace snapshot").
			Retryable().
			WithContext("path", path).
			Build()
	}
	return len(data), nil
}
