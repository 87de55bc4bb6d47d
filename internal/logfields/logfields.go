package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyNodeID     = "node_id"
	KeyNodeType   = "node_type"
	KeyPlugin     = "plugin"
	KeyAPI        = "api"
	KeyAction     = "action"
	KeyPagePath   = "page_path"
	KeyPhase      = "phase"
	KeyPath       = "path"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func NodeID(id string) slog.Attr       { return slog.String(KeyNodeID, id) }
func NodeType(t string) slog.Attr      { return slog.String(KeyNodeType, t) }
func Plugin(name string) slog.Attr     { return slog.String(KeyPlugin, name) }
func API(name string) slog.Attr        { return slog.String(KeyAPI, name) }
func Action(t string) slog.Attr        { return slog.String(KeyAction, t) }
func PagePath(p string) slog.Attr      { return slog.String(KeyPagePath, p) }
func Phase(name string) slog.Attr      { return slog.String(KeyPhase, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
