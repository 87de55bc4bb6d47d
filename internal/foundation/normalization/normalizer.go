// Package normalization maps loosely written configuration values onto enums.
package normalization

import (
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Normalizer provides type-safe string-to-enum normalization with error handling.
type Normalizer[T comparable] struct {
	validValues  map[string]T
	defaultValue T
	validKeys    []string // Cached for error messages
}

// NewNormalizer creates a normalizer with a map of valid string->value pairs.
// Keys are compared case-insensitively with surrounding space ignored.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	normalized := make(map[string]T, len(values))
	validKeys := make([]string, 0, len(values))

	for k, v := range values {
		normalizedKey := clean(k)
		normalized[normalizedKey] = v
		validKeys = append(validKeys, normalizedKey)
	}

	// Sort keys for consistent error messages
	sort.Strings(validKeys)

	return &Normalizer[T]{
		validValues:  normalized,
		defaultValue: defaultValue,
		validKeys:    validKeys,
	}
}

// Normalize returns the default value if the string is not recognized.
func (n *Normalizer[T]) Normalize(raw string) T {
	if value, exists := n.validValues[clean(raw)]; exists {
		return value
	}
	return n.defaultValue
}

// NormalizeWithError returns a config error if the string is not recognized.
func (n *Normalizer[T]) NormalizeWithError(field, raw string) (T, error) {
	if value, exists := n.validValues[clean(raw)]; exists {
		return value, nil
	}

	var zero T
	return zero, ferrors.ConfigError("invalid value").
		WithContext("field", field).
		WithContext("value", raw).
		WithContext("valid", strings.Join(n.validKeys, ", ")).
		Build()
}

// Valid reports whether raw maps onto a known value.
func (n *Normalizer[T]) Valid(raw string) bool {
	_, ok := n.validValues[clean(raw)]
	return ok
}

// ValidKeys returns all valid normalized keys.
func (n *Normalizer[T]) ValidKeys() []string {
	result := make([]string, len(n.validKeys))
	copy(result, n.validKeys)
	return result
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
