package search

import "errors"

var (
	// ErrMissingAPIKey is returned when a keyed backend has no API key.
	ErrMissingAPIKey = errors.New("search provider requires an API key")

	// ErrUnsupportedProvider is returned for unknown search.api values.
	ErrUnsupportedProvider = errors.New("unsupported search provider")
)
