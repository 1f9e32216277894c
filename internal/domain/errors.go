package domain

import "errors"

var (
	// ErrUnmappedField marks change-log labels the adapter does not track. Informational only.
	ErrUnmappedField = errors.New("unmapped field")
	// ErrPersonNotFound is returned by person resolvers when no people row matches.
	ErrPersonNotFound = errors.New("person not found")
	// ErrValueCoercion wraps values that cannot be converted to the attribute type.
	ErrValueCoercion = errors.New("value coercion failed")
	// ErrSinkWrite is an isolated failure writing one snapshot.
	ErrSinkWrite = errors.New("snapshot write failed")
	// ErrSinkConnection is a connection-level sink failure; the issue's replay halts.
	ErrSinkConnection = errors.New("snapshot sink connection lost")
	// ErrSourceUnavailable means the issue's state or history could not be loaded.
	ErrSourceUnavailable = errors.New("issue source unavailable")
	// ErrUnknownTrackerKind is returned for tracker kinds without an adapter.
	ErrUnknownTrackerKind = errors.New("unknown tracker kind")
)
