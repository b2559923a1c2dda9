package repository

import "errors"

var (
	// ErrNotFound is returned when the upstream reports the media does not exist.
	ErrNotFound = errors.New("media not found")

	// ErrNoPlayableFormat is returned when a record has no format of the requested kind.
	ErrNoPlayableFormat = errors.New("no playable format available")

	// ErrFormatNotFound is returned when a requested format id is not offered.
	ErrFormatNotFound = errors.New("format ID not found")

	// ErrHandleNotFound is returned for stream handles that were never issued
	// or have been purged.
	ErrHandleNotFound = errors.New("stream handle not found")

	// ErrHandleExpired is returned for handles whose lifetime has passed.
	ErrHandleExpired = errors.New("stream handle expired")

	// ErrUpstreamUnavailable covers upstream timeouts, connection failures
	// and nonzero extractor exits.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedUpstreamResponse signals that the upstream answered with
	// data the gateway cannot interpret.
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")

	ErrInvalidIndex = errors.New("index out of range")
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy is returned when the extraction pool queue is full.
	ErrBusy = errors.New("extraction capacity exhausted")

	ErrMissingAPIKey = errors.New("missing API key")
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrBucketNotFound is returned when the configured storage bucket is missing.
	ErrBucketNotFound = errors.New("bucket not found")
)
