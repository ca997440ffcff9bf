// Package errdefs declares the error classes shared across the relay. Each
// component wraps one of these sentinels so callers can classify a failure
// with errors.Is without depending on the component that produced it.
package errdefs

import "errors"

var (
	// ErrValidation marks a malformed or incomplete inbound request.
	ErrValidation = errors.New("validation error")

	// ErrFetch marks a failure retrieving an object from the blob store.
	ErrFetch = errors.New("fetch error")

	// ErrAddressing marks a failure submitting content to IPFS.
	ErrAddressing = errors.New("addressing error")

	// ErrChannel marks a failure pushing to or closing a client connection.
	ErrChannel = errors.New("channel error")

	// ErrConfiguration marks missing or invalid configuration at startup.
	ErrConfiguration = errors.New("configuration error")
)
