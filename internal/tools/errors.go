package tools

import "errors"

var (
	// ErrToolNotFound indicates the requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrAlreadyRegistered indicates a duplicate registration attempt.
	ErrAlreadyRegistered = errors.New("tool already registered")

	// ErrNotAuthorized indicates dispatch was attempted without a passing
	// security decision.
	ErrNotAuthorized = errors.New("invocation not authorized")

	// ErrMissingArgument indicates a required schema argument was absent.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrBadArgument indicates an argument could not be coerced to its
	// declared schema type.
	ErrBadArgument = errors.New("invalid argument value")
)
