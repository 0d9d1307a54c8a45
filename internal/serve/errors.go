package serve

// configurationError signals an invalid request value, rejected before
// any side effect occurs. Maps to 400.
type configurationError struct{ msg string }

func (e configurationError) Error() string { return e.msg }

// ErrConfiguration constructs a configurationError.
func ErrConfiguration(msg string) error { return configurationError{msg: msg} }

// IsConfiguration reports whether err is a request-validation failure.
func IsConfiguration(err error) bool {
	_, ok := err.(configurationError)
	return ok
}

// modelNotFoundError is raised when the constructed model handle fails
// its validity check; no server has been started at that point.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not valid or not found: " + e.id }

// ErrModelNotFound returns an error naming the requested identifier.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// serveFailedError is raised when the model server came up without a
// reachable URL. The start call itself succeeded; the missing URL is
// treated as a terminal failure here, not by the collaborator.
type serveFailedError struct{ msg string }

func (e serveFailedError) Error() string { return e.msg }

// ErrServeFailed constructs a serveFailedError.
func ErrServeFailed(msg string) error { return serveFailedError{msg: msg} }

// IsServeFailed reports whether err indicates a started but unreachable server.
func IsServeFailed(err error) bool {
	_, ok := err.(serveFailedError)
	return ok
}
