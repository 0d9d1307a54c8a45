package hub

// busyError signals a serve request for a model that already has a live
// or starting server. Maps to 409.
type busyError struct{ modelID string }

func (e busyError) Error() string { return "model is already being served: " + e.modelID }

// ErrBusy constructs a busyError for modelID.
func ErrBusy(modelID string) error { return busyError{modelID: modelID} }

// IsBusy reports whether err indicates a duplicate live serve.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// notServingError signals a close request for a model with nothing to
// close. Maps to 404.
type notServingError struct{ modelID string }

func (e notServingError) Error() string { return "model is not being served: " + e.modelID }

// ErrNotServing constructs a notServingError for modelID.
func ErrNotServing(modelID string) error { return notServingError{modelID: modelID} }

// IsNotServing reports whether err indicates there was nothing to close.
func IsNotServing(err error) bool {
	_, ok := err.(notServingError)
	return ok
}
