package dashboard

import "errors"

var (
	ErrUploadInFlight    = errors.New("an upload is already in progress")
	ErrTollInFlight      = errors.New("a toll submission is already in progress")
	ErrInvalidPlate      = errors.New("vehicle plate is required")
	ErrNoMedia           = errors.New("no file selected")
	ErrCameraNotReady    = errors.New("camera not ready")
	ErrEmptyCapture      = errors.New("invalid captured image")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrClosed            = errors.New("dashboard controller closed")
)

// IsValidation reports whether err was raised before any network call
// because of local input or device state.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPlate) ||
		errors.Is(err, ErrNoMedia) ||
		errors.Is(err, ErrCameraNotReady) ||
		errors.Is(err, ErrEmptyCapture)
}

// IsRejected reports whether err is an in-flight guard rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrUploadInFlight) || errors.Is(err, ErrTollInFlight)
}
