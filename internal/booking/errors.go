package booking

import "errors"

var (
	// ErrMissingName is returned when the contact name is blank.
	ErrMissingName = errors.New("name is required")

	// ErrMissingPhone is returned when the contact phone is blank.
	ErrMissingPhone = errors.New("phone is required")

	// ErrMissingClinic is returned when no clinic has been selected.
	ErrMissingClinic = errors.New("clinic is required")

	// ErrNoServices is returned when the service selection is empty.
	ErrNoServices = errors.New("at least one service is required")

	// ErrEmptyCode is returned when an OTP code is blank.
	ErrEmptyCode = errors.New("verification code is required")
)

// IsValidation reports whether err is one of the local validation errors
// that are raised before any backend call.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// GenericMessage is shown for failures that carry no user-facing text.
const GenericMessage = "something went wrong, please try again"

var validationErrors = []error{ErrMissingName, ErrMissingPhone, ErrMissingClinic, ErrNoServices, ErrEmptyCode}

// UserMessage returns the text to show the user for err. Errors that carry a
// server supplied message expose it through a UserMessage method. Local
// validation errors show their own text; anything else gets GenericMessage
// so transport details never reach the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var m interface{ UserMessage() string }
	if errors.As(err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return v.Error()
		}
	}
	return GenericMessage
}
