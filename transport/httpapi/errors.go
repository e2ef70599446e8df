package httpapi

import (
	"errors"
	"net/http"

	"github.com/rbaliyan/postbox"
)

const internalErrorDetail = "internal server error"

// statusFor maps a service error to an HTTP status for lookup and mutation
// routes. Unknown entities are 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, postbox.ErrDuplicateIdentity),
		errors.Is(err, postbox.ErrAlreadyRead):
		return http.StatusConflict
	case errors.Is(err, postbox.ErrUnknownUser),
		errors.Is(err, postbox.ErrUnknownSender),
		errors.Is(err, postbox.ErrUnknownRecipient),
		errors.Is(err, postbox.ErrUnknownMessage),
		errors.Is(err, postbox.ErrNotARecipient):
		return http.StatusNotFound
	case postbox.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendStatusFor maps a send failure. Every rejected send is the caller's
// request being wrong, including unknown participants.
func sendStatusFor(err error) int {
	if errors.Is(err, postbox.ErrUnknownSender) || errors.Is(err, postbox.ErrUnknownRecipient) {
		return http.StatusBadRequest
	}
	return statusFor(err)
}
