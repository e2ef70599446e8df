package postbox

import (
	"errors"
	"fmt"

	"github.com/rbaliyan/postbox/store"
)

// Sentinel errors for the postbox package.
// Use errors.Is() to check for these errors.
//
// Lookup and conflict errors wrap the corresponding store-level errors,
// so errors.Is(err, store.ErrNotFound) also matches ErrUnknownSender.
var (
	// ErrDuplicateIdentity is returned when a user with the email already exists.
	ErrDuplicateIdentity = fmt.Errorf("postbox: user with this email already exists: %w", store.ErrDuplicateEntry)

	// ErrUnknownSender is returned when the sender email resolves to no user.
	ErrUnknownSender = fmt.Errorf("postbox: sender does not exist: %w", store.ErrNotFound)

	// ErrUnknownRecipient is returned when a recipient email resolves to no user.
	// Send failures carry the offending email in a *RecipientError.
	ErrUnknownRecipient = fmt.Errorf("postbox: recipient does not exist: %w", store.ErrNotFound)

	// ErrUnknownUser is returned when a user lookup by id or email fails in a
	// context with no sender/recipient role.
	ErrUnknownUser = fmt.Errorf("postbox: user does not exist: %w", store.ErrNotFound)

	// ErrUnknownMessage is returned when a message id resolves to no message.
	ErrUnknownMessage = fmt.Errorf("postbox: message does not exist: %w", store.ErrNotFound)

	// ErrNotARecipient is returned when the user has no recipient row for the message.
	ErrNotARecipient = fmt.Errorf("postbox: message does not exist for this recipient: %w", store.ErrNotFound)

	// ErrAlreadyRead is returned when marking an already-read message as read.
	ErrAlreadyRead = fmt.Errorf("postbox: message has already been marked as read: %w", store.ErrAlreadyRead)

	// ErrInvalidEmailFormat is returned for malformed email addresses.
	ErrInvalidEmailFormat = errors.New("postbox: invalid email format")

	// ErrEmptyRecipients is returned when a send names no recipients.
	ErrEmptyRecipients = fmt.Errorf("%w: at least one recipient is required", ErrInvalidEmailFormat)

	// ErrDuplicateRecipient is returned when a recipient appears twice in one send.
	ErrDuplicateRecipient = errors.New("postbox: duplicate recipient")

	// ErrInvalidName is returned for empty or overlong user names.
	ErrInvalidName = errors.New("postbox: invalid name")

	// ErrEmptyContent is returned when message content is empty.
	ErrEmptyContent = errors.New("postbox: content must not be empty")

	// ErrInvalidContent is returned when subject or content contains invalid characters.
	ErrInvalidContent = errors.New("postbox: invalid content")

	// ErrSubjectTooLong is returned when subject exceeds maximum length.
	ErrSubjectTooLong = errors.New("postbox: subject too long")

	// ErrContentTooLarge is returned when content exceeds maximum size.
	ErrContentTooLarge = errors.New("postbox: content too large")

	// ErrTooManyRecipients is returned when recipient count exceeds the limit.
	ErrTooManyRecipients = errors.New("postbox: too many recipients")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("postbox: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("postbox: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("postbox: %w", store.ErrAlreadyConnected)
)

// domainErrors are the caller-facing outcomes of the messaging operations.
// Anything else returned by the service is an unexpected failure.
var domainErrors = []error{
	ErrDuplicateIdentity,
	ErrUnknownSender,
	ErrUnknownRecipient,
	ErrUnknownUser,
	ErrUnknownMessage,
	ErrNotARecipient,
	ErrAlreadyRead,
	ErrInvalidEmailFormat,
	ErrDuplicateRecipient,
	ErrInvalidName,
	ErrEmptyContent,
	ErrInvalidContent,
	ErrSubjectTooLong,
	ErrContentTooLarge,
	ErrTooManyRecipients,
}

// IsDomainError reports whether err is one of the messaging error kinds
// rather than an unexpected failure.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is an input validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEmailFormat) ||
		errors.Is(err, ErrDuplicateRecipient) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrInvalidContent) ||
		errors.Is(err, ErrSubjectTooLong) ||
		errors.Is(err, ErrContentTooLarge) ||
		errors.Is(err, ErrTooManyRecipients)
}

// RecipientError identifies the recipient that failed a send.
// Err is ErrUnknownRecipient, ErrDuplicateRecipient or ErrInvalidEmailFormat.
type RecipientError struct {
	Email string
	Err   error
}

func (e *RecipientError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownRecipient):
		return fmt.Sprintf("postbox: recipient %s does not exist", e.Email)
	case errors.Is(e.Err, ErrDuplicateRecipient):
		return fmt.Sprintf("postbox: recipient %s listed more than once", e.Email)
	default:
		return fmt.Sprintf("postbox: recipient %s: %v", e.Email, e.Err)
	}
}

func (e *RecipientError) Unwrap() error {
	return e.Err
}

// IsRecipientError checks if the error names a failing recipient and returns details.
func IsRecipientError(err error) (*RecipientError, bool) {
	var re *RecipientError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// EventPublishError is returned when event publishing fails but the operation succeeded.
// The user was created, the message sent or read; only the notification failed.
type EventPublishError struct {
	Event    string // The event name (e.g., "MessageSent", "MessageRead")
	EntityID string // The user or message id the event was for
	Err      error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("postbox: event %s publish failed for %s: %v", e.Event, e.EntityID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and returns details.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
