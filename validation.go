package postbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MessageLimits holds all message validation limits.
// Used to pass limits to validation functions.
type MessageLimits struct {
	MaxSubjectLength  int
	MaxContentSize    int
	MaxRecipientCount int
}

// Validation constants for users.
const (
	MinNameLength = 1
	MaxNameLength = 100
	// MaxEmailLength is the longest address the stores can hold, in bytes.
	MaxEmailLength = 320
)

// DefaultLimits returns the default message limits.
func DefaultLimits() MessageLimits {
	return MessageLimits{
		MaxSubjectLength:  DefaultMaxSubjectLength,
		MaxContentSize:    DefaultMaxContentSize,
		MaxRecipientCount: DefaultMaxRecipientCount,
	}
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// The result is the directory key for the user.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is well formed after normalization:
// at most MaxEmailLength bytes, exactly one '@', a non-empty local part, and
// a non-empty domain containing a '.'.
func ValidateEmail(email string) error {
	e := NormalizeEmail(email)
	if e == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidEmailFormat)
	}
	if len(e) > MaxEmailLength {
		return fmt.Errorf("%w: address length %d exceeds max %d", ErrInvalidEmailFormat, len(e), MaxEmailLength)
	}
	if strings.Count(e, "@") != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidEmailFormat, e)
	}
	local, domain, _ := strings.Cut(e, "@")
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidEmailFormat, e)
	}
	if strings.IndexFunc(e, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidEmailFormat, e)
	}
	return nil
}

// ValidateName validates a display name: 1 to 100 characters after trimming.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLength {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidName)
	}
	if n > MaxNameLength {
		return fmt.Errorf("%w: name length %d exceeds max %d", ErrInvalidName, n, MaxNameLength)
	}
	return nil
}

// ValidateSubject validates a message subject using default limits.
// For configurable limits, use ValidateSubjectWithLimits.
func ValidateSubject(subject string) error {
	return ValidateSubjectWithLimits(subject, DefaultLimits())
}

// ValidateSubjectWithLimits validates an optional subject. An empty subject
// is accepted and means the message has none.
func ValidateSubjectWithLimits(subject string, limits MessageLimits) error {
	if subject == "" {
		return nil
	}

	if !utf8.ValidString(subject) {
		return fmt.Errorf("%w: subject contains invalid UTF-8", ErrInvalidContent)
	}

	if n := utf8.RuneCountInString(subject); n > limits.MaxSubjectLength {
		return fmt.Errorf("%w: subject length %d exceeds max %d", ErrSubjectTooLong, n, limits.MaxSubjectLength)
	}

	for _, r := range subject {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("%w: subject contains control character U+%04X", ErrInvalidContent, r)
		}
	}

	return nil
}

// ValidateContent validates message content using default limits.
func ValidateContent(content string) error {
	return ValidateContentWithLimits(content, DefaultLimits())
}

// ValidateContentWithLimits validates message content against configurable limits.
func ValidateContentWithLimits(content string, limits MessageLimits) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	if len(content) > limits.MaxContentSize {
		return fmt.Errorf("%w: content size %d exceeds max %d bytes", ErrContentTooLarge, len(content), limits.MaxContentSize)
	}

	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content contains invalid UTF-8", ErrInvalidContent)
	}

	// Null bytes are rejected by the relational backends.
	if strings.ContainsRune(content, '\x00') {
		return fmt.Errorf("%w: content contains null bytes", ErrInvalidContent)
	}

	return nil
}

// ValidateRecipients validates the recipient list and returns the normalized
// addresses in submission order. Every entry must be well formed and appear
// only once.
func ValidateRecipients(emails []string, limits MessageLimits) ([]string, error) {
	if len(emails) == 0 {
		return nil, ErrEmptyRecipients
	}

	normalized := make([]string, len(emails))
	for i, e := range emails {
		if err := ValidateEmail(e); err != nil {
			return nil, &RecipientError{Email: e, Err: err}
		}
		normalized[i] = NormalizeEmail(e)
	}

	seen := make(map[string]struct{}, len(normalized))
	for _, e := range normalized {
		if _, dup := seen[e]; dup {
			return nil, &RecipientError{Email: e, Err: ErrDuplicateRecipient}
		}
		seen[e] = struct{}{}
	}

	if len(normalized) > limits.MaxRecipientCount {
		return nil, fmt.Errorf("%w: recipient count %d exceeds max %d", ErrTooManyRecipients, len(normalized), limits.MaxRecipientCount)
	}

	return normalized, nil
}

// ValidateSendRequest performs all input checks of a send that do not need
// the store. It returns the normalized sender and recipient addresses.
func ValidateSendRequest(req SendRequest, limits MessageLimits) (string, []string, error) {
	if err := ValidateEmail(req.SenderEmail); err != nil {
		return "", nil, err
	}
	recipients, err := ValidateRecipients(req.RecipientEmails, limits)
	if err != nil {
		return "", nil, err
	}
	if err := ValidateContentWithLimits(req.Content, limits); err != nil {
		return "", nil, err
	}
	if err := ValidateSubjectWithLimits(req.Subject, limits); err != nil {
		return "", nil, err
	}
	return NormalizeEmail(req.SenderEmail), recipients, nil
}
