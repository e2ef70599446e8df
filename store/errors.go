package store

import "errors"

// Backends wrap or return these so the service can classify failures
// without knowing the driver.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrInvalidID      = errors.New("store: invalid id") // malformed for this backend, so it cannot exist
	ErrDuplicateEntry = errors.New("store: duplicate entry")
	ErrAlreadyRead    = errors.New("store: already read")

	ErrNotConnected      = errors.New("store: not connected")
	ErrAlreadyConnected  = errors.New("store: already connected")
	ErrEmptyRecipients   = errors.New("store: empty recipients")
	ErrTransactionFailed = errors.New("store: transaction failed") // nothing was written
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

func IsAlreadyRead(err error) bool {
	return errors.Is(err, ErrAlreadyRead)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
