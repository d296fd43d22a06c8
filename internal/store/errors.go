package store

import "github.com/pkg/errors"

// ErrValidation is matched by every input rejected locally, before any request
// is made.
var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyMessage    = errors.WithMessage(ErrValidation, "message is empty")
	ErrNoActiveSession = errors.WithMessage(ErrValidation, "no active session")
	ErrUnknownSession  = errors.WithMessage(ErrValidation, "unknown session")
)

// ErrSendInProgress rejects a send while another one is outstanding.
var ErrSendInProgress = errors.New("a message is already being sent")

// IsValidation reports whether err was a local validation rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
