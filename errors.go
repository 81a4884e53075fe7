package privmsg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/privmsg/store"
)

// Sentinel errors for the privmsg package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, privmsg.ErrNotFound) will match both privmsg-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("privmsg: %w", store.ErrNotFound)

	// ErrUnauthorized is returned when an account is neither the author
	// nor the recipient of a message, or attempts an operation reserved
	// for the other party.
	ErrUnauthorized = errors.New("privmsg: unauthorized")

	// ErrInvalidMessage is returned for message validation failures.
	// Field-level details are carried by FieldErrors.
	ErrInvalidMessage = errors.New("privmsg: invalid message")

	// ErrAccountNotFound is returned by Directory implementations when
	// a handle or account ID cannot be resolved.
	ErrAccountNotFound = errors.New("privmsg: account not found")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("privmsg: store is required")

	// ErrDirectoryRequired is returned when no directory is configured.
	ErrDirectoryRequired = errors.New("privmsg: directory is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("privmsg: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("privmsg: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("privmsg: %w", store.ErrInvalidID)

	// ErrDuplicateEntry is returned when a duplicate entry is detected.
	// Wraps store.ErrDuplicateEntry for consistent error checking.
	ErrDuplicateEntry = fmt.Errorf("privmsg: %w", store.ErrDuplicateEntry)

	// ErrPublicID is returned when a public ID cannot be generated or a
	// unique one cannot be assigned. Message creation fails without
	// persisting anything.
	ErrPublicID = errors.New("privmsg: public id generation failed")

	// ErrEmptySubject is returned when a subject is empty.
	ErrEmptySubject = errors.New("privmsg: empty subject")

	// ErrSubjectTooLong is returned when a subject exceeds the maximum length.
	ErrSubjectTooLong = errors.New("privmsg: subject too long")

	// ErrBodyTooLarge is returned when a body exceeds the maximum size.
	ErrBodyTooLarge = errors.New("privmsg: body too large")

	// ErrInvalidContent is returned when message content contains invalid characters.
	ErrInvalidContent = errors.New("privmsg: invalid content")

	// ErrInvalidAccountID is returned when an account ID contains invalid characters.
	ErrInvalidAccountID = errors.New("privmsg: invalid account id")
)

// FieldError describes a single field-level validation failure.
// Field names match SendRequest fields in snake_case
// ("recipient_handle", "subject", "body").
type FieldError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("privmsg: validation failed for %s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidMessage
}

// FieldErrors is the complete set of field-level validation failures
// for one request. Validation never short-circuits: every violated
// constraint contributes an entry.
//
// errors.Is(err, ErrInvalidMessage) matches a FieldErrors value.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "privmsg: validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual field errors to errors.Is/As.
func (e FieldErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, fe := range e {
		errs[i] = fe
	}
	return errs
}

// On returns the error for the given field, or nil.
func (e FieldErrors) On(field string) *FieldError {
	for _, fe := range e {
		if fe.Field == field {
			return fe
		}
	}
	return nil
}

// AsFieldErrors checks if the error carries field-level validation
// details and returns them.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// EventPublishError is returned when event publishing fails but the operation
// succeeded. The message was sent/read/deleted, but the event notification
// failed. Check the MessageID field to identify which message this applies to.
type EventPublishError struct {
	Event     string // The event name (e.g., "MessageSent", "MessageRead")
	MessageID string // The message ID the event was for
	Err       error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("privmsg: event %s publish failed for message %s: %v", e.Event, e.MessageID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and
// returns details. This is useful when eventErrorsFatal=true but you still
// want to know the message was persisted.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
