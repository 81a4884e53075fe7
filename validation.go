package privmsg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MessageLimits holds message validation limits.
type MessageLimits struct {
	MaxSubjectLength int // maximum subject length in Unicode characters
	MaxBodyLength    int // maximum body length in Unicode characters
}

// MinSubjectLength is the minimum subject length (non-empty after trimming).
const MinSubjectLength = 1

// DefaultLimits returns the default message limits.
func DefaultLimits() MessageLimits {
	return MessageLimits{
		MaxSubjectLength: DefaultMaxSubjectLength,
		MaxBodyLength:    DefaultMaxBodyLength,
	}
}

// ValidateSubject validates a message subject using default limits.
// For configurable limits, use ValidateSubjectWithLimits.
func ValidateSubject(subject string) error {
	return ValidateSubjectWithLimits(subject, DefaultLimits())
}

// ValidateSubjectWithLimits validates a message subject against configurable limits.
// Length is measured in Unicode characters, not bytes.
func ValidateSubjectWithLimits(subject string, limits MessageLimits) error {
	trimmed := strings.TrimSpace(subject)
	if utf8.RuneCountInString(trimmed) < MinSubjectLength {
		return ErrEmptySubject
	}

	if n := utf8.RuneCountInString(subject); n > limits.MaxSubjectLength {
		return fmt.Errorf("%w: subject length %d exceeds max %d", ErrSubjectTooLong, n, limits.MaxSubjectLength)
	}

	if !utf8.ValidString(subject) {
		return fmt.Errorf("%w: subject contains invalid UTF-8", ErrInvalidContent)
	}

	for _, r := range subject {
		if unicode.IsControl(r) && r != '\t' {
			return fmt.Errorf("%w: subject contains control character U+%04X", ErrInvalidContent, r)
		}
	}

	return nil
}

// ValidateBody validates a message body using default limits.
// For configurable limits, use ValidateBodyWithLimits.
func ValidateBody(body string) error {
	return ValidateBodyWithLimits(body, DefaultLimits())
}

// ValidateBodyWithLimits validates a message body against configurable limits.
// Length is measured in Unicode characters, not bytes.
func ValidateBodyWithLimits(body string, limits MessageLimits) error {
	if n := utf8.RuneCountInString(body); n > limits.MaxBodyLength {
		return fmt.Errorf("%w: body length %d exceeds max %d", ErrBodyTooLarge, n, limits.MaxBodyLength)
	}

	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: body contains invalid UTF-8", ErrInvalidContent)
	}

	if strings.ContainsRune(body, '\x00') {
		return fmt.Errorf("%w: body contains null bytes", ErrInvalidContent)
	}

	return nil
}

// validateSendRequest checks the whole request and collects every field
// violation instead of stopping at the first one. On success it returns
// the resolved recipient account.
//
// An unresolvable handle is a field error on "recipient_handle", not a
// top-level failure. Directory errors other than ErrAccountNotFound are
// infrastructure failures and are returned as-is.
func (s *service) validateSendRequest(ctx context.Context, req SendRequest) (*Account, error) {
	var fieldErrs FieldErrors

	recipient, err := s.directory.ResolveHandle(ctx, req.RecipientHandle)
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountNotFound):
		recipient = nil
		fieldErrs = append(fieldErrs, &FieldError{Field: "recipient_handle", Message: "does not exist"})
	default:
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}

	limits := s.opts.getLimits()
	if err := ValidateSubjectWithLimits(req.Subject, limits); err != nil {
		fieldErrs = append(fieldErrs, subjectFieldError(err, limits))
	}
	if err := ValidateBodyWithLimits(req.Body, limits); err != nil {
		fieldErrs = append(fieldErrs, bodyFieldError(err, limits))
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return recipient, nil
}

func subjectFieldError(err error, limits MessageLimits) *FieldError {
	switch {
	case errors.Is(err, ErrEmptySubject):
		return &FieldError{Field: "subject", Message: "cannot be empty"}
	case errors.Is(err, ErrSubjectTooLong):
		return &FieldError{
			Field:   "subject",
			Message: fmt.Sprintf("must be at most %d characters", limits.MaxSubjectLength),
		}
	default:
		return &FieldError{Field: "subject", Message: "contains invalid characters"}
	}
}

func bodyFieldError(err error, limits MessageLimits) *FieldError {
	if errors.Is(err, ErrBodyTooLarge) {
		return &FieldError{
			Field:   "body",
			Message: fmt.Sprintf("must be at most %d characters", limits.MaxBodyLength),
		}
	}
	return &FieldError{Field: "body", Message: "contains invalid characters"}
}
