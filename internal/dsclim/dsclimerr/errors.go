// Package dsclimerr defines the fatal failure classes raised by the
// downscaling core. Every class is terminal: there is no partial
// recovery contract (spec §7). Warnings are carried out of band via
// slog, never via these types.
package dsclimerr

import (
	"errors"
	"fmt"
)

// Class identifies one of the fixed failure classes the core can raise.
type Class string

const (
	ClassConfiguration              Class = "ConfigurationError"
	ClassDimensionMismatch          Class = "DimensionMismatch"
	ClassCalendar                   Class = "CalendarError"
	ClassInsufficientSamples        Class = "InsufficientSamples"
	ClassNoCandidates               Class = "NoCandidates"
	ClassNoObservationsInNeighborhood Class = "NoObservationsInNeighborhood"
	ClassDegenerateClustering       Class = "DegenerateClustering"
	ClassOverlappingSeasons         Class = "OverlappingSeasons"
	ClassIO                         Class = "IoError"
)

// Error is the common shape of every dsclim failure class.
type Error struct {
	class   Class
	message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.class, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.class, e.message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Class reports which failure class this error belongs to.
func (e *Error) Class() Class { return e.class }

func new(class Class, msg string, args ...interface{}) *Error {
	return &Error{class: class, message: fmt.Sprintf(msg, args...)}
}

func wrap(class Class, err error, msg string, args ...interface{}) *Error {
	return &Error{class: class, message: fmt.Sprintf(msg, args...), wrapped: err}
}

func Configuration(msg string, args ...interface{}) error {
	return new(ClassConfiguration, msg, args...)
}

func DimensionMismatch(msg string, args ...interface{}) error {
	return new(ClassDimensionMismatch, msg, args...)
}

func Calendar(msg string, args ...interface{}) error {
	return new(ClassCalendar, msg, args...)
}

func InsufficientSamples(msg string, args ...interface{}) error {
	return new(ClassInsufficientSamples, msg, args...)
}

func NoCandidates(msg string, args ...interface{}) error {
	return new(ClassNoCandidates, msg, args...)
}

func NoObservationsInNeighborhood(msg string, args ...interface{}) error {
	return new(ClassNoObservationsInNeighborhood, msg, args...)
}

func DegenerateClustering(msg string, args ...interface{}) error {
	return new(ClassDegenerateClustering, msg, args...)
}

func OverlappingSeasons(msg string, args ...interface{}) error {
	return new(ClassOverlappingSeasons, msg, args...)
}

func IO(err error, msg string, args ...interface{}) error {
	return wrap(ClassIO, err, msg, args...)
}

// As reports the Class of err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func As(err error) (class Class, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.class, true
	}
	return "", false
}
