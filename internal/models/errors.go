package models

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a run is requested while another one is in flight
	ErrBusy = errors.New("optimization already running")
	// ErrNoSchedule is returned when an edit arrives before any schedule exists
	ErrNoSchedule = &StateError{Reason: "no schedule has been computed yet"}
	// ErrNoConfig is returned by regeneration without a prior optimization
	ErrNoConfig = &StateError{Reason: "no previous optimization to regenerate from"}
)

// ConfigurationError reports an unusable optimization config
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// StateError reports an operation called in the wrong session state
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "invalid state: " + e.Reason
}

// EditConflictError reports an edit that cannot be honoured
type EditConflictError struct {
	Day    int
	Field  Field
	Reason string
}

func (e *EditConflictError) Error() string {
	return fmt.Sprintf("edit conflict on day %d %s: %s", e.Day, e.Field, e.Reason)
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsStateError reports whether err is a StateError
func IsStateError(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// IsEditConflict reports whether err is an EditConflictError
func IsEditConflict(err error) bool {
	var target *EditConflictError
	return errors.As(err, &target)
}
