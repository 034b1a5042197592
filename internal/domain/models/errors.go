package models

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrNoData           = errors.New("no data")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotViable        = errors.New("not viable")

	// ErrConfiguration is an ErrInvalidArgument raised for unknown sources
	// or inconsistent settings.
	ErrConfiguration = fmt.Errorf("configuration error: %w", ErrInvalidArgument)
)

// InsufficientDataError reports how many samples were available for a fit.
type InsufficientDataError struct {
	What string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d %s, need at least %d", e.Have, e.What, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
