package types

import "errors"

// Domain errors shared across packages
var (
	// Lookup errors
	ErrEmptyName = errors.New("name cannot be empty")
	ErrNilKey    = errors.New("key is required")

	// Location errors
	ErrInvalidLocation = errors.New("location must be of the form name:descriptor")
)

// ValidateLocation checks a member location.
func ValidateLocation(loc string) error {
	if loc == ClassLocation {
		return nil
	}
	name, desc := SplitLocation(loc)
	if name == "" || desc == "" {
		return ErrInvalidLocation
	}
	return nil
}
