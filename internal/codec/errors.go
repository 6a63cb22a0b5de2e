package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKeyTag indicates a stored key whose tag this version does not know.
	ErrUnknownKeyTag = errors.New("codec: unknown key tag")
	// ErrCorrupt indicates a value that ends early or contains impossible lengths.
	ErrCorrupt = errors.New("codec: corrupt value")
	// ErrEnumeration indicates the string table could not assign or resolve an id.
	ErrEnumeration = errors.New("codec: string enumeration failed")
)

// UnknownKeyTagError reports the tag that could not be decoded.
type UnknownKeyTagError struct {
	Tag uint64
}

func (e *UnknownKeyTagError) Error() string {
	return fmt.Sprintf("codec: unknown key tag %d", e.Tag)
}

// Is makes errors.Is(err, ErrUnknownKeyTag) match.
func (e *UnknownKeyTagError) Is(target error) bool {
	return target == ErrUnknownKeyTag
}

// EnumerationError wraps a failure of the string table.
type EnumerationError struct {
	Op  string
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("codec: string enumeration %s: %v", e.Op, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEnumeration) match.
func (e *EnumerationError) Is(target error) bool {
	return target == ErrEnumeration
}
